package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	m, err := ParseClock("07:00")
	require.NoError(t, err)
	assert.Equal(t, 420, m)

	m, err = ParseClock("00:00")
	require.NoError(t, err)
	assert.Equal(t, 0, m)

	m, err = ParseClock("23:59")
	require.NoError(t, err)
	assert.Equal(t, 1439, m)
}

func TestParseClock_Invalid(t *testing.T) {
	_, err := ParseClock("24:00")
	assert.Error(t, err)

	_, err = ParseClock("07:60")
	assert.Error(t, err)

	_, err = ParseClock("seven")
	assert.Error(t, err)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "07:00", FormatClock(420))
	assert.Equal(t, "06:49", FormatClock(409))
	assert.Equal(t, "00:05", FormatClock(5))
	// 跨午夜归一化
	assert.Equal(t, "23:50", FormatClock(-10))
	assert.Equal(t, "00:10", FormatClock(1450))
}

func TestAddClock_WrapsMidnight(t *testing.T) {
	assert.Equal(t, 1430, AddClock(10, -20))
	assert.Equal(t, 5, AddClock(1435, 10))
	assert.Equal(t, 409, AddClock(420, -11))
}

func TestClockDiff(t *testing.T) {
	assert.Equal(t, -11, ClockDiff(409, 420))
	assert.Equal(t, 11, ClockDiff(420, 409))
	// 跨午夜取最短差
	assert.Equal(t, 20, ClockDiff(10, 1430))
	assert.Equal(t, -20, ClockDiff(1430, 10))
}
