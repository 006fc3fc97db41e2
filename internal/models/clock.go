package models

import (
	"fmt"
	"time"
)

// MinutesPerDay 一天的分钟数
const MinutesPerDay = 24 * 60

// ParseClock 解析 "HH:MM" 为当日分钟数（0-1439）
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, NewValidationError("time", fmt.Sprintf("invalid clock time %q, expected HH:MM", s))
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, NewValidationError("time", fmt.Sprintf("clock time %q out of range", s))
	}
	return h*60 + m, nil
}

// FormatClock 当日分钟数格式化为 "HH:MM"
func FormatClock(minutes int) string {
	m := NormalizeMinutes(minutes)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// NormalizeMinutes 归一化到 [0, 1440)，支持跨午夜
func NormalizeMinutes(m int) int {
	m %= MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return m
}

// AddClock 当日分钟数加偏移（分钟），跨午夜取模
func AddClock(base, delta int) int {
	return NormalizeMinutes(base + delta)
}

// ClockDiff 两个当日分钟数的最短带符号差（a-b，范围 [-720, 720)）
func ClockDiff(a, b int) int {
	d := NormalizeMinutes(a - b)
	if d >= MinutesPerDay/2 {
		d -= MinutesPerDay
	}
	return d
}

// DateOf 时间对应的日历日（YYYY-MM-DD）
func DateOf(t time.Time) string {
	return t.Format("2006-01-02")
}
