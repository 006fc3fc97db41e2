package notifier

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleTopic(t *testing.T) {
	assert.Equal(t, "smartwake/alarm-42/schedule", scheduleTopic("smartwake/", "alarm-42"))
}

func TestScheduleChange_Payload(t *testing.T) {
	change := ScheduleChange{
		AlarmID:    "alarm-42",
		WakeTime:   "06:49",
		Confidence: 1.0,
		Reason:     "rainy weather slows the morning commute",
		ChangedAt:  time.Date(2026, 8, 26, 5, 30, 0, 0, time.UTC),
	}

	payload, err := json.Marshal(change)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "alarm-42", decoded["alarm_id"])
	assert.Equal(t, "06:49", decoded["wake_time"])
	assert.Equal(t, 1.0, decoded["confidence"])
}
