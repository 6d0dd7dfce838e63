package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// NextRun computes when a task should run again after the given time. An empty
// cron expression falls back to a fixed gap; an invalid one is an error the
// caller must surface as a task misconfiguration.
func NextRun(scheduleCron string, after time.Time, fallbackGap time.Duration) (time.Time, error) {
	if scheduleCron == "" {
		return after.Add(fallbackGap), nil
	}

	schedule, err := cron.ParseStandard(scheduleCron)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", scheduleCron, err)
	}

	return schedule.Next(after), nil
}
