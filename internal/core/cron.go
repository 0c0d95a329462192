package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleParser reads minute, hour, day of month, month and day of week.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a 5-field schedule such as the execution history prune time.
// Descriptors like @daily are rejected.
func ParseCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "@") {
		return nil, fmt.Errorf("schedule %q: only 5-field cron expressions are accepted", expr)
	}
	schedule, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: invalid cron expression: %w", expr, err)
	}
	return schedule, nil
}

// NextOccurrences lists the next n firings of schedule strictly after base.
func NextOccurrences(schedule cron.Schedule, base time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for at := base; len(out) < n; {
		at = schedule.Next(at)
		out = append(out, at)
	}
	return out
}
