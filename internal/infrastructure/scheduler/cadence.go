package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSchedule adapts a parsed cron expression to Schedule.
// Standard 5-field expressions and descriptors (@daily, @hourly, ...) are accepted.
type CronSchedule struct {
	expr     string
	location *time.Location
	schedule cron.Schedule
}

// NewCronSchedule parses expr and evaluates it in loc (UTC when nil).
func NewCronSchedule(expr string, loc *time.Location) (*CronSchedule, error) {
	if loc == nil {
		loc = time.UTC
	}
	parsed, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronSchedule{expr: expr, location: loc, schedule: parsed}, nil
}

// Next returns the next activation strictly after t.
func (c *CronSchedule) Next(t time.Time) time.Time {
	return c.schedule.Next(t.In(c.location))
}

// String returns the original expression.
func (c *CronSchedule) String() string {
	return c.expr
}

// IntervalSchedule fires a fixed interval after each check.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns t + Interval.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String renders the interval in descriptor form.
func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ParseCadence turns a configured cadence into a Schedule.
// "@every <duration>" becomes a fixed interval; anything else is parsed as cron.
func ParseCadence(expr string, loc *time.Location) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty cadence")
	}

	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("interval must be positive, got %s", d)
		}
		return NewIntervalSchedule(d), nil
	}

	return NewCronSchedule(expr, loc)
}

// MustParseCadence is like ParseCadence but panics on error.
func MustParseCadence(expr string, loc *time.Location) Schedule {
	s, err := ParseCadence(expr, loc)
	if err != nil {
		panic(err)
	}
	return s
}
