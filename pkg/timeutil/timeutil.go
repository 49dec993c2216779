// Package timeutil provides the clock used by the scheduler and the jobs,
// plus small formatting helpers for dates printed on certificates.
// FakeClock lets tests move time by hand.
package timeutil

import (
	"sync"
	"time"
)

// IssueDateLayout is the dd-mm-YYYY layout printed on certificates and offer letters.
const IssueDateLayout = "02-01-2006"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock backed by time.Now in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// NewSystemClock returns a clock that reports time in loc (UTC when nil).
func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return SystemClock{Location: loc}
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// FakeClock is a manually advanced Clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a FakeClock set to t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// LoadLocation resolves a timezone name, falling back to UTC for empty or unknown names.
func LoadLocation(name string) *time.Location {
	if name == "" || name == "UTC" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FormatIssueDate formats t as dd-mm-YYYY.
func FormatIssueDate(t time.Time) string {
	return t.Format(IssueDateLayout)
}

// DaysBetween returns the number of whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
