package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCadence_Cron(t *testing.T) {
	s, err := ParseCadence("30 18 * * *", time.UTC)
	require.NoError(t, err)

	from := time.Date(2025, 3, 1, 18, 31, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 2, 18, 30, 0, 0, time.UTC), s.Next(from))
	assert.Equal(t, "30 18 * * *", s.String())
}

func TestParseCadence_MonthlyRetention(t *testing.T) {
	s, err := ParseCadence("30 18 1 * *", time.UTC)
	require.NoError(t, err)

	from := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 4, 1, 18, 30, 0, 0, time.UTC), s.Next(from))
}

func TestParseCadence_Location(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	s, err := ParseCadence("0 0 * * *", ist)
	require.NoError(t, err)

	from := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, s.Next(from).Equal(time.Date(2025, 3, 1, 18, 30, 0, 0, time.UTC)), "midnight IST is 18:30 UTC")
}

func TestParseCadence_Interval(t *testing.T) {
	s, err := ParseCadence("@every 60s", nil)
	require.NoError(t, err)

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(time.Minute), s.Next(from))
	assert.Equal(t, "@every 1m0s", s.String())
}

func TestParseCadence_Invalid(t *testing.T) {
	for _, expr := range []string{"", "every day", "61 * * * *", "@every soon", "@every -5s"} {
		_, err := ParseCadence(expr, time.UTC)
		assert.Error(t, err, expr)
	}
	assert.Panics(t, func() { MustParseCadence("bogus", time.UTC) })
}
