package daybucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDay_StockholmLateEveningUTC(t *testing.T) {
	b := New("")

	// Stockholm is UTC+1 in winter and UTC+2 in summer.
	winterLate := time.Date(2024, time.January, 10, 23, 0, 0, 0, time.UTC)
	winterEvening := time.Date(2024, time.January, 10, 22, 0, 0, 0, time.UTC)
	summer := time.Date(2024, time.July, 10, 22, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-01-11", b.Key(winterLate, "Europe/Stockholm"))
	assert.Equal(t, "2024-01-10", b.Key(winterEvening, "Europe/Stockholm"))
	assert.Equal(t, "2024-07-11", b.Key(summer, "Europe/Stockholm"))
	assert.Equal(t, "2024-01-10", b.Key(winterLate, "UTC"))
}

func TestLocalDay_MidnightInResolvedZone(t *testing.T) {
	b := New("")
	instant := time.Date(2024, time.March, 3, 23, 30, 0, 0, time.UTC)

	day := b.LocalDay(instant, "America/New_York")
	require.Equal(t, "America/New_York", day.Location().String())
	assert.Equal(t, 0, day.Hour())
	assert.Equal(t, 0, day.Minute())
	assert.Equal(t, 0, day.Second())
	assert.Equal(t, 3, day.Day())

	again := b.LocalDay(instant, "America/New_York")
	assert.True(t, day.Equal(again))
}

func TestResolve_Order(t *testing.T) {
	t.Setenv("TZ", "")

	b := New("Asia/Tokyo")
	assert.Equal(t, "Europe/Rome", b.Resolve("Europe/Rome").String())
	assert.Equal(t, "Asia/Tokyo", b.Resolve("").String())
	assert.Equal(t, "Asia/Tokyo", b.Resolve("Not/AZone").String())

	assert.Equal(t, FallbackTimeZone, New("").Resolve("").String())
	assert.Equal(t, FallbackTimeZone, New("bogus").Resolve("also-bogus").String())
}

func TestResolve_ProcessTZ(t *testing.T) {
	t.Setenv("TZ", "Australia/Sydney")
	assert.Equal(t, "Australia/Sydney", New("").Resolve("").String())
}
