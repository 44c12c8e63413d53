// Package daybucket maps instants to local calendar days.
package daybucket

import (
	"os"
	"sync"
	"time"

	// Embedded zoneinfo keeps resolution independent of the host.
	_ "time/tzdata"
)

// FallbackTimeZone is used when neither the hint nor any process default resolves.
const FallbackTimeZone = "Europe/Stockholm"

// Layout is the canonical textual form of a local day.
const Layout = "2006-01-02"

// Bucketer resolves timezones and truncates instants to local midnight.
// It is safe for concurrent use.
type Bucketer struct {
	defaultZone string
	locations   sync.Map // name -> *time.Location, nil for unknown names
}

// New creates a Bucketer. defaultZone may be empty, in which case the
// process TZ variable and then FallbackTimeZone are used.
func New(defaultZone string) *Bucketer {
	return &Bucketer{defaultZone: defaultZone}
}

// LocalDay converts instant into the resolved timezone and returns midnight of
// the wall-clock day it reads there. Truncation happens in the same location.
func (b *Bucketer) LocalDay(instant time.Time, hint string) time.Time {
	loc := b.Resolve(hint)
	local := instant.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Key returns the YYYY-MM-DD form of the local day of instant.
func (b *Bucketer) Key(instant time.Time, hint string) string {
	return b.LocalDay(instant, hint).Format(Layout)
}

// Resolve picks the location for a hint: hint, configured default, TZ, fallback.
func (b *Bucketer) Resolve(hint string) *time.Location {
	for _, name := range []string{hint, b.defaultZone, os.Getenv("TZ"), FallbackTimeZone} {
		if loc := b.lookup(name); loc != nil {
			return loc
		}
	}
	return time.UTC
}

func (b *Bucketer) lookup(name string) *time.Location {
	if name == "" || name == "Local" {
		return nil
	}
	if cached, ok := b.locations.Load(name); ok {
		loc, _ := cached.(*time.Location)
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = nil
	}
	b.locations.Store(name, loc)
	return loc
}
