package evo

import (
	"log"
	"time"
)

// skipThrottler allows an action at most once every d, skipping the calls in between.
type skipThrottler struct {
	d    time.Duration
	last time.Time
}

func newSkipThrottler(d time.Duration) *skipThrottler {
	tt := &skipThrottler{d: d, last: time.Date(0, 0, 0, 0, 0, 0, 0, time.UTC)}
	return tt
}

func (tt *skipThrottler) ok() bool {
	now := time.Now()
	if now.Before(tt.last.Add(tt.d)) {
		return false
	}

	tt.last = now
	return true
}

// progressLogger logs the progress of an integration towards its target time.
type progressLogger struct {
	throttler *skipThrottler
	start     time.Time
}

func newProgressLogger(every time.Duration) *progressLogger {
	if every <= 0 {
		return &progressLogger{}
	}
	pl := &progressLogger{throttler: newSkipThrottler(every), start: time.Now()}
	// The first call should not log immediately.
	pl.throttler.last = pl.start
	return pl
}

func (pl *progressLogger) log(t, tEnd float64) {
	if pl.throttler == nil || !pl.throttler.ok() {
		return
	}
	log.Printf("t %f/%f elapsed %s", t, tEnd, time.Since(pl.start))
}
