package window

import (
	"time"

	"github.com/de-tools/billing-extract/pkg/models/domain"
)

// Granularity is the metering granularity; windows always start and end on
// its boundaries.
const Granularity = time.Hour

// FallbackLookback bounds the first-ever window when no cursor exists yet.
const FallbackLookback = 21 * 24 * time.Hour

// CatchUpSteps caps how many granularity units a catch-up run may cover,
// which bounds the per-run load on the metering API.
const CatchUpSteps = 24

// Mode selects how far a single run is allowed to advance.
type Mode string

const (
	// ModeSingleStep processes exactly one granularity unit.
	ModeSingleStep Mode = "single-step"
	// ModeCatchUp processes up to CatchUpSteps units in one run.
	ModeCatchUp Mode = "catch-up"
)

// Plan computes the next window to process. last is the persisted cursor
// (nil on the first-ever run). The returned bool is false when there is
// nothing new to do, which is a normal outcome, not an error.
//
// The window is half-open: the end of this run's window becomes the exact
// start of the next run's window.
func Plan(last *time.Time, now time.Time, mode Mode) (domain.Window, bool) {
	start := fallbackEpoch(now)
	if last != nil {
		start = last.UTC()
	}

	end := now.UTC().Truncate(Granularity)
	if !end.After(start) {
		return domain.Window{}, false
	}

	switch mode {
	case ModeSingleStep:
		step := start.Add(Granularity)
		if end.Before(step) {
			return domain.Window{}, false
		}
		end = step
	default:
		step := start.Add(CatchUpSteps * Granularity)
		if step.Before(end) {
			end = step
		}
	}

	return domain.Window{Start: start, End: end}, true
}

func fallbackEpoch(now time.Time) time.Time {
	return now.UTC().Add(-FallbackLookback).Truncate(Granularity)
}
