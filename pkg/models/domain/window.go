package domain

import "time"

// Window is the half-open interval [Start, End) covered by one run. The
// end of one successfully committed window is exactly the start of the
// next; that invariant is what rules out double billing and gaps.
type Window struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the window covers no time at all.
func (w Window) Empty() bool {
	return !w.End.After(w.Start)
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}
