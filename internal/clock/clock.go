package clock

import "time"

// Clock abstracts time.Now so expiry arithmetic is testable.
type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time { return time.Now() }

type Fixed struct {
	t time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{t: t} }

func (f *Fixed) Now() time.Time { return f.t }

// Advance moves the fixed clock forward, for driving expiry in tests.
func (f *Fixed) Advance(d time.Duration) { f.t = f.t.Add(d) }
