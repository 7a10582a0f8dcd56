package clock

import "time"

// Clock reads wall time.
type Clock struct{}

// NowUnix returns current unix seconds.
func (Clock) NowUnix() int64 {
	return time.Now().Unix()
}

// Fixed is a Clock frozen at one instant, for tests.
type Fixed int64

// NowUnix returns the frozen instant.
func (f Fixed) NowUnix() int64 {
	return int64(f)
}
