package panel

import "time"

// TimeController derives a panel's evaluation instant from its range. It
// holds no instant of its own: the authoritative value lives in the
// owner's Options and is passed in on every call, and every mutation is
// emitted through the change callback instead of being applied locally.
type TimeController struct {
	rangeSeconds int64
	now          func() time.Time
	onChange     func(*int64)
}

// NewTimeController creates a controller for the given range. now may be
// nil, in which case wall clock is used. onChange receives the new
// instant in epoch milliseconds, or nil when the instant is cleared.
func NewTimeController(rangeSeconds int64, now func() time.Time, onChange func(*int64)) *TimeController {
	if now == nil {
		now = time.Now
	}
	return &TimeController{
		rangeSeconds: rangeSeconds,
		now:          now,
		onChange:     onChange,
	}
}

// SetRange updates the range the shift operations are computed against.
func (tc *TimeController) SetRange(seconds int64) {
	tc.rangeSeconds = seconds
}

// BaseTime returns the current instant in epoch milliseconds, falling
// back to wall clock when none is set.
func (tc *TimeController) BaseTime(current *int64) int64 {
	if current != nil {
		return *current
	}
	return tc.now().UnixMilli()
}

// Increase shifts the instant forward by half the range.
func (tc *TimeController) Increase(current *int64) {
	v := tc.BaseTime(current) + tc.rangeSeconds*1000/2
	tc.onChange(&v)
}

// Decrease shifts the instant backward by half the range.
func (tc *TimeController) Decrease(current *int64) {
	v := tc.BaseTime(current) - tc.rangeSeconds*1000/2
	tc.onChange(&v)
}

// Clear resets the instant to "now at query time".
func (tc *TimeController) Clear() {
	tc.onChange(nil)
}

// PickerChanged forwards a user-driven change from the picker widget.
// User-driven and programmatic changes funnel through the same callback.
func (tc *TimeController) PickerChanged(v *int64) {
	tc.onChange(v)
}
