package panel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(rangeSeconds int64, nowSec int64) (*TimeController, *[]*int64) {
	var changes []*int64
	tc := NewTimeController(rangeSeconds, func() time.Time {
		return time.Unix(nowSec, 0)
	}, func(v *int64) {
		changes = append(changes, v)
	})
	return tc, &changes
}

func TestTimeControllerBaseTime(t *testing.T) {
	tc, _ := newTestController(3600, 1700000000)

	assert.Equal(t, int64(1700000000000), tc.BaseTime(nil))

	pinned := int64(1600000000000)
	assert.Equal(t, pinned, tc.BaseTime(&pinned))
}

func TestTimeControllerShiftsByHalfRange(t *testing.T) {
	tc, changes := newTestController(3600, 1700000000)
	pinned := int64(1700000000000)

	tc.Increase(&pinned)
	require.Len(t, *changes, 1)
	require.NotNil(t, (*changes)[0])
	assert.Equal(t, pinned+1800_000, *(*changes)[0])

	tc.Decrease(&pinned)
	require.Len(t, *changes, 2)
	require.NotNil(t, (*changes)[1])
	assert.Equal(t, pinned-1800_000, *(*changes)[1])
}

func TestTimeControllerIncreaseDecreaseInverse(t *testing.T) {
	tc, changes := newTestController(600, 1700000000)
	pinned := int64(1700000000000)

	tc.Increase(&pinned)
	shifted := (*changes)[0]
	require.NotNil(t, shifted)
	tc.Decrease(shifted)

	require.Len(t, *changes, 2)
	require.NotNil(t, (*changes)[1])
	assert.Equal(t, pinned, *(*changes)[1])
}

func TestTimeControllerShiftFromWallClock(t *testing.T) {
	tc, changes := newTestController(600, 1700000000)

	tc.Decrease(nil)
	require.Len(t, *changes, 1)
	require.NotNil(t, (*changes)[0])
	assert.Equal(t, int64(1700000000000-300_000), *(*changes)[0])
}

func TestTimeControllerClearEmitsNil(t *testing.T) {
	tc, changes := newTestController(600, 1700000000)

	tc.Clear()
	require.Len(t, *changes, 1)
	assert.Nil(t, (*changes)[0])
}

func TestTimeControllerSetRange(t *testing.T) {
	tc, changes := newTestController(600, 1700000000)
	tc.SetRange(7200)
	pinned := int64(1700000000000)

	tc.Increase(&pinned)
	require.Len(t, *changes, 1)
	assert.Equal(t, pinned+3600_000, *(*changes)[0])
}

func TestTimeControllerPickerChangeForwarded(t *testing.T) {
	tc, changes := newTestController(600, 1700000000)

	picked := int64(1234567890000)
	tc.PickerChanged(&picked)
	require.Len(t, *changes, 1)
	require.NotNil(t, (*changes)[0])
	assert.Equal(t, picked, *(*changes)[0])

	tc.PickerChanged(nil)
	require.Len(t, *changes, 2)
	assert.Nil(t, (*changes)[1])
}

func TestParseModeRoundTrip(t *testing.T) {
	for _, mode := range []Mode{ModeTable, ModeGraph} {
		parsed, err := ParseMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}

	_, err := ParseMode("pie")
	assert.Error(t, err)
}

func TestRelevantChange(t *testing.T) {
	base := Options{Expr: "up", Mode: ModeGraph, RangeSeconds: 3600}
	end := int64(1700000000000)
	res := int64(15)

	tests := []struct {
		name   string
		mutate func(*Options)
		want   bool
	}{
		{"identical", func(o *Options) {}, false},
		{"expr", func(o *Options) { o.Expr = "rate(up[5m])" }, true},
		{"mode", func(o *Options) { o.Mode = ModeTable }, true},
		{"range", func(o *Options) { o.RangeSeconds = 600 }, true},
		{"end time set", func(o *Options) { o.EndTime = &end }, true},
		{"resolution set", func(o *Options) { o.ResolutionSeconds = &res }, true},
		{"stacked only", func(o *Options) { o.Stacked = true }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base
			tt.mutate(&next)
			assert.Equal(t, tt.want, relevantChange(base, next))
		})
	}
}

func TestRelevantChangeComparesPointerValues(t *testing.T) {
	a := int64(1700000000000)
	b := int64(1700000000000)
	prev := Options{Expr: "up", EndTime: &a}
	next := Options{Expr: "up", EndTime: &b}

	assert.False(t, relevantChange(prev, next), "equal instants behind distinct pointers are not a change")
}
