package panel

import (
	"encoding/json"
	"fmt"
)

// Mode selects how a panel evaluates and presents its query.
type Mode int

const (
	// ModeTable evaluates the expression at a single instant.
	ModeTable Mode = iota
	// ModeGraph evaluates the expression over the panel's range.
	ModeGraph
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeTable:
		return "table"
	case ModeGraph:
		return "graph"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses a wire-format mode name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "table":
		return ModeTable, nil
	case "graph":
		return ModeGraph, nil
	}
	return 0, fmt.Errorf("unknown panel mode %q", s)
}

// MarshalJSON implements json.Marshaler.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Mode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Options holds the externally controlled inputs of a panel. The instant
// and step fields are nil when the panel should fall back to wall-clock
// "now" and automatic resolution respectively.
type Options struct {
	Expr              string `json:"expr"`
	Mode              Mode   `json:"mode"`
	RangeSeconds      int64  `json:"range"`
	EndTime           *int64 `json:"endTime"`    // milliseconds since epoch
	ResolutionSeconds *int64 `json:"resolution"` // seconds
	Stacked           bool   `json:"stacked"`
}

// relevantChange reports whether an options update must trigger a new
// query. Stacked is display-only and never re-executes.
func relevantChange(prev, next Options) bool {
	return prev.Expr != next.Expr ||
		prev.Mode != next.Mode ||
		prev.RangeSeconds != next.RangeSeconds ||
		!int64PtrEqual(prev.EndTime, next.EndTime) ||
		!int64PtrEqual(prev.ResolutionSeconds, next.ResolutionSeconds)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
