package panel

import "github.com/vjranagit/promdash/pkg/types"

// QueryParams are the derived parameters a query was actually issued with,
// all in epoch seconds.
type QueryParams struct {
	Start int64 `json:"startTime"`
	End   int64 `json:"endTime"`
	Step  int64 `json:"resolution"`
}

// Stats describes the outcome of the last successful query.
type Stats struct {
	LoadTimeMs        int64 `json:"loadTime"`
	ResolutionSeconds int64 `json:"resolution"`
	ResultSeriesCount int   `json:"resultSeriesCount"`
}

// State is the render state of a panel, owned and mutated only by its
// Coordinator. Data and LastParams always change together: they describe
// the last successful query and survive later failures, so stale results
// stay visible while a fresh error is shown.
type State struct {
	Data       *types.QueryData `json:"data"`
	LastParams *QueryParams     `json:"lastQueryParams"`
	Loading    bool             `json:"loading"`
	Err        string           `json:"error,omitempty"`
	Stats      *Stats           `json:"stats"`
}
