package domain

import "time"

// WindowSide holds aggregate statistics of one side of an event window.
type WindowSide struct {
	Start  time.Time
	End    time.Time
	Min    float64 // NaN when the side has no bins
	Max    float64 // NaN when the side has no bins
	Avg    float64 // mean of bin values, smoothing included when relative diff is used
	Stddev float64
	Values []TimeSeriesPoint // one point per bin: (bin start, bin sum)
}

// WindowDiff compares the after side against the before side.
// Rank fields are nil unless rank analysis was requested.
type WindowDiff struct {
	DiffAvg     float64
	DiffMin     float64
	DiffMax     float64
	LenDisc     int      // number of bins in the after side
	RankDisc    *int     // rank at the discount instant
	RankAvg     *float64 // time-averaged rank over the after side
	NPricesDisc *int     // competing prices at the discount instant
	NPricesAvg  *float64 // time-averaged number of competing prices
	RankGain    *int     // rank before discount minus rank at discount
}

// WindowResult is the before/after comparison around an event date.
// Before.End == After.Start == event date.
type WindowResult struct {
	Before WindowSide
	After  WindowSide
	Diff   WindowDiff
}

// RankSummary is the output of a time-averaged rank computation.
type RankSummary struct {
	RankDisc    int
	NPricesDisc int
	RankAvg     float64
	NPricesAvg  float64
	RankGain    *int // nil when rank gain was not requested or no prior price exists
}

// Apply copies the rank fields into a window diff.
func (r *RankSummary) Apply(d *WindowDiff) {
	rankDisc := r.RankDisc
	nDisc := r.NPricesDisc
	rankAvg := r.RankAvg
	nAvg := r.NPricesAvg
	d.RankDisc = &rankDisc
	d.NPricesDisc = &nDisc
	d.RankAvg = &rankAvg
	d.NPricesAvg = &nAvg
	if r.RankGain != nil {
		gain := *r.RankGain
		d.RankGain = &gain
	}
}
