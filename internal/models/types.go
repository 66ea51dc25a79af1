package models

import "time"

// SupportedIntervals are the sampling intervals, in minutes, the raw endpoint accepts.
var SupportedIntervals = []int{1, 5, 10, 15, 30, 60}

// IsSupportedInterval reports whether minutes is one of SupportedIntervals.
func IsSupportedInterval(minutes int) bool {
	for _, i := range SupportedIntervals {
		if i == minutes {
			return true
		}
	}
	return false
}

// Asset is a device instance of a thing model.
type Asset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ModelDescriptor describes a device model as enumerated from the Poseidon API.
type ModelDescriptor struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Identifiers []string `json:"identifiers"`
	Assets      []Asset  `json:"assets"`
}

// SeriesCount is the number of point series a single fetch for this model returns.
func (m ModelDescriptor) SeriesCount() int {
	n := len(m.Identifiers) * len(m.Assets)
	if n < 1 {
		return 1
	}
	return n
}

// DataRow is one sample of a model's asset at a point in time
type DataRow struct {
	ModelID   string         `json:"model_id"`
	AssetID   string         `json:"asset_id"`
	AssetName string         `json:"asset_name,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}
