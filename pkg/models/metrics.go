package models

// MetricsWindow is a computed (never stored) aggregate of trajectory outcomes
// over a time window.
type MetricsWindow struct {
	SuccessRate     float64 `json:"successRate"`
	AvgEfficiency   float64 `json:"avgEfficiency"`
	ErrorRate       float64 `json:"errorRate"`
	TrajectoryCount int     `json:"trajectoryCount"`
	AvgSteps        float64 `json:"avgSteps"`
	AvgDurationMs   float64 `json:"avgDurationMs"`
	Period          Period  `json:"period"`
}

// MetricsComparison is the relative-change and significance summary between
// a before (baseline) and after (post-deployment) MetricsWindow.
type MetricsComparison struct {
	Before                    MetricsWindow `json:"before"`
	After                     MetricsWindow `json:"after"`
	SuccessRateChange         float64       `json:"successRateChange"`
	EfficiencyChange          float64       `json:"efficiencyChange"`
	ErrorRateChange           float64       `json:"errorRateChange"`
	SampleSizeSufficient      bool          `json:"sampleSizeSufficient"`
	StatisticallySignificant  bool          `json:"statisticallySignificant"`
	ZScore                    float64       `json:"zScore"`
}

// ConfidenceInterval is a two-sided bound on a proportion metric.
type ConfidenceInterval struct {
	Level float64 `json:"level"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}
