// Package metrics implements the windowed trajectory-metrics arithmetic of
// spec.md §4.D: comparison deltas, the two-proportion z-test, and confidence
// intervals. This is the one component built directly on the standard
// library's math package rather than a pack dependency — no example repo in
// the retrieved set exposes a statistical z-test helper, so there is nothing
// idiomatic to adapt here (see DESIGN.md).
package metrics

import (
	"context"
	"math"
	"time"

	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/agentlightning/promptctl/pkg/store"
)

// Config holds the thresholds spec.md §4.D/§6 names for this service.
type Config struct {
	MinSampleSize         int
	BaselineWindowMinutes int
}

// DefaultConfig matches the defaults in spec.md §4.D/§6.
func DefaultConfig() Config {
	return Config{MinSampleSize: 50, BaselineWindowMinutes: 60}
}

// Service captures and compares trajectory metric windows.
type Service struct {
	store store.Store
	cfg   Config
}

// New constructs a Service.
func New(st store.Store, cfg Config) *Service {
	return &Service{store: st, cfg: cfg}
}

// CaptureBaseline captures an agent's trajectory metrics over the preceding
// BaselineWindowMinutes, ending at now.
func (s *Service) CaptureBaseline(ctx context.Context, agentID string, now time.Time) (models.MetricsWindow, error) {
	start := now.Add(-time.Duration(s.cfg.BaselineWindowMinutes) * time.Minute)
	return s.store.GetTrajectoryMetrics(ctx, agentID, start, now)
}

// CaptureWindow captures a version's trajectory metrics over [start, end).
func (s *Service) CaptureWindow(ctx context.Context, versionID string, start, end time.Time) (models.MetricsWindow, error) {
	return s.store.GetVersionMetrics(ctx, versionID, start, end)
}

// relativeChange implements spec.md §4.D's Δ = (after-before)/before rule,
// with the before=0 fallback of 1 (if after>0) or 0 (if after is also 0).
func relativeChange(before, after float64) float64 {
	if before > 0 {
		return (after - before) / before
	}
	if after > 0 {
		return 1
	}
	return 0
}

// CompareMetrics builds the MetricsComparison between a baseline and a
// post-deployment window, per spec.md §4.D.
func (s *Service) CompareMetrics(before, after models.MetricsWindow) models.MetricsComparison {
	cmp := models.MetricsComparison{
		Before:               before,
		After:                after,
		SuccessRateChange:    relativeChange(before.SuccessRate, after.SuccessRate),
		EfficiencyChange:     relativeChange(before.AvgEfficiency, after.AvgEfficiency),
		ErrorRateChange:      relativeChange(before.ErrorRate, after.ErrorRate),
		SampleSizeSufficient: after.TrajectoryCount >= s.cfg.MinSampleSize,
	}

	z := twoProportionZ(before.SuccessRate, before.TrajectoryCount, after.SuccessRate, after.TrajectoryCount)
	cmp.ZScore = z
	cmp.StatisticallySignificant = before.TrajectoryCount >= 30 && after.TrajectoryCount >= 30 && math.Abs(z) > 1.96
	return cmp
}

// twoProportionZ computes the two-proportion z-statistic for p1 (n1) vs p2
// (n2), per spec.md §4.D. Returns 0 if either sample is empty or the pooled
// variance is zero (both proportions 0 or both 1).
func twoProportionZ(p1 float64, n1 int, p2 float64, n2 int) float64 {
	if n1 == 0 || n2 == 0 {
		return 0
	}
	nf1, nf2 := float64(n1), float64(n2)
	pPool := (p1*nf1 + p2*nf2) / (nf1 + nf2)
	se := math.Sqrt(pPool * (1 - pPool) * (1/nf1 + 1/nf2))
	if se == 0 {
		return 0
	}
	return math.Abs(p1-p2) / se
}

var zForLevel = map[float64]float64{
	0.90: 1.645,
	0.95: 1.96,
	0.99: 2.576,
}

// ConfidenceInterval computes a two-sided bound on a proportion metric p
// over n samples at the given confidence level (one of 0.90, 0.95, 0.99),
// clamped to [0, 1].
func ConfidenceInterval(p float64, n int, level float64) models.ConfidenceInterval {
	z, ok := zForLevel[level]
	if !ok {
		z = zForLevel[0.95]
		level = 0.95
	}
	if n == 0 {
		return models.ConfidenceInterval{Level: level, Lower: 0, Upper: 0}
	}
	se := math.Sqrt(p * (1 - p) / float64(n))
	lower := clamp01(p - z*se)
	upper := clamp01(p + z*se)
	return models.ConfidenceInterval{Level: level, Lower: lower, Upper: upper}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// WeightedTrend aggregates a series of windows into a single window whose
// rate fields are means weighted by each window's TrajectoryCount, per
// spec.md §4.D's trend-aggregation note.
func WeightedTrend(windows []models.MetricsWindow) models.MetricsWindow {
	var totalCount int
	var successSum, effSum, errSum, stepsSum, durSum float64
	for _, w := range windows {
		weight := float64(w.TrajectoryCount)
		totalCount += w.TrajectoryCount
		successSum += w.SuccessRate * weight
		effSum += w.AvgEfficiency * weight
		errSum += w.ErrorRate * weight
		stepsSum += w.AvgSteps * weight
		durSum += w.AvgDurationMs * weight
	}
	if totalCount == 0 {
		return models.MetricsWindow{}
	}
	n := float64(totalCount)
	out := models.MetricsWindow{
		SuccessRate:     successSum / n,
		AvgEfficiency:   effSum / n,
		ErrorRate:       errSum / n,
		AvgSteps:        stepsSum / n,
		AvgDurationMs:   durSum / n,
		TrajectoryCount: totalCount,
	}
	if len(windows) > 0 {
		out.Period = models.Period{Start: windows[0].Period.Start, End: windows[len(windows)-1].Period.End}
	}
	return out
}
