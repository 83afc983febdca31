// Package review implements offline playback of a completed session: the
// saved snapshot document, the cross-listener average trend, and the scrub
// synchronizer keeping the audio head and the chart cursor in agreement.
package review

import (
	"math"
	"sort"
	"time"

	"github.com/script-narration/backend/internal/models"
)

// TrendPoint is one averaged value on the fixed time grid.
type TrendPoint struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
}

// Series groups samples by listener, each series sorted by relative time.
// Within one listener the log is already ordered; across listeners it is not.
func Series(samples []models.FeedbackSample) map[string][]models.FeedbackSample {
	out := make(map[string][]models.FeedbackSample)
	for _, s := range samples {
		out[s.UserID] = append(out[s.UserID], s)
	}
	for id := range out {
		series := out[id]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].RelativeTime < series[j].RelativeTime
		})
	}
	return out
}

// AverageTrend computes the cross-listener mean on a fixed grid from 0 to
// the maximum observed time. At each grid point every listener contributes
// their latest sample at or before that point (carry-forward, not
// interpolation); listeners with no sample yet are excluded, and grid points
// with zero contributors are omitted entirely.
//
// The trend always uses all listeners: visibility toggles are a presentation
// filter and never change this computation.
func AverageTrend(samples []models.FeedbackSample, step time.Duration) []TrendPoint {
	if len(samples) == 0 || step <= 0 {
		return nil
	}

	series := Series(samples)
	maxTime := 0.0
	for _, s := range samples {
		if s.RelativeTime > maxTime {
			maxTime = s.RelativeTime
		}
	}

	stepSec := step.Seconds()
	idx := make(map[string]int, len(series))
	var points []TrendPoint

	// Integer-indexed grid: accumulating t += stepSec drifts and can drop
	// the final point covering maxTime.
	steps := int(math.Ceil(maxTime/stepSec - 1e-9))
	for i := 0; i <= steps; i++ {
		t := float64(i) * stepSec
		sum := 0.0
		n := 0
		for id, sr := range series {
			j := idx[id]
			for j < len(sr) && sr[j].RelativeTime <= t {
				j++
			}
			idx[id] = j
			if j == 0 {
				continue // no sample yet at t
			}
			sum += sr[j-1].Value
			n++
		}
		if n == 0 {
			continue
		}
		points = append(points, TrendPoint{Time: t, Value: sum / float64(n)})
	}
	return points
}

// VisibilityFilter hides listener series from rendering. It filters what is
// drawn, never what is aggregated.
type VisibilityFilter struct {
	hidden map[string]bool
}

// NewVisibilityFilter creates a filter with every series visible.
func NewVisibilityFilter() *VisibilityFilter {
	return &VisibilityFilter{hidden: make(map[string]bool)}
}

// Toggle flips visibility for one listener and reports the new state.
func (f *VisibilityFilter) Toggle(userID string) (visible bool) {
	f.hidden[userID] = !f.hidden[userID]
	return !f.hidden[userID]
}

// Visible reports whether the listener's series is shown.
func (f *VisibilityFilter) Visible(userID string) bool {
	return !f.hidden[userID]
}

// Apply returns only the visible series.
func (f *VisibilityFilter) Apply(series map[string][]models.FeedbackSample) map[string][]models.FeedbackSample {
	out := make(map[string][]models.FeedbackSample, len(series))
	for id, sr := range series {
		if !f.hidden[id] {
			out[id] = sr
		}
	}
	return out
}
