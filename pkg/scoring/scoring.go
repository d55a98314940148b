// Package scoring ranks queued conversations for allocation. The score
// blends two min-max normalized features, message count and activity
// delay, under tenant-configurable weights, so neither raw magnitude can
// dominate the other.
package scoring

import (
	"math"
	"sort"
	"time"

	"relaydesk/pkg/models"
)

// Weights are the tenant-configurable blend factors: Alpha weighs message
// count, Beta weighs elapsed delay since last activity.
type Weights struct {
	Alpha float64 `yaml:"alpha" json:"alpha"`
	Beta  float64 `yaml:"beta" json:"beta"`
}

// DefaultWeights is the even blend used when nothing is configured.
var DefaultWeights = Weights{Alpha: 0.5, Beta: 0.5}

// Normalize re-scales the weights so Alpha+Beta == 1, falling back to
// the even blend when the configured sum is non-positive or non-finite.
func Normalize(w Weights) Weights {
	sum := w.Alpha + w.Beta
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return DefaultWeights
	}
	return Weights{Alpha: w.Alpha / sum, Beta: w.Beta / sum}
}

// Ranked pairs a candidate with its computed score.
type Ranked struct {
	Conversation *models.Conversation
	Score        float64
}

// Rank scores the candidate set and returns it in allocation order:
// descending score, ties broken by most recent activity. Weights must
// already be normalized. The candidate slice is not modified.
func Rank(candidates []*models.Conversation, w Weights, now time.Time) []Ranked {
	if len(candidates) == 0 {
		return nil
	}
	nowNS := now.UnixNano()

	msgs := make([]float64, len(candidates))
	delays := make([]float64, len(candidates))
	for i, c := range candidates {
		msgs[i] = float64(c.MessageCount)
		delays[i] = float64(nowNS - c.ActivityTS())
	}
	normMsgs := minMax(msgs)
	normDelays := minMax(delays)

	out := make([]Ranked, len(candidates))
	for i, c := range candidates {
		out[i] = Ranked{
			Conversation: c,
			Score:        w.Alpha*normMsgs[i] + w.Beta*normDelays[i],
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Conversation.ActivityTS() > out[j].Conversation.ActivityTS()
	})
	return out
}

// minMax normalizes values to [0,1] across the set. A zero range maps
// everything to 0.
func minMax(values []float64) []float64 {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(values))
	if max == min {
		return out
	}
	for i, v := range values {
		out[i] = (v - min) / (max - min)
	}
	return out
}
