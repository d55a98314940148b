package scoring

import (
	"math"
	"testing"
	"time"

	"relaydesk/pkg/models"
)

func conv(id int64, msgs int, lastMsgNS int64) *models.Conversation {
	return &models.Conversation{
		ID:            id,
		State:         models.StateQueued,
		MessageCount:  msgs,
		LastMessageTS: lastMsgNS,
		CreatedTS:     1,
	}
}

func TestNormalizeFallsBackToDefault(t *testing.T) {
	cases := []Weights{
		{Alpha: 0, Beta: 0},
		{Alpha: -1, Beta: 1},
		{Alpha: math.NaN(), Beta: 0.5},
		{Alpha: math.Inf(1), Beta: 0.5},
	}
	for _, w := range cases {
		got := Normalize(w)
		if got != DefaultWeights {
			t.Fatalf("Normalize(%+v) = %+v, want default", w, got)
		}
	}
}

func TestNormalizeSumsToOne(t *testing.T) {
	got := Normalize(Weights{Alpha: 2, Beta: 2})
	if got.Alpha != 0.5 || got.Beta != 0.5 {
		t.Fatalf("Normalize(2,2) = %+v, want {0.5 0.5}", got)
	}
	got = Normalize(Weights{Alpha: 4, Beta: 1})
	if got.Alpha != 0.8 || got.Beta != 0.2 {
		t.Fatalf("Normalize(4,1) = %+v, want {0.8 0.2}", got)
	}
}

func TestRankScaledWeightsEquivalent(t *testing.T) {
	now := time.Unix(1000, 0)
	build := func() []*models.Conversation {
		return []*models.Conversation{
			conv(1, 10, now.Add(-time.Minute).UnixNano()),
			conv(2, 3, now.Add(-time.Hour).UnixNano()),
			conv(3, 7, now.Add(-10*time.Minute).UnixNano()),
		}
	}
	a := Rank(build(), Normalize(Weights{Alpha: 2, Beta: 2}), now)
	b := Rank(build(), Normalize(Weights{Alpha: 0.5, Beta: 0.5}), now)
	for i := range a {
		if a[i].Conversation.ID != b[i].Conversation.ID {
			t.Fatalf("order diverged at %d: %d vs %d", i, a[i].Conversation.ID, b[i].Conversation.ID)
		}
		if math.Abs(a[i].Score-b[i].Score) > 1e-12 {
			t.Fatalf("score diverged at %d: %v vs %v", i, a[i].Score, b[i].Score)
		}
	}
}

func TestRankMessageHeavyWinsUnderAlpha(t *testing.T) {
	now := time.Unix(1000, 0)
	busy := conv(1, 50, now.Add(-time.Minute).UnixNano())
	stale := conv(2, 1, now.Add(-2*time.Hour).UnixNano())

	ranked := Rank([]*models.Conversation{stale, busy}, Weights{Alpha: 1, Beta: 0}, now)
	if ranked[0].Conversation.ID != busy.ID {
		t.Fatalf("alpha-only rank put %d first, want %d", ranked[0].Conversation.ID, busy.ID)
	}

	ranked = Rank([]*models.Conversation{stale, busy}, Weights{Alpha: 0, Beta: 1}, now)
	if ranked[0].Conversation.ID != stale.ID {
		t.Fatalf("beta-only rank put %d first, want %d", ranked[0].Conversation.ID, stale.ID)
	}
}

func TestRankTieBreaksByNewestActivity(t *testing.T) {
	now := time.Unix(1000, 0)
	// message-heavy but fresh vs message-light but stale: under the even
	// blend both normalize to alpha*1 + beta*0 = beta*1 + alpha*0 = 0.5,
	// leaving activity recency as the only discriminator
	fresh := conv(1, 10, now.Add(-time.Minute).UnixNano())
	stale := conv(2, 0, now.Add(-time.Hour).UnixNano())

	ranked := Rank([]*models.Conversation{stale, fresh}, DefaultWeights, now)
	if ranked[0].Score != ranked[1].Score {
		t.Fatalf("fixture must tie: %v vs %v", ranked[0].Score, ranked[1].Score)
	}
	if ranked[0].Conversation.ID != fresh.ID {
		t.Fatalf("tie-break put %d first, want newest activity %d", ranked[0].Conversation.ID, fresh.ID)
	}
}

func TestRankZeroRangeScoresZero(t *testing.T) {
	now := time.Unix(1000, 0)
	ts := now.Add(-time.Minute).UnixNano()
	ranked := Rank([]*models.Conversation{conv(1, 4, ts), conv(2, 4, ts)}, DefaultWeights, now)
	for _, r := range ranked {
		if r.Score != 0 {
			t.Fatalf("identical candidates should score 0, got %v", r.Score)
		}
	}
}

func TestRankEmptyInput(t *testing.T) {
	if got := Rank(nil, DefaultWeights, time.Now()); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestActivityTSPrefersLastMessage(t *testing.T) {
	c := conv(1, 1, 500)
	c.CreatedTS = 900
	if c.ActivityTS() != 900 {
		t.Fatalf("ActivityTS = %d, want created ts 900", c.ActivityTS())
	}
	c.LastMessageTS = 1200
	if c.ActivityTS() != 1200 {
		t.Fatalf("ActivityTS = %d, want last message ts 1200", c.ActivityTS())
	}
}
