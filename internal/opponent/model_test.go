package opponent

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

func observe(t *testing.T, m *Model, s *deal.DialogueState, o deal.Offer) {
	t.Helper()
	stored := s.Append(o)
	s.NextRound()
	m.Update(stored, s)
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewModelDefaults(t *testing.T) {
	m := NewModel(deal.Seller)
	if m.EstimatedAggression() != 0.5 || m.EstimatedRiskTolerance() != 0.5 {
		t.Fatalf("unexpected defaults: %s", m)
	}
	if m.EstimatedTruthfulness() != 0.8 || m.ObservedTrust() != 1.0 {
		t.Fatalf("unexpected defaults: %s", m)
	}
	if _, ok := m.EstimatedReservation(); ok {
		t.Fatal("no estimate before the first offer")
	}
}

func TestReservationLearning(t *testing.T) {
	tests := []struct {
		name    string
		modeled deal.Role
		prices  []float64
		want    float64
	}{
		{"buyer-first", deal.Buyer, []float64{500}, 600},
		{"seller-first", deal.Seller, []float64{1000}, 800},
		{"buyer-ema", deal.Buyer, []float64{500, 550}, 0.3*605 + 0.7*600},
		{"seller-ema", deal.Seller, []float64{1000, 950}, 0.3*855 + 0.7*800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(tt.modeled)
			s := deal.NewDialogueState()
			for _, p := range tt.prices {
				observe(t, m, s, deal.NewOffer(tt.modeled, p, "", deal.IntentCounter))
			}
			got, ok := m.EstimatedReservation()
			if !ok || !approx(got, tt.want) {
				t.Errorf("reservation = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIgnoresOtherRole(t *testing.T) {
	m := NewModel(deal.Seller)
	s := deal.NewDialogueState()
	observe(t, m, s, deal.NewOffer(deal.Buyer, 500, "", deal.IntentCounter))
	if m.TotalMoves() != 0 {
		t.Fatalf("buyer offer updated a seller model: %d moves", m.TotalMoves())
	}
}

func TestAggressionFromConcessions(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"stubborn", []float64{1000, 998, 996}, 0.8},
		{"moderate", []float64{1000, 990, 980}, 0.5},
		{"soft", []float64{1000, 950, 900}, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(deal.Seller)
			s := deal.NewDialogueState()
			for _, p := range tt.prices {
				observe(t, m, s, deal.NewOffer(deal.Seller, p, "", deal.IntentCounter))
			}
			if got := m.EstimatedAggression(); got != tt.want {
				t.Errorf("aggression = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredictNextOffer(t *testing.T) {
	m := NewModel(deal.Seller)
	s := deal.NewDialogueState()
	if m.PredictNextOffer(s) != 0 {
		t.Fatal("expected target estimate with no history")
	}
	observe(t, m, s, deal.NewOffer(deal.Seller, 1000, "", deal.IntentCounter))
	observe(t, m, s, deal.NewOffer(deal.Seller, 970, "", deal.IntentCounter))
	if got := m.PredictNextOffer(s); !approx(got, 940) {
		t.Fatalf("prediction = %v, want 940", got)
	}
}

func TestEstimatedZOPA(t *testing.T) {
	buyer := NewModel(deal.Buyer)
	s := deal.NewDialogueState()
	observe(t, buyer, s, deal.NewOffer(deal.Buyer, 750, "", deal.IntentCounter))
	// estimate 900
	if got := buyer.EstimatedZOPA(700); !approx(got, 200) {
		t.Errorf("buyer zopa = %v", got)
	}
	if got := buyer.EstimatedZOPA(950); got != 0 {
		t.Errorf("non-overlap must be 0, got %v", got)
	}
}

func TestBluffTracking(t *testing.T) {
	m := NewModel(deal.Seller)
	s := deal.NewDialogueState()
	if m.DetectionRate() != 0 {
		t.Fatal("detection rate without attempts must be 0")
	}
	observe(t, m, s, deal.NewBluff(deal.Seller, 1000, "", 0.5))
	observe(t, m, s, deal.NewBluff(deal.Seller, 990, "", 0.5))
	m.RecordBluffDetection()
	if got := m.DetectionRate(); got != 0.5 {
		t.Fatalf("detection rate = %v", got)
	}
	for i := 0; i < 20; i++ {
		m.RecordBluffDetection()
	}
	if got := m.EstimatedTruthfulness(); !approx(got, 0.1) {
		t.Fatalf("truthfulness floor = %v", got)
	}
}

func TestObservedTrustTracksModeler(t *testing.T) {
	m := NewModel(deal.Seller)
	s := deal.NewDialogueState()
	s.SetTrust(deal.Buyer, 0.6)
	observe(t, m, s, deal.NewOffer(deal.Seller, 1000, "", deal.IntentCounter))
	if m.ObservedTrust() != 0.6 {
		t.Fatalf("observed trust = %v", m.ObservedTrust())
	}
	snap := m.Snapshot()
	if snap.Modeled != deal.Seller || snap.ObservedTrust != 0.6 || snap.TotalMoves != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}
