package opponent

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// #region model

// Reservation learning constants.
const (
	firstBuyerFactor  = 1.2
	firstSellerFactor = 0.8
	emaAlpha          = 0.3
	emaBuyerFactor    = 1.1
	emaSellerFactor   = 0.9
)

// Model is one role's running estimate of its counterpart. It is updated
// only by offers from the modeled role.
type Model struct {
	modeled deal.Role

	reservation   float64
	target        float64
	aggression    float64
	riskTolerance float64
	truthfulness  float64
	observedTrust float64

	totalMoves      int
	totalConcession float64
	bluffAttempts   int
	detectedBluffs  int
}

// NewModel returns neutral estimates about the modeled role.
func NewModel(modeled deal.Role) *Model {
	return &Model{
		modeled:       modeled,
		aggression:    0.5,
		riskTolerance: 0.5,
		truthfulness:  0.8,
		observedTrust: 1.0,
	}
}

// #endregion model

// #region update

// Update folds one observed offer into the estimates. The offer must already
// be in v. Offers from any other role are ignored.
func (m *Model) Update(o deal.Offer, v deal.StateView) {
	if o.Role != m.modeled {
		return
	}
	m.totalMoves++
	m.updateReservation(o.Price)
	m.updateAggression(o, v)
	if o.IsBluff {
		m.bluffAttempts++
	}
	m.observedTrust = v.Trust(m.modeled.Opposite())
}

func (m *Model) updateReservation(price float64) {
	if m.totalMoves == 1 {
		if m.modeled == deal.Buyer {
			m.reservation = price * firstBuyerFactor
		} else {
			m.reservation = price * firstSellerFactor
		}
		return
	}
	factor := emaSellerFactor
	if m.modeled == deal.Buyer {
		factor = emaBuyerFactor
	}
	m.reservation = emaAlpha*(price*factor) + (1-emaAlpha)*m.reservation
}

func (m *Model) updateAggression(o deal.Offer, v deal.StateView) {
	offers := v.OffersFrom(m.modeled)
	if len(offers) < 2 || m.totalMoves < 2 {
		return
	}
	m.totalConcession += o.ConcessionAmount(offers[len(offers)-2])
	avg := m.AverageConcession()
	switch {
	case avg < 5.0:
		m.aggression = 0.8
	case avg > 20.0:
		m.aggression = 0.3
	default:
		m.aggression = 0.5
	}
}

// RecordBluffDetection counts a caught bluff and lowers estimated
// truthfulness by 0.1, never below 0.1.
func (m *Model) RecordBluffDetection() {
	m.detectedBluffs++
	m.truthfulness = math.Max(0.1, m.truthfulness-0.1)
}

// #endregion update

// #region queries

func (m *Model) Modeled() deal.Role              { return m.modeled }
func (m *Model) EstimatedTarget() float64        { return m.target }
func (m *Model) EstimatedAggression() float64    { return m.aggression }
func (m *Model) EstimatedRiskTolerance() float64 { return m.riskTolerance }
func (m *Model) EstimatedTruthfulness() float64  { return m.truthfulness }
func (m *Model) ObservedTrust() float64          { return m.observedTrust }
func (m *Model) TotalMoves() int                 { return m.totalMoves }

// EstimatedReservationPrice is the current reservation estimate, 0 before
// any observation.
func (m *Model) EstimatedReservationPrice() float64 { return m.reservation }

// EstimatedReservation reports the estimate once at least one offer has
// been seen.
func (m *Model) EstimatedReservation() (float64, bool) {
	return m.reservation, m.totalMoves > 0
}

// AverageConcession is total concession over moves after the first.
func (m *Model) AverageConcession() float64 {
	if m.totalMoves <= 1 {
		return 0
	}
	return m.totalConcession / float64(m.totalMoves-1)
}

// DetectionRate is detected/attempted bluffs, 0 with no attempts.
func (m *Model) DetectionRate() float64 {
	if m.bluffAttempts == 0 {
		return 0
	}
	return float64(m.detectedBluffs) / float64(m.bluffAttempts)
}

// EstimatedZOPA is the overlap between myReservation and the estimated
// counterpart reservation, never negative.
func (m *Model) EstimatedZOPA(myReservation float64) float64 {
	if m.modeled == deal.Buyer {
		return math.Max(0, m.reservation-myReservation)
	}
	return math.Max(0, myReservation-m.reservation)
}

// PredictNextOffer extrapolates the modeled role's last price by its
// average concession, or returns the target estimate with no history.
func (m *Model) PredictNextOffer(v deal.StateView) float64 {
	last, ok := v.LastOfferFrom(m.modeled)
	if !ok {
		return m.target
	}
	if m.modeled == deal.Buyer {
		return last.Price + m.AverageConcession()
	}
	return last.Price - m.AverageConcession()
}

func (m *Model) String() string {
	return fmt.Sprintf("OpponentModel{%s: reserv=$%.2f, aggr=%.2f, truth=%.2f}",
		m.modeled, m.reservation, m.aggression, m.truthfulness)
}

// #endregion queries

// #region snapshot

// Snapshot is a plain copy of a model for export and persistence.
type Snapshot struct {
	Modeled           deal.Role `json:"modeled" yaml:"modeled"`
	Reservation       float64   `json:"estimated_reservation" yaml:"estimated_reservation"`
	Target            float64   `json:"estimated_target" yaml:"estimated_target"`
	Aggression        float64   `json:"estimated_aggression" yaml:"estimated_aggression"`
	RiskTolerance     float64   `json:"estimated_risk_tolerance" yaml:"estimated_risk_tolerance"`
	Truthfulness      float64   `json:"estimated_truthfulness" yaml:"estimated_truthfulness"`
	ObservedTrust     float64   `json:"observed_trust" yaml:"observed_trust"`
	TotalMoves        int       `json:"total_moves" yaml:"total_moves"`
	AverageConcession float64   `json:"average_concession" yaml:"average_concession"`
	BluffAttempts     int       `json:"bluff_attempts" yaml:"bluff_attempts"`
	DetectedBluffs    int       `json:"detected_bluffs" yaml:"detected_bluffs"`
}

func (m *Model) Snapshot() Snapshot {
	return Snapshot{
		Modeled:           m.modeled,
		Reservation:       m.reservation,
		Target:            m.target,
		Aggression:        m.aggression,
		RiskTolerance:     m.riskTolerance,
		Truthfulness:      m.truthfulness,
		ObservedTrust:     m.observedTrust,
		TotalMoves:        m.totalMoves,
		AverageConcession: m.AverageConcession(),
		BluffAttempts:     m.bluffAttempts,
		DetectedBluffs:    m.detectedBluffs,
	}
}

// #endregion snapshot
