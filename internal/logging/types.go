package logging

import "time"

// #region event-kinds
const (
	KindOffer         = "offer"
	KindBluffDetected = "bluff_detected"
	KindOutcome       = "outcome"
)

// #endregion event-kinds

// #region event-entry
// EventEntry is a single row in the episode_events table.
type EventEntry struct {
	ID          string
	EpisodeID   string
	Kind        string // "offer" | "bluff_detected" | "outcome"
	Role        string
	Round       int
	Price       float64
	Intent      string
	Confidence  float64
	PayloadJSON string
	CreatedAt   time.Time
}

// #endregion event-entry

// #region event-payload
// OfferPayload is serialized into episode_events.payload_json for offer and
// detection events so an episode can be audited move by move.
type OfferPayload struct {
	Utterance     string  `json:"utterance"`
	IsBluff       bool    `json:"is_bluff"`
	BluffStrength float64 `json:"bluff_strength,omitempty"`

	// Trust levels after the event was applied
	BuyerTrust  float64 `json:"buyer_trust"`
	SellerTrust float64 `json:"seller_trust"`
}

// #endregion event-payload
