package store

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// ErrNotFound is returned when an episode ID has no row.
var ErrNotFound = errors.New("episode not found")

// HumanProfile names the side a person played. It gets no profile memory.
const HumanProfile = "human"

// #region episode-record
// EpisodeRecord is one finished negotiation as persisted.
type EpisodeRecord struct {
	ID        string
	CreatedAt time.Time

	BuyerProfile  string
	SellerProfile string
	Seed          uint64

	MSRP       float64
	BuyerValue float64
	SellerCost float64
	TimeLimit  int
	Item       deal.Item

	Outcome     string // "AGREEMENT" | "NO_DEAL" | "ACTIVE"
	DealPrice   *float64
	Rounds      int
	BuyerTrust  float64
	SellerTrust float64
	MetricsJSON string

	// Offers is only populated by GetEpisode.
	Offers []deal.Offer
}

// Context rebuilds the deal context the episode ran under.
func (r EpisodeRecord) Context() *deal.DealContext {
	return deal.NewDealContext(r.MSRP, r.BuyerValue, r.SellerCost, r.TimeLimit, deal.WithItem(r.Item))
}

// #endregion episode-record

// #region profile-outcome
// ProfileOutcome is one side's result in one episode. Quality is the share
// of the ZOPA the side captured, 0 on no deal.
type ProfileOutcome struct {
	EpisodeID string
	Profile   string
	Role      deal.Role
	Quality   float64
	Agreed    bool
	CreatedAt time.Time
}

// #endregion profile-outcome
