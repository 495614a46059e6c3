package deal

import (
	"fmt"
	"math"
	"time"
)

// #region item

// Item is the thing under negotiation.
type Item struct {
	Title        string  `json:"title" yaml:"title"`
	Category     string  `json:"category,omitempty" yaml:"category,omitempty"`
	Description  string  `json:"description,omitempty" yaml:"description,omitempty"`
	ListingPrice float64 `json:"listing_price,omitempty" yaml:"listing_price,omitempty"`
}

// #endregion item

// #region deal-context

// DealContext is the per-episode configuration. It is immutable after
// construction; the engine owns it for the episode lifetime.
type DealContext struct {
	item          Item
	msrp          float64
	buyerValue    float64
	sellerCost    float64
	timeLimit     int
	startTime     time.Time
	allowBluffing bool
	allowPuffing  bool
}

// ContextOption configures a DealContext at construction.
type ContextOption func(*DealContext)

// WithItem attaches the item being negotiated.
func WithItem(it Item) ContextOption {
	return func(c *DealContext) { c.item = it }
}

// WithBluffing sets whether bluffing is permitted.
func WithBluffing(allow bool) ContextOption {
	return func(c *DealContext) { c.allowBluffing = allow }
}

// WithPuffing sets whether strong puffing (>0.3 strength) is permitted.
func WithPuffing(allow bool) ContextOption {
	return func(c *DealContext) { c.allowPuffing = allow }
}

// WithStartTime overrides the episode start time.
func WithStartTime(t time.Time) ContextOption {
	return func(c *DealContext) { c.startTime = t }
}

// NewDealContext builds a context. Bluffing and puffing default to allowed.
// A time limit below one round is raised to one.
func NewDealContext(msrp, buyerValue, sellerCost float64, timeLimit int, opts ...ContextOption) *DealContext {
	if timeLimit < 1 {
		timeLimit = 1
	}
	c := &DealContext{
		msrp:          msrp,
		buyerValue:    buyerValue,
		sellerCost:    sellerCost,
		timeLimit:     timeLimit,
		startTime:     time.Now().UTC(),
		allowBluffing: true,
		allowPuffing:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *DealContext) Item() Item           { return c.item }
func (c *DealContext) MSRP() float64        { return c.msrp }
func (c *DealContext) BuyerValue() float64  { return c.buyerValue }
func (c *DealContext) SellerCost() float64  { return c.sellerCost }
func (c *DealContext) TimeLimit() int       { return c.timeLimit }
func (c *DealContext) StartTime() time.Time { return c.startTime }
func (c *DealContext) AllowBluffing() bool  { return c.allowBluffing }
func (c *DealContext) AllowPuffing() bool   { return c.allowPuffing }

// HasBATNA reports whether a zone of possible agreement exists.
func (c *DealContext) HasBATNA() bool {
	return c.buyerValue >= c.sellerCost
}

// ZOPASize is max(0, buyerValue - sellerCost).
func (c *DealContext) ZOPASize() float64 {
	return math.Max(0, c.buyerValue-c.sellerCost)
}

// Reservation is the role's own walk-away bound: buyer ceiling, seller floor.
func (c *DealContext) Reservation(r Role) float64 {
	if r == Buyer {
		return c.buyerValue
	}
	return c.sellerCost
}

// Target is the role's anchoring reference, the counterpart's bound.
func (c *DealContext) Target(r Role) float64 {
	return c.Reservation(r.Opposite())
}

// TimePressure is round / timeLimit.
func (c *DealContext) TimePressure(round int) float64 {
	return float64(round) / float64(c.timeLimit)
}

func (c *DealContext) String() string {
	title := c.item.Title
	if title == "" {
		title = "item"
	}
	return fmt.Sprintf("DealContext{item=%s, MSRP=%.2f, buyerValue=%.2f, sellerCost=%.2f, ZOPA=%.2f}",
		title, c.msrp, c.buyerValue, c.sellerCost, c.ZOPASize())
}

// #endregion deal-context
