package language

// #region imports
import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// #endregion

// #region templates

var utteranceTemplates = map[deal.Intent][]string{
	deal.IntentOffer: {
		"I can {role} for {price}.",
		"How about {price}?",
		"I'm thinking {price} for the {item}.",
		"Would you accept {price}?",
		"My offer is {price}.",
	},
	deal.IntentCounter: {
		"I could do {price}.",
		"What about {price} instead?",
		"How about we meet at {price}?",
		"I can go up to {price}.",
		"Let's try {price}.",
	},
	deal.IntentJustify: {
		"That's fair because the MSRP is {msrp}.",
		"I think {price} is reasonable for this {item}.",
		"Given the condition, {price} makes sense.",
		"The market value is around {price}.",
	},
	deal.IntentThreaten: {
		"I might have to walk away if we can't agree.",
		"I have other options if this doesn't work out.",
		"This needs to work or I'll look elsewhere.",
		"I'm not sure we can make a deal here.",
	},
	deal.IntentAccept: {
		"Deal! I accept {price}.",
		"You've got a deal at {price}.",
		"Agreed. {price} it is.",
		"I'll take it for {price}.",
	},
	deal.IntentReject: {
		"I can't do {price}, sorry.",
		"That's too far from what I had in mind.",
		"I'm afraid {price} doesn't work for me.",
		"I'll have to pass on {price}.",
	},
	deal.IntentWalkAway: {
		"I don't think we can reach an agreement.",
		"This isn't going to work out. Thanks anyway.",
		"I'm going to look at other options.",
		"Let's call it here.",
	},
}

var bluffTemplates = map[deal.Intent][]string{
	deal.IntentBluffPuff: {
		"This is {intensifier} my absolute limit.",
		"I {intensifier} can't go any further.",
		"I have another {counterpart} lined up.",
		"This {item} is worth way more than that.",
		"I'm taking a loss at this price already.",
	},
}

// #endregion templates

// #region template-model

// TemplateModel fills fixed phrase templates. Template choice is a pure
// function of the inputs, so one instance can serve concurrent engines and
// seeded runs stay reproducible.
type TemplateModel struct{}

// NewTemplateModel returns the template-backed language model.
func NewTemplateModel() *TemplateModel { return &TemplateModel{} }

// GenerateUtterance renders a phrase for intent at price.
func (m *TemplateModel) GenerateUtterance(intent deal.Intent, price float64, ctx *deal.DealContext, v deal.StateView, role deal.Role) string {
	ts := utteranceTemplates[intent]
	if len(ts) == 0 {
		return fmt.Sprintf("$%.2f", price)
	}
	turn := 0
	if v != nil {
		turn = v.Len()
	}
	tpl := ts[pick(len(ts), string(intent), role.String(), fmt.Sprintf("%.2f", price), fmt.Sprint(turn))]

	verb := "sell"
	if role == deal.Buyer {
		verb = "buy"
	}
	return strings.NewReplacer(
		"{price}", fmt.Sprintf("$%.2f", price),
		"{item}", itemTitle(ctx),
		"{role}", verb,
		"{msrp}", fmt.Sprintf("$%.2f", msrp(ctx)),
	).Replace(tpl)
}

// GenerateBluffText renders a bluff, intensified above 0.4 and 0.7 strength.
func (m *TemplateModel) GenerateBluffText(intent deal.Intent, strength float64, ctx *deal.DealContext, role deal.Role) string {
	ts := bluffTemplates[intent]
	if len(ts) == 0 {
		return "This is my final offer."
	}
	tpl := ts[pick(len(ts), string(intent), role.String(), fmt.Sprintf("%.3f", strength))]

	intensifier := ""
	switch {
	case strength > 0.7:
		intensifier = "absolutely"
	case strength > 0.4:
		intensifier = "really"
	}
	counterpart := "buyer"
	if role == deal.Buyer {
		counterpart = "seller"
	}
	out := strings.NewReplacer(
		"{intensifier}", intensifier,
		"{item}", itemTitle(ctx),
		"{counterpart}", counterpart,
	).Replace(tpl)
	return strings.Join(strings.Fields(out), " ")
}

// ParseHumanInput reads a price and an intent from free text.
func (m *TemplateModel) ParseHumanInput(text string, role deal.Role) (deal.Offer, bool) {
	return ParseText(text, role)
}

// Close is a no-op.
func (m *TemplateModel) Close() error { return nil }

// #endregion template-model

// #region helpers

func pick(n int, parts ...string) int {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return int(h.Sum64() % uint64(n))
}

func itemTitle(ctx *deal.DealContext) string {
	if ctx == nil || ctx.Item().Title == "" {
		return "item"
	}
	return ctx.Item().Title
}

func msrp(ctx *deal.DealContext) float64 {
	if ctx == nil {
		return 0
	}
	return ctx.MSRP()
}

// #endregion helpers
