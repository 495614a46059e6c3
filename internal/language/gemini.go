package language

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// #endregion

const geminiSystemPrompt = `You voice one side of a price negotiation over a second-hand item.
Reply with a single short sentence in plain English. Never reveal private values.`

const geminiParsePrompt = `Classify the negotiation message below. Reply with JSON only:
{"ok": bool, "intent": one of OFFER|COUNTER|JUSTIFY|THREATEN|BLUFF_PUFF|WALK_AWAY|ACCEPT|REJECT|INQUIRE, "price": number or 0}
Set ok=false when the message is neither a price move nor an accept, reject or walk-away.

Message: %s`

// generator is the slice of the genai client this package calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiModel phrases and parses moves with a Gemini model. Failures and
// empty replies fall back to the local templates.
type GeminiModel struct {
	gen      generator
	model    string
	timeout  time.Duration
	fallback *TemplateModel
	log      zerolog.Logger
}

// NewGeminiModel creates a Gemini-backed model using apiKey.
func NewGeminiModel(ctx context.Context, apiKey, model string, timeout time.Duration, log zerolog.Logger) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return newGeminiModel(client.Models, model, timeout, log), nil
}

func newGeminiModel(gen generator, model string, timeout time.Duration, log zerolog.Logger) *GeminiModel {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GeminiModel{
		gen:      gen,
		model:    model,
		timeout:  timeout,
		fallback: NewTemplateModel(),
		log:      log.With().Str("component", "language.gemini").Logger(),
	}
}

// Close is a no-op; the genai client holds no connection.
func (g *GeminiModel) Close() error { return nil }

func (g *GeminiModel) GenerateUtterance(intent deal.Intent, price float64, ctx *deal.DealContext, v deal.StateView, role deal.Role) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the %s of a %s (MSRP $%.2f).\n", strings.ToLower(role.String()), itemTitle(ctx), msrp(ctx))
	if v != nil {
		for _, o := range lastOffers(v, 4) {
			fmt.Fprintf(&sb, "%s: %s\n", strings.ToLower(o.Role.String()), o.Utterance)
		}
	}
	fmt.Fprintf(&sb, "Say your next move. Intent: %s. Price: $%.2f. Mention the price exactly.", intent, price)

	text, err := g.send(sb.String(), "text/plain")
	if err != nil || text == "" {
		g.warn(err, "utterance")
		return g.fallback.GenerateUtterance(intent, price, ctx, v, role)
	}
	return text
}

func (g *GeminiModel) GenerateBluffText(intent deal.Intent, strength float64, ctx *deal.DealContext, role deal.Role) string {
	prompt := fmt.Sprintf("You are the %s of a %s. Bluff that this is your limit with conviction %.0f%%. Do not state a price.",
		strings.ToLower(role.String()), itemTitle(ctx), strength*100)
	text, err := g.send(prompt, "text/plain")
	if err != nil || text == "" {
		g.warn(err, "bluff")
		return g.fallback.GenerateBluffText(intent, strength, ctx, role)
	}
	return text
}

type parsedMove struct {
	OK     bool    `json:"ok"`
	Intent string  `json:"intent"`
	Price  float64 `json:"price"`
}

// ParseHumanInput classifies text with the model, falling back to the
// keyword parser when the reply is missing or malformed.
func (g *GeminiModel) ParseHumanInput(text string, role deal.Role) (deal.Offer, bool) {
	if strings.TrimSpace(text) == "" {
		return deal.Offer{}, false
	}
	raw, err := g.send(fmt.Sprintf(geminiParsePrompt, text), "application/json")
	if err != nil {
		g.warn(err, "parse")
		return g.fallback.ParseHumanInput(text, role)
	}
	var pm parsedMove
	if err := json.Unmarshal([]byte(stripFence(raw)), &pm); err != nil {
		g.warn(fmt.Errorf("decode parse reply: %w", err), "parse")
		return g.fallback.ParseHumanInput(text, role)
	}
	if !pm.OK {
		return deal.Offer{}, false
	}
	intent, err := deal.ParseIntent(pm.Intent)
	if err != nil {
		g.warn(err, "parse")
		return g.fallback.ParseHumanInput(text, role)
	}
	price := pm.Price
	if intent == deal.IntentWalkAway {
		price = 0
	}
	return deal.NewOffer(role, price, strings.TrimSpace(text), intent), true
}

func (g *GeminiModel) send(prompt, mime string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: geminiSystemPrompt}}},
		ResponseMIMEType:  mime,
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}
	resp, err := g.gen.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	return extractText(resp), nil
}

func (g *GeminiModel) warn(err error, op string) {
	ev := g.log.Warn().Str("op", op)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("gemini unavailable, using templates")
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func lastOffers(v deal.StateView, n int) []deal.Offer {
	h := v.History()
	if len(h) > n {
		h = h[len(h)-n:]
	}
	return h
}
