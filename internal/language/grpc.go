package language

// #region imports
import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// #endregion

// #region methods
const (
	methodGenerateUtterance = "/dealdialect.language.v1.LanguageService/GenerateUtterance"
	methodGenerateBluffText = "/dealdialect.language.v1.LanguageService/GenerateBluffText"
	methodParseHumanInput   = "/dealdialect.language.v1.LanguageService/ParseHumanInput"
)

// DefaultTimeout bounds a single language RPC.
const DefaultTimeout = 5 * time.Second

// #endregion methods

// #region client-struct
// GRPCModel delegates phrasing and parsing to a remote language service.
// Requests and replies are google.protobuf.Struct messages. Any RPC failure
// falls back to the local templates so a negotiation never stalls on text.
type GRPCModel struct {
	conn     *grpc.ClientConn
	cc       grpc.ClientConnInterface
	timeout  time.Duration
	fallback *TemplateModel
	log      zerolog.Logger
}

// #endregion client-struct

// #region constructor
// NewGRPCModel connects to the language service at addr.
func NewGRPCModel(addr string, timeout time.Duration, log zerolog.Logger) (*GRPCModel, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	m := NewGRPCModelWithConn(conn, timeout, log)
	m.conn = conn
	return m, nil
}

// NewGRPCModelWithConn wraps an existing connection. Used for testing
// without a real server.
func NewGRPCModelWithConn(cc grpc.ClientConnInterface, timeout time.Duration, log zerolog.Logger) *GRPCModel {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GRPCModel{
		cc:       cc,
		timeout:  timeout,
		fallback: NewTemplateModel(),
		log:      log.With().Str("component", "language.grpc").Logger(),
	}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection if this model opened it.
func (m *GRPCModel) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}

// #endregion close

// #region generate
// GenerateUtterance asks the service to phrase a move.
func (m *GRPCModel) GenerateUtterance(intent deal.Intent, price float64, ctx *deal.DealContext, v deal.StateView, role deal.Role) string {
	turn := 0
	if v != nil {
		turn = v.Len()
	}
	req := map[string]any{
		"intent": string(intent),
		"price":  price,
		"role":   role.String(),
		"item":   itemTitle(ctx),
		"msrp":   msrp(ctx),
		"turn":   turn,
	}
	text, err := m.text(methodGenerateUtterance, req)
	if err != nil || text == "" {
		m.warn(err, methodGenerateUtterance)
		return m.fallback.GenerateUtterance(intent, price, ctx, v, role)
	}
	return text
}

// GenerateBluffText asks the service to phrase a bluff.
func (m *GRPCModel) GenerateBluffText(intent deal.Intent, strength float64, ctx *deal.DealContext, role deal.Role) string {
	req := map[string]any{
		"intent":   string(intent),
		"strength": strength,
		"role":     role.String(),
		"item":     itemTitle(ctx),
	}
	text, err := m.text(methodGenerateBluffText, req)
	if err != nil || text == "" {
		m.warn(err, methodGenerateBluffText)
		return m.fallback.GenerateBluffText(intent, strength, ctx, role)
	}
	return text
}

// #endregion generate

// #region parse
// ParseHumanInput asks the service to read a human message. The reply
// carries ok, intent and an optional price.
func (m *GRPCModel) ParseHumanInput(text string, role deal.Role) (deal.Offer, bool) {
	reply, err := m.invoke(methodParseHumanInput, map[string]any{"text": text, "role": role.String()})
	if err != nil {
		m.warn(err, methodParseHumanInput)
		return m.fallback.ParseHumanInput(text, role)
	}
	f := reply.GetFields()
	if !f["ok"].GetBoolValue() {
		return deal.Offer{}, false
	}
	intent, err := deal.ParseIntent(f["intent"].GetStringValue())
	if err != nil {
		m.warn(err, methodParseHumanInput)
		return m.fallback.ParseHumanInput(text, role)
	}
	return deal.NewOffer(role, f["price"].GetNumberValue(), text, intent), true
}

// #endregion parse

// #region rpc
func (m *GRPCModel) invoke(method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	reply := &structpb.Struct{}
	if err := m.cc.Invoke(ctx, method, req, reply); err != nil {
		return nil, fmt.Errorf("%s rpc: %w", method, err)
	}
	return reply, nil
}

func (m *GRPCModel) text(method string, fields map[string]any) (string, error) {
	reply, err := m.invoke(method, fields)
	if err != nil {
		return "", err
	}
	return reply.GetFields()["text"].GetStringValue(), nil
}

func (m *GRPCModel) warn(err error, method string) {
	ev := m.log.Warn().Str("method", method)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("language service unavailable, using templates")
}

// #endregion rpc
