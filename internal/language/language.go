// Package language turns negotiation moves into text and free text into
// moves. The template model is local and deterministic; the gRPC and
// Gemini models call out and fall back to templates on any failure.
package language

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/dealdialect/internal/engine"
)

// Backend names a language model implementation.
const (
	BackendTemplate = "template"
	BackendGRPC     = "grpc"
	BackendGemini   = "gemini"
)

// Model is a LanguageModel that may hold a connection.
type Model interface {
	engine.LanguageModel
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend      string
	GRPCAddr     string
	GeminiAPIKey string
	GeminiModel  string
	Timeout      time.Duration
}

// Open builds the model named by opts.Backend. An empty backend means
// templates.
func Open(ctx context.Context, opts Options, log zerolog.Logger) (Model, error) {
	switch opts.Backend {
	case "", BackendTemplate:
		return NewTemplateModel(), nil
	case BackendGRPC:
		if opts.GRPCAddr == "" {
			return nil, fmt.Errorf("grpc backend: address is required")
		}
		return NewGRPCModel(opts.GRPCAddr, opts.Timeout, log)
	case BackendGemini:
		if opts.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini backend: api key is required")
		}
		model := opts.GeminiModel
		if model == "" {
			model = "gemini-2.5-flash"
		}
		return NewGeminiModel(ctx, opts.GeminiAPIKey, model, opts.Timeout, log)
	}
	return nil, fmt.Errorf("unknown language backend %q", opts.Backend)
}
