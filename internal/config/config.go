// Package config loads DealDialect settings from a YAML/TOML file and
// DEALDIALECT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
	"github.com/danielpatrickdp/dealdialect/internal/language"
	"github.com/danielpatrickdp/dealdialect/internal/logging"
	"github.com/danielpatrickdp/dealdialect/internal/sim"
	"github.com/danielpatrickdp/dealdialect/internal/strategy"
)

// EnvPrefix is prepended to every environment override, e.g.
// DEALDIALECT_DEAL_MSRP or DEALDIALECT_LANGUAGE_BACKEND.
const EnvPrefix = "DEALDIALECT"

// #region types

// Config is the full application configuration.
type Config struct {
	Deal         DealConfig         `mapstructure:"deal"`
	Buyer        AgentConfig        `mapstructure:"buyer"`
	Seller       AgentConfig        `mapstructure:"seller"`
	Truthfulness TruthfulnessConfig `mapstructure:"truthfulness"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Store        StoreConfig        `mapstructure:"store"`
	Log          LogConfig          `mapstructure:"log"`
	Language     LanguageConfig     `mapstructure:"language"`
	Sim          sim.Config         `mapstructure:"sim"`
}

// DealConfig describes the item and both reservation prices.
type DealConfig struct {
	MSRP          float64    `mapstructure:"msrp"`
	BuyerValue    float64    `mapstructure:"buyer_value"`
	SellerCost    float64    `mapstructure:"seller_cost"`
	TimeLimit     int        `mapstructure:"time_limit"`
	AllowBluffing bool       `mapstructure:"allow_bluffing"`
	AllowPuffing  bool       `mapstructure:"allow_puffing"`
	Item          ItemConfig `mapstructure:"item"`
}

type ItemConfig struct {
	Title       string `mapstructure:"title"`
	Category    string `mapstructure:"category"`
	Description string `mapstructure:"description"`
}

// AgentConfig picks a built-in profile and optionally overrides its knobs.
// Unset overrides keep the profile's values.
type AgentConfig struct {
	Profile          string   `mapstructure:"profile"`
	Aggression       *float64 `mapstructure:"aggression"`
	RiskAversion     *float64 `mapstructure:"risk_aversion"`
	Curve            *string  `mapstructure:"curve"`
	ConcessionRate   *float64 `mapstructure:"concession_rate"`
	BluffProbability *float64 `mapstructure:"bluff_probability"`
	MaxBluffStrength *float64 `mapstructure:"max_bluff_strength"`
}

// TruthfulnessConfig tunes bluff detection. UseBeliefs scores offers
// against the detector's modeled reservation instead of the true bound.
type TruthfulnessConfig struct {
	DetectionSensitivity float64 `mapstructure:"detection_sensitivity"`
	TrustDecayRate       float64 `mapstructure:"trust_decay_rate"`
	UseBeliefs           bool    `mapstructure:"use_beliefs"`
}

// EngineConfig seeds the engine. Seed 0 means a time-based seed.
type EngineConfig struct {
	Seed  uint64 `mapstructure:"seed"`
	First string `mapstructure:"first"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

type LanguageConfig struct {
	Backend      string        `mapstructure:"backend"`
	GRPCAddr     string        `mapstructure:"grpc_addr"`
	GeminiModel  string        `mapstructure:"gemini_model"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// #endregion types

// #region load

func setDefaults(v *viper.Viper) {
	v.SetDefault("deal.msrp", 1000.0)
	v.SetDefault("deal.buyer_value", 900.0)
	v.SetDefault("deal.seller_cost", 700.0)
	v.SetDefault("deal.time_limit", 20)
	v.SetDefault("deal.allow_bluffing", true)
	v.SetDefault("deal.allow_puffing", true)
	v.SetDefault("deal.item.title", "item")
	v.SetDefault("deal.item.category", "")
	v.SetDefault("deal.item.description", "")

	v.SetDefault("buyer.profile", "balanced")
	v.SetDefault("seller.profile", "balanced")

	v.SetDefault("truthfulness.detection_sensitivity", 0.7)
	v.SetDefault("truthfulness.trust_decay_rate", 0.02)
	v.SetDefault("truthfulness.use_beliefs", false)

	v.SetDefault("engine.seed", 0)
	v.SetDefault("engine.first", "BUYER")

	v.SetDefault("store.path", "dealdialect.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("language.backend", language.BackendTemplate)
	v.SetDefault("language.grpc_addr", "")
	v.SetDefault("language.gemini_model", "gemini-2.5-flash")
	v.SetDefault("language.gemini_api_key", "")
	v.SetDefault("language.timeout", language.DefaultTimeout)

	def := sim.DefaultConfig()
	v.SetDefault("sim.iterations", def.Iterations)
	v.SetDefault("sim.concurrency", def.Concurrency)
	v.SetDefault("sim.time_limit", def.TimeLimit)
	v.SetDefault("sim.msrp_min", def.MSRPMin)
	v.SetDefault("sim.msrp_max", def.MSRPMax)
	v.SetDefault("sim.seed", def.Seed)
	v.SetDefault("sim.detection_sensitivity", def.DetectionSensitivity)
	v.SetDefault("sim.trust_decay_rate", def.TrustDecayRate)
	v.SetDefault("sim.use_beliefs", def.UseBeliefs)
}

// Load reads path (YAML or TOML by extension) over the defaults, then
// applies environment overrides. An empty path searches ./dealdialect.*
// and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("dealdialect")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// #endregion load

// #region validate

// Validate checks ranges and names that would otherwise fail later.
func (c *Config) Validate() error {
	var errs []error
	if c.Deal.MSRP <= 0 {
		errs = append(errs, fmt.Errorf("deal.msrp must be positive, got %v", c.Deal.MSRP))
	}
	if c.Deal.BuyerValue < 0 || c.Deal.SellerCost < 0 {
		errs = append(errs, fmt.Errorf("deal reservation prices must not be negative"))
	}
	if c.Deal.TimeLimit < 1 {
		errs = append(errs, fmt.Errorf("deal.time_limit must be at least 1, got %d", c.Deal.TimeLimit))
	}
	for name, a := range map[string]AgentConfig{"buyer": c.Buyer, "seller": c.Seller} {
		if _, err := a.ToProfile(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if s := c.Truthfulness.DetectionSensitivity; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("truthfulness.detection_sensitivity must be in [0,1], got %v", s))
	}
	if _, err := deal.ParseRole(c.Engine.First); err != nil {
		errs = append(errs, fmt.Errorf("engine.first: %w", err))
	}
	switch c.Language.Backend {
	case language.BackendTemplate, language.BackendGRPC, language.BackendGemini:
	default:
		errs = append(errs, fmt.Errorf("language.backend: unknown backend %q", c.Language.Backend))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Sim.MSRPMax < c.Sim.MSRPMin {
		errs = append(errs, fmt.Errorf("sim.msrp_max %v below sim.msrp_min %v", c.Sim.MSRPMax, c.Sim.MSRPMin))
	}
	return errors.Join(errs...)
}

// #endregion validate

// #region accessors

// ToProfile resolves the named profile and applies any overrides.
func (a AgentConfig) ToProfile() (strategy.Profile, error) {
	p, err := strategy.LookupProfile(a.Profile)
	if err != nil {
		return strategy.Profile{}, err
	}
	overrides := false
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
			overrides = true
		}
	}
	set(&p.Aggression, a.Aggression)
	set(&p.RiskAversion, a.RiskAversion)
	set(&p.ConcessionRate, a.ConcessionRate)
	set(&p.BluffProbability, a.BluffProbability)
	set(&p.MaxBluffStrength, a.MaxBluffStrength)
	if a.Curve != nil {
		c, err := strategy.ParseCurve(*a.Curve)
		if err != nil {
			return strategy.Profile{}, err
		}
		p.Curve = c
		overrides = true
	}
	if overrides {
		p.Name += "+custom"
	}
	return p, nil
}

// Agent returns the configured profile for r.
func (c *Config) Agent(r deal.Role) (strategy.Profile, error) {
	if r == deal.Seller {
		return c.Seller.ToProfile()
	}
	return c.Buyer.ToProfile()
}

// DealContext builds the configured deal.
func (c *Config) DealContext() *deal.DealContext {
	d := c.Deal
	item := deal.Item{Title: d.Item.Title, Category: d.Item.Category, Description: d.Item.Description, ListingPrice: d.MSRP}
	return deal.NewDealContext(d.MSRP, d.BuyerValue, d.SellerCost, d.TimeLimit,
		deal.WithItem(item),
		deal.WithBluffing(d.AllowBluffing),
		deal.WithPuffing(d.AllowPuffing),
	)
}

// TruthfulnessPolicy builds the configured detector.
func (c *Config) TruthfulnessPolicy() *strategy.DefaultTruthfulnessPolicy {
	p := strategy.NewTruthfulnessPolicy(c.Truthfulness.DetectionSensitivity, c.Truthfulness.TrustDecayRate)
	p.UseBeliefs = c.Truthfulness.UseBeliefs
	return p
}

// FirstMover is the role that opens the episode.
func (c *Config) FirstMover() deal.Role {
	r, _ := deal.ParseRole(c.Engine.First)
	return r
}

func (c *Config) LanguageOptions() language.Options {
	return language.Options{
		Backend:      c.Language.Backend,
		GRPCAddr:     c.Language.GRPCAddr,
		GeminiAPIKey: c.Language.GeminiAPIKey,
		GeminiModel:  c.Language.GeminiModel,
		Timeout:      c.Language.Timeout,
	}
}

func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Pretty: c.Log.Format == "console"}
}

// #endregion accessors
