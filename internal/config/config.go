// Package config provides centralized configuration for the SDK.
// It uses envconfig for environment variable loading and validator for
// validation, so hosts can configure the client either programmatically or
// through MIMIR_-prefixed environment variables.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	// DefaultAPI is the base URL for control-plane POST endpoints.
	DefaultAPI = "https://api.mimirapi.com/v1"

	// DefaultAPIForDownloadConfigSpecs is the CDN base for rule downloads.
	DefaultAPIForDownloadConfigSpecs = "https://cdn.mimirapi.com/v1"

	// Sync interval defaults and floors. The floors protect the control
	// plane from hosts that set aggressive intervals in config.
	DefaultRulesetsSyncInterval = 10 * time.Second
	MinRulesetsSyncInterval     = 5 * time.Second
	DefaultIDListsSyncInterval  = 60 * time.Second
	MinIDListsSyncInterval      = 30 * time.Second
)

// ID-list initialization strategies.
const (
	IDListsStrategyAwait = "await"
	IDListsStrategyLazy  = "lazy"
	IDListsStrategyNone  = "none"
)

// Options holds the complete SDK configuration.
type Options struct {
	// API is the base URL for POST endpoints (id-list manifests).
	API string `envconfig:"API" default:"https://api.mimirapi.com/v1" validate:"url"`

	// APIForDownloadConfigSpecs overrides the rule-download base URL.
	// Empty falls back to the CDN default.
	APIForDownloadConfigSpecs string `envconfig:"API_FOR_DOWNLOAD_CONFIG_SPECS" validate:"omitempty,url"`

	// BootstrapValues is a raw download_config_specs payload used to seed
	// the store before any network traffic. Ignored when a data adapter is
	// configured.
	BootstrapValues string `envconfig:"BOOTSTRAP_VALUES"`

	// RulesetsSyncInterval is the rule polling period (floor 5s).
	RulesetsSyncInterval time.Duration `envconfig:"RULESETS_SYNC_INTERVAL" default:"10s"`

	// IDListsSyncInterval is the id-list polling period (floor 30s).
	IDListsSyncInterval time.Duration `envconfig:"ID_LISTS_SYNC_INTERVAL" default:"60s"`

	// DisableRulesetsSync turns off the rule poller entirely.
	DisableRulesetsSync bool `envconfig:"DISABLE_RULESETS_SYNC" default:"false"`

	// DisableIDListsSync turns off the id-list poller entirely.
	DisableIDListsSync bool `envconfig:"DISABLE_ID_LISTS_SYNC" default:"false"`

	// IDListsInitStrategy controls the initial id-list fetch: await blocks
	// initialization on it, lazy defers it to the first poll tick, none
	// skips it.
	IDListsInitStrategy string `envconfig:"ID_LISTS_INIT_STRATEGY" default:"await" validate:"oneof=await lazy none"`

	// InitTimeout bounds the synchronous part of initialization.
	// Zero means no bound beyond the caller's context.
	InitTimeout time.Duration `envconfig:"INIT_TIMEOUT" default:"0s"`

	// LocalMode disables all network traffic; only bootstrap values and
	// local overrides serve data.
	LocalMode bool `envconfig:"LOCAL_MODE" default:"false"`

	// Environment is the tier stamped onto users that do not carry one.
	Environment string `envconfig:"ENVIRONMENT" validate:"omitempty,oneof=development staging production"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=json text"`
}

// Load reads configuration from environment variables with the MIMIR prefix
// and normalizes it.
func Load() (*Options, error) {
	opts := &Options{}

	if err := envconfig.Process("MIMIR", opts); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	opts.Normalize()
	return opts, nil
}

// Validate checks the configuration using go-playground/validator.
func (o *Options) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Normalize fills defaults and clamps intervals to their floors.
// Safe to call on zero-valued programmatic options.
func (o *Options) Normalize() {
	if o.API == "" {
		o.API = DefaultAPI
	}
	if o.IDListsInitStrategy == "" {
		o.IDListsInitStrategy = IDListsStrategyAwait
	}
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	if o.LogFormat == "" {
		o.LogFormat = "text"
	}

	if o.RulesetsSyncInterval <= 0 {
		o.RulesetsSyncInterval = DefaultRulesetsSyncInterval
	} else if o.RulesetsSyncInterval < MinRulesetsSyncInterval {
		o.RulesetsSyncInterval = MinRulesetsSyncInterval
	}

	if o.IDListsSyncInterval <= 0 {
		o.IDListsSyncInterval = DefaultIDListsSyncInterval
	} else if o.IDListsSyncInterval < MinIDListsSyncInterval {
		o.IDListsSyncInterval = MinIDListsSyncInterval
	}
}

// DownloadConfigSpecsBase resolves the base URL for rule downloads:
// the explicit override, else the API base when customized, else the CDN.
func (o *Options) DownloadConfigSpecsBase() string {
	if o.APIForDownloadConfigSpecs != "" {
		return o.APIForDownloadConfigSpecs
	}
	if o.API != "" && o.API != DefaultAPI {
		return o.API
	}
	return DefaultAPIForDownloadConfigSpecs
}

// LogConfig logs the effective configuration (without sensitive data).
func (o *Options) LogConfig(log *slog.Logger) {
	log.Info("sdk configuration loaded",
		slog.String("api", o.API),
		slog.String("dcs_base", o.DownloadConfigSpecsBase()),
		slog.Bool("bootstrap_provided", o.BootstrapValues != ""),
		slog.Duration("rulesets_sync_interval", o.RulesetsSyncInterval),
		slog.Duration("id_lists_sync_interval", o.IDListsSyncInterval),
		slog.Bool("rulesets_sync_disabled", o.DisableRulesetsSync),
		slog.Bool("id_lists_sync_disabled", o.DisableIDListsSync),
		slog.String("id_lists_init_strategy", o.IDListsInitStrategy),
		slog.Bool("local_mode", o.LocalMode),
		slog.String("environment", o.Environment),
	)
}
