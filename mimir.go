// Package mimir is a server-side feature-gating and experimentation SDK.
// It keeps a local catalog of gates, dynamic configs, experiments and
// layers in sync with the control plane and evaluates them in-process, so
// a gate check is a hash and a few map lookups, never a network call.
//
// Typical use:
//
//	client, err := mimir.NewClient(ctx, os.Getenv("MIMIR_SDK_KEY"), nil)
//	if err != nil { ... }
//	defer client.Shutdown(ctx)
//
//	if client.CheckGate(mimir.User{UserID: "u-42"}, "new_checkout") {
//		// feature path
//	}
package mimir

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/diagnostics"
	"github.com/rafaeljc/mimir/internal/evaluator"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/transport"
)

// Options configures the client; see the field documentation in
// internal/config. A nil Options (or zero fields) means defaults, which
// can also be supplied via MIMIR_-prefixed environment variables using
// OptionsFromEnv.
type Options = config.Options

// User is the entity evaluated against the catalog.
type User = evaluator.User

// EvaluationDetails carries result provenance (reason and timestamps).
type EvaluationDetails = evaluator.Details

// SecondaryExposure records one nested gate consulted during evaluation.
type SecondaryExposure = evaluator.SecondaryExposure

// InitializeResponse is the per-user client bootstrap payload.
type InitializeResponse = evaluator.InitializeResponse

// ProjectionOptions tune GetClientInitializeResponse.
type ProjectionOptions = evaluator.ProjectionOptions

// DataAdapter is an external key/value cache of rule payloads and id
// lists, shared across processes. Known keys: "rulesets", "id_lists",
// "id_list::<name>".
type DataAdapter interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Get(ctx context.Context, key string) (value string, updatedAt int64, err error)
	Set(ctx context.Context, key, value string, updatedAt int64) error
	SupportsPollingUpdatesFor(key string) bool
}

// RulesUpdatedCallback receives the raw rule payload after each successful
// network sync.
type RulesUpdatedCallback = store.RulesUpdatedCallback

// Dependencies carries optional host-supplied collaborators.
type Dependencies struct {
	DataAdapter DataAdapter
	OnRules     RulesUpdatedCallback
	Logger      *slog.Logger
}

// OptionsFromEnv loads Options from MIMIR_-prefixed environment variables.
func OptionsFromEnv() (*Options, error) {
	return config.Load()
}

// Client is the SDK entry point. All methods are safe for concurrent use.
type Client struct {
	opts      *config.Options
	logger    *slog.Logger
	store     *store.Store
	evaluator *evaluator.Evaluator
	diag      *diagnostics.Recorder
}

// NewClient initializes the SDK: seeds the catalog (bootstrap, adapter or
// network per the options), fetches id lists per the configured strategy,
// and starts background polling. The returned client serves checks even if
// seeding failed; evaluations then carry reason "Uninitialized" until a
// sync succeeds.
func NewClient(ctx context.Context, sdkKey string, opts *Options) (*Client, error) {
	return NewClientWithDependencies(ctx, sdkKey, opts, Dependencies{})
}

// NewClientWithDependencies is NewClient with host-supplied collaborators.
func NewClientWithDependencies(ctx context.Context, sdkKey string, opts *Options, deps Dependencies) (*Client, error) {
	if sdkKey == "" {
		return nil, fmt.Errorf("mimir: sdk key is required")
	}

	if opts == nil {
		opts = &Options{}
	}
	opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	log := deps.Logger
	if log == nil {
		log = logger.New(opts)
	}
	opts.LogConfig(log)

	diag := diagnostics.NewRecorder()
	fetcher := transport.NewHTTPFetcher(sdkKey, transport.NewMetadata(logger.Version), opts.InitTimeout, opts.LocalMode)

	st := store.New(sdkKey, opts, store.Dependencies{
		Fetcher:     fetcher,
		DataAdapter: deps.DataAdapter,
		Diagnostics: diag,
		Logger:      log,
		OnRules:     deps.OnRules,
	})

	initCtx := ctx
	if opts.InitTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, opts.InitTimeout)
		defer cancel()
	}
	st.Initialize(initCtx)

	return &Client{
		opts:      opts,
		logger:    log,
		store:     st,
		evaluator: evaluator.New(st, log),
		diag:      diag,
	}, nil
}

// CheckGate reports whether the user passes the named gate.
func (c *Client) CheckGate(user User, name string) bool {
	return c.GetGate(user, name).Value
}

// GetGate evaluates a gate and returns the full result.
func (c *Client) GetGate(user User, name string) FeatureGate {
	defer c.recoverFrom("GetGate")

	result := c.evaluator.CheckGate(c.normalizeUser(user), name)
	return FeatureGate{
		Name:              name,
		Value:             result.Value,
		RuleID:            result.RuleID,
		GroupName:         result.GroupName,
		EvaluationDetails: result.Details,
	}
}

// GetConfig evaluates a dynamic config.
func (c *Client) GetConfig(user User, name string) DynamicConfig {
	defer c.recoverFrom("GetConfig")

	result := c.evaluator.GetConfig(c.normalizeUser(user), name)
	return DynamicConfig{
		Name:              name,
		Value:             asValueMap(result.JSONValue),
		RuleID:            result.RuleID,
		GroupName:         result.GroupName,
		IsExperimentGroup: result.IsExperimentGroup,
		EvaluationDetails: result.Details,
	}
}

// GetExperiment evaluates an experiment. Experiments are dynamic configs
// with group-membership semantics; this is a naming convenience.
func (c *Client) GetExperiment(user User, name string) DynamicConfig {
	return c.GetConfig(user, name)
}

// GetLayer evaluates a layer.
func (c *Client) GetLayer(user User, name string) Layer {
	defer c.recoverFrom("GetLayer")

	result := c.evaluator.GetLayer(c.normalizeUser(user), name)
	return Layer{
		Name:                name,
		Value:               asValueMap(result.JSONValue),
		RuleID:              result.RuleID,
		GroupName:           result.GroupName,
		AllocatedExperiment: result.ConfigDelegate,
		EvaluationDetails:   result.Details,
	}
}

// GetClientInitializeResponse projects the whole catalog, evaluated for
// one user, into a client bootstrap payload. Returns nil until the store
// has data.
func (c *Client) GetClientInitializeResponse(user User, opts ProjectionOptions) *InitializeResponse {
	defer c.recoverFrom("GetClientInitializeResponse")
	return c.evaluator.GetClientInitializeResponse(c.normalizeUser(user), opts, logger.Version)
}

// --- Overrides ----------------------------------------------------------

// OverrideGate pins a gate locally. With no userID the override applies to
// every user; a per-user override always wins over the global one.
func (c *Client) OverrideGate(name string, value bool, userID ...string) {
	c.evaluator.OverrideGate(name, value, userID...)
}

// OverrideConfig pins a config's value map locally.
func (c *Client) OverrideConfig(name string, value map[string]any, userID ...string) {
	c.evaluator.OverrideConfig(name, value, userID...)
}

// OverrideLayer pins a layer's value map locally.
func (c *Client) OverrideLayer(name string, value map[string]any, userID ...string) {
	c.evaluator.OverrideLayer(name, value, userID...)
}

// ClearAllOverrides drops every gate, config and layer override.
func (c *Client) ClearAllOverrides() {
	c.evaluator.ClearAllGateOverrides()
	c.evaluator.ClearAllConfigOverrides()
	c.evaluator.ClearAllLayerOverrides()
}

// --- Lifecycle ----------------------------------------------------------

// ResetSyncTimerIfExited restarts background pollers that appear dead.
// Hosts may call this from request paths as a watchdog; it is cheap and
// idempotent. A non-nil error describes which timers were forced.
func (c *Client) ResetSyncTimerIfExited() error {
	return c.store.ResetSyncTimerIfExited()
}

// Shutdown stops background polling and the data adapter. Evaluations keep
// answering from the last-synced catalog.
func (c *Client) Shutdown(ctx context.Context) {
	c.store.Shutdown(ctx)
}

// --- Internals ----------------------------------------------------------

// normalizeUser stamps the configured environment tier onto users that do
// not carry one.
func (c *Client) normalizeUser(user User) User {
	if c.opts.Environment != "" && user.Environment == nil {
		user.Environment = map[string]string{"tier": c.opts.Environment}
	}
	return user
}

// recoverFrom is the error boundary around public entry points: an
// unexpected panic degrades to the method's zero result instead of
// crashing the host.
func (c *Client) recoverFrom(method string) {
	if r := recover(); r != nil {
		c.logger.Error("unexpected panic in sdk entry point",
			slog.String("method", method),
			slog.Any("panic", r),
		)
	}
}

func asValueMap(value any) map[string]any {
	if m, ok := value.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
