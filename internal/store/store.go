// Package store owns the authoritative in-memory rule catalog and keeps it
// fresh: bootstrap seeding, data-adapter integration, periodic rule and
// id-list polling, and the watchdog that revives quiesced pollers.
//
// Reads are lock-free: the whole catalog lives in one immutable snapshot
// behind an atomic pointer, and every successful update swaps the pointer.
// A reader therefore always observes the four maps and the update timestamp
// advancing together, never a half-installed catalog.
package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rafaeljc/mimir/internal/adapter"
	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/diagnostics"
	"github.com/rafaeljc/mimir/internal/idlist"
	"github.com/rafaeljc/mimir/internal/specs"
	"github.com/rafaeljc/mimir/internal/transport"
	"github.com/rafaeljc/mimir/internal/validation"
)

// SyncOutdatedMax is the quiesce threshold for the poller watchdog and the
// failure-warning throttle window.
const SyncOutdatedMax = 120 * time.Second

// InitReason records where the currently-served catalog came from. It is
// attached to every evaluation's details.
type InitReason string

const (
	ReasonUninitialized InitReason = "Uninitialized"
	ReasonBootstrap     InitReason = "Bootstrap"
	ReasonDataAdapter   InitReason = "DataAdapter"
	ReasonNetwork       InitReason = "Network"
)

// Poller names, used by the watchdog report and metrics labels.
const (
	pollerRulesets = "rulesets"
	pollerIDLists  = "id_lists"
)

// snapshot is one immutable catalog generation.
type snapshot struct {
	gates             map[string]*specs.Spec
	configs           map[string]*specs.Spec
	layers            map[string]*specs.Spec
	experimentToLayer map[string]string
	lastUpdateTime    int64
}

func emptySnapshot() *snapshot {
	return &snapshot{
		gates:             map[string]*specs.Spec{},
		configs:           map[string]*specs.Spec{},
		layers:            map[string]*specs.Spec{},
		experimentToLayer: map[string]string{},
	}
}

// RulesUpdatedCallback is invoked with the raw rule payload and its
// timestamp after each successful network update.
type RulesUpdatedCallback func(rules string, updatedAt int64)

// Store is the spec catalog plus its synchronization machinery.
type Store struct {
	sdkKey      string
	opts        *config.Options
	fetcher     transport.Fetcher
	dataAdapter adapter.DataAdapter
	diag        *diagnostics.Recorder
	logger      *slog.Logger
	onRules     RulesUpdatedCallback

	snap    atomic.Pointer[snapshot]
	idLists *idlist.Registry

	initReason        atomic.Value // InitReason
	initialUpdateTime atomic.Int64
	stopped           atomic.Bool

	// mu serializes catalog commits and poller lifecycle changes; reads
	// never take it.
	mu      sync.Mutex
	pollers map[string]*poller

	syncFailureCount   int
	lastSyncFailureLog time.Time
}

// Dependencies carries the collaborators the store needs. Fetcher is
// mandatory; the rest are optional.
type Dependencies struct {
	Fetcher     transport.Fetcher
	DataAdapter adapter.DataAdapter
	Diagnostics *diagnostics.Recorder
	Logger      *slog.Logger
	OnRules     RulesUpdatedCallback
}

// New constructs an empty store. Call Initialize to seed it and start the
// background pollers.
func New(sdkKey string, opts *config.Options, deps Dependencies) *Store {
	validation.AssertNotNil(opts, "options")
	if deps.Fetcher == nil {
		panic("store: fetcher cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Store{
		sdkKey:      sdkKey,
		opts:        opts,
		fetcher:     deps.Fetcher,
		dataAdapter: deps.DataAdapter,
		diag:        deps.Diagnostics,
		logger:      deps.Logger,
		onRules:     deps.OnRules,
		idLists:     idlist.NewRegistry(),
		pollers:     make(map[string]*poller),
	}
	s.snap.Store(emptySnapshot())
	s.initReason.Store(ReasonUninitialized)
	return s
}

// Initialize runs the seeding protocol: bootstrap payload or data adapter,
// network fallback, the configured id-list strategy, then background
// polling. It never fails the whole client for a seeding error; the store
// simply stays uninitialized and the pollers keep trying.
func (s *Store) Initialize(ctx context.Context) {
	bootstrapped := false

	// Bootstrap and adapter are mutually exclusive; the adapter wins.
	if s.opts.BootstrapValues != "" && s.dataAdapter == nil {
		if err := s.SyncBootstrapValues(ctx, s.opts.BootstrapValues); err != nil {
			s.logger.Error("failed to bootstrap config specs", slog.String("error", err.Error()))
		} else {
			bootstrapped = true
		}
	}

	if s.dataAdapter != nil {
		if s.opts.BootstrapValues != "" {
			s.logger.Warn("bootstrap values ignored because a data adapter is configured")
		}
		if err := s.dataAdapter.Initialize(ctx); err != nil {
			s.logger.Error("data adapter initialization failed", slog.String("error", err.Error()))
		}
	}

	if !bootstrapped {
		if s.dataAdapter != nil {
			s.fetchConfigSpecsFromAdapter(ctx)
		}
		if s.LastUpdateTime() == 0 {
			s.fetchConfigSpecsFromServer(ctx, true)
		}

		if s.LastUpdateTime() == 0 {
			s.initialUpdateTime.Store(-1)
		} else {
			s.initialUpdateTime.Store(s.LastUpdateTime())
		}

		s.initIDLists(ctx)
	}

	s.startPollers()
}

// initIDLists applies the configured initial-fetch strategy.
func (s *Store) initIDLists(ctx context.Context) {
	switch s.opts.IDListsInitStrategy {
	case config.IDListsStrategyNone:
		// Nothing now; the poller owns all future fetches.
	case config.IDListsStrategyLazy:
		// Deferred to the poller's immediate first tick; see startPollers.
	default:
		s.SyncIDLists(ctx)
	}
}

// startPollers launches the rule and id-list pollers, each independently
// disableable.
func (s *Store) startPollers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		return
	}

	if !s.opts.DisableRulesetsSync {
		s.startPollerLocked(pollerRulesets, s.opts.RulesetsSyncInterval, false, func(ctx context.Context) {
			s.SyncValues(ctx)
		})
	}
	if !s.opts.DisableIDListsSync {
		// Lazy strategy runs the first fetch on the poller's first tick
		// instead of during Initialize.
		immediate := s.opts.IDListsInitStrategy == config.IDListsStrategyLazy
		s.startPollerLocked(pollerIDLists, s.opts.IDListsSyncInterval, immediate, func(ctx context.Context) {
			s.SyncIDLists(ctx)
		})
	}
}

// --- Read surface ------------------------------------------------------

// GetGate returns the named gate spec, or nil.
func (s *Store) GetGate(name string) *specs.Spec {
	return s.snap.Load().gates[name]
}

// GetConfig returns the named dynamic config / experiment spec, or nil.
func (s *Store) GetConfig(name string) *specs.Spec {
	return s.snap.Load().configs[name]
}

// GetLayer returns the named layer spec, or nil.
func (s *Store) GetLayer(name string) *specs.Spec {
	return s.snap.Load().layers[name]
}

// GetExperimentLayer returns the layer owning an experiment, if any.
func (s *Store) GetExperimentLayer(experimentName string) (string, bool) {
	layer, ok := s.snap.Load().experimentToLayer[experimentName]
	return layer, ok
}

// GetIDList returns the named segment list, or nil.
func (s *Store) GetIDList(name string) *idlist.List {
	return s.idLists.Get(name)
}

// AllGates returns the gate map of the current snapshot. Callers must
// treat it as read-only.
func (s *Store) AllGates() map[string]*specs.Spec {
	return s.snap.Load().gates
}

// AllConfigs returns the config map of the current snapshot (read-only).
func (s *Store) AllConfigs() map[string]*specs.Spec {
	return s.snap.Load().configs
}

// AllLayers returns the layer map of the current snapshot (read-only).
func (s *Store) AllLayers() map[string]*specs.Spec {
	return s.snap.Load().layers
}

// InitReason reports the provenance of the current catalog.
func (s *Store) InitReason() InitReason {
	return s.initReason.Load().(InitReason)
}

// InitialUpdateTime is the catalog timestamp observed at initialization,
// or -1 when initialization completed without data.
func (s *Store) InitialUpdateTime() int64 {
	return s.initialUpdateTime.Load()
}

// LastUpdateTime is the timestamp of the installed catalog (0 when empty).
func (s *Store) LastUpdateTime() int64 {
	return s.snap.Load().lastUpdateTime
}

// IsServingChecks reports whether the store has ever installed a catalog.
func (s *Store) IsServingChecks() bool {
	return s.LastUpdateTime() > 0
}

// --- Readiness probe ----------------------------------------------------

// Name implements observability.Checker.
func (s *Store) Name() string { return "spec_store" }

// Ready implements observability.Checker.
func (s *Store) Ready(context.Context) error {
	if !s.IsServingChecks() {
		return errNotServing
	}
	return nil
}

// --- Shutdown -----------------------------------------------------------

// Shutdown stops both pollers and the adapter. The store keeps answering
// reads from its last-committed snapshot; in-flight syncs may finish their
// network calls but can no longer commit.
func (s *Store) Shutdown(ctx context.Context) {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	stopped := make([]*poller, 0, len(s.pollers))
	for _, p := range s.pollers {
		p.stop()
		stopped = append(stopped, p)
	}
	s.pollers = make(map[string]*poller)
	s.mu.Unlock()

	for _, p := range stopped {
		p.wait(ctx)
	}

	if s.dataAdapter != nil {
		if err := s.dataAdapter.Shutdown(ctx); err != nil {
			s.logger.Warn("data adapter shutdown failed", slog.String("error", err.Error()))
		}
	}
}
