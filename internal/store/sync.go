package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rafaeljc/mimir/internal/adapter"
	"github.com/rafaeljc/mimir/internal/diagnostics"
	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/specs"
	"github.com/rafaeljc/mimir/internal/transport"
)

var errNotServing = errors.New("store: no rule catalog installed yet")

// SyncValues performs one rule sync cycle: from the adapter when it is the
// polling source, otherwise from the network.
func (s *Store) SyncValues(ctx context.Context) {
	if s.dataAdapter != nil && s.dataAdapter.SupportsPollingUpdatesFor(adapter.KeyRulesets) {
		s.fetchConfigSpecsFromAdapter(ctx)
		return
	}
	s.fetchConfigSpecsFromServer(ctx, false)
}

// SyncBootstrapValues seeds the catalog from a caller-supplied payload.
// Feeding the same payload twice is idempotent: an equal timestamp is not
// rejected, so the second apply reinstalls an identical catalog.
func (s *Store) SyncBootstrapValues(ctx context.Context, payload string) error {
	s.diag.Mark(diagnostics.ContextInitialize, diagnostics.KeyBootstrap, diagnostics.ActionStart, diagnostics.StepProcess, nil, nil)

	updated, err := s.processSpecs([]byte(payload))

	s.diag.Mark(diagnostics.ContextInitialize, diagnostics.KeyBootstrap, diagnostics.ActionEnd, diagnostics.StepProcess, err == nil, nil)

	if err != nil {
		return fmt.Errorf("bootstrap payload rejected: %w", err)
	}
	if updated {
		s.initReason.Store(ReasonBootstrap)
		s.initialUpdateTime.Store(s.LastUpdateTime())
	}

	return nil
}

// fetchConfigSpecsFromServer downloads rules newer than the installed
// catalog and installs them. Failures never propagate; they are counted,
// throttled and logged per the cold-start flag.
func (s *Store) fetchConfigSpecsFromServer(ctx context.Context, coldStart bool) {
	diagContext := diagnostics.ContextConfigSync
	if coldStart {
		diagContext = diagnostics.ContextInitialize
	}

	url := fmt.Sprintf("%s/download_config_specs/%s.json?sinceTime=%d",
		s.opts.DownloadConfigSpecsBase(), s.sdkKey, s.LastUpdateTime())

	s.diag.Mark(diagContext, diagnostics.KeyDownloadConfigSpecs, diagnostics.ActionStart, diagnostics.StepNetworkRequest, nil, nil)
	resp, err := s.fetcher.Get(ctx, url, nil)
	s.diag.Mark(diagContext, diagnostics.KeyDownloadConfigSpecs, diagnostics.ActionEnd, diagnostics.StepNetworkRequest, err == nil, nil)

	if err != nil {
		s.recordSyncFailure(err, coldStart)
		return
	}

	s.diag.Mark(diagContext, diagnostics.KeyDownloadConfigSpecs, diagnostics.ActionStart, diagnostics.StepProcess, nil, nil)
	updated, err := s.processSpecs(resp.Body)
	s.diag.Mark(diagContext, diagnostics.KeyDownloadConfigSpecs, diagnostics.ActionEnd, diagnostics.StepProcess, err == nil, nil)

	if err != nil {
		observability.SyncCycles.WithLabelValues(pollerRulesets, "failure").Inc()
		s.logger.Warn("rule payload rejected", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	s.syncFailureCount = 0
	s.mu.Unlock()

	if !updated {
		observability.SyncCycles.WithLabelValues(pollerRulesets, "no_update").Inc()
		return
	}

	observability.SyncCycles.WithLabelValues(pollerRulesets, "success").Inc()
	s.initReason.Store(ReasonNetwork)

	updatedAt := s.LastUpdateTime()
	if s.onRules != nil {
		s.onRules(string(resp.Body), updatedAt)
	}
	if s.dataAdapter != nil {
		if err := s.dataAdapter.Set(ctx, adapter.KeyRulesets, string(resp.Body), updatedAt); err != nil {
			s.logger.Warn("failed to push rules to data adapter", slog.String("error", err.Error()))
		}
	}
}

// fetchConfigSpecsFromAdapter reads the rulesets key and installs it.
func (s *Store) fetchConfigSpecsFromAdapter(ctx context.Context) {
	s.diag.Mark(diagnostics.ContextConfigSync, diagnostics.KeyDataAdapter, diagnostics.ActionStart, diagnostics.StepProcess, nil, nil)

	value, _, err := s.dataAdapter.Get(ctx, adapter.KeyRulesets)
	if err != nil {
		s.diag.Mark(diagnostics.ContextConfigSync, diagnostics.KeyDataAdapter, diagnostics.ActionEnd, diagnostics.StepProcess, false, nil)
		s.logger.Warn("failed to read rules from data adapter", slog.String("error", err.Error()))
		return
	}
	if value == "" {
		s.diag.Mark(diagnostics.ContextConfigSync, diagnostics.KeyDataAdapter, diagnostics.ActionEnd, diagnostics.StepProcess, false, nil)
		return
	}

	updated, err := s.processSpecs([]byte(value))
	s.diag.Mark(diagnostics.ContextConfigSync, diagnostics.KeyDataAdapter, diagnostics.ActionEnd, diagnostics.StepProcess, err == nil, nil)

	if err != nil {
		s.logger.Warn("adapter rule payload rejected", slog.String("error", err.Error()))
		return
	}
	if updated {
		s.initReason.Store(ReasonDataAdapter)
	}
}

// processSpecs validates and atomically installs one rule payload.
//
// The return value distinguishes "installed" from "valid but not newer"
// (has_updates false, or a timestamp behind the catalog): both leave the
// store untouched, but only the former counts as an update. Any parse or
// spec-construction error rejects the payload wholesale; the previous
// snapshot keeps serving.
func (s *Store) processSpecs(payload []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A sync that raced shutdown must not resurrect the pollers' work.
	if s.stopped.Load() {
		return false, nil
	}

	response, err := specs.ParseDownloadResponse(payload)
	if err != nil {
		return false, err
	}

	if !response.HasUpdates {
		return false, nil
	}

	current := s.snap.Load()
	if response.Time < current.lastUpdateTime {
		return false, nil
	}

	gates, err := specs.ParseSpecList(response.FeatureGates, "feature_gates")
	if err != nil {
		return false, err
	}
	configs, err := specs.ParseSpecList(response.DynamicConfigs, "dynamic_configs")
	if err != nil {
		return false, err
	}
	layers, err := specs.ParseSpecList(response.LayerConfigs, "layer_configs")
	if err != nil {
		return false, err
	}

	next := &snapshot{
		gates:             gates,
		configs:           configs,
		layers:            layers,
		experimentToLayer: specs.InvertLayers(response.Layers),
		lastUpdateTime:    response.Time,
	}
	s.snap.Store(next)

	s.diag.SetSamplingRates(response.Diagnostics)
	observability.CatalogUpdateTime.Set(float64(response.Time))

	return true, nil
}

// recordSyncFailure counts a network failure and decides how loudly to
// report it: local-mode errors are silent, cold-start failures log at
// error level, and steady-state failures warn only once the accumulated
// failed interval crosses the staleness threshold.
func (s *Store) recordSyncFailure(err error, coldStart bool) {
	if errors.Is(err, transport.ErrLocalMode) {
		return
	}

	observability.SyncCycles.WithLabelValues(pollerRulesets, "failure").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncFailureCount++

	if coldStart {
		s.logger.Error("initial config spec fetch failed", slog.String("error", err.Error()))
		return
	}

	accumulated := time.Duration(s.syncFailureCount) * s.opts.RulesetsSyncInterval
	if accumulated > SyncOutdatedMax && time.Since(s.lastSyncFailureLog) > SyncOutdatedMax {
		s.logger.Warn("config specs have not synced successfully past the staleness threshold",
			slog.Int("consecutive_failures", s.syncFailureCount),
			slog.Duration("accumulated", accumulated),
			slog.String("last_error", err.Error()),
		)
		s.lastSyncFailureLog = time.Now()
	}
}
