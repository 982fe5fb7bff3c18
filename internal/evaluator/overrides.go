package evaluator

import (
	"time"
)

// Overrides pin evaluation results locally, ahead of the catalog. Each
// named override holds per-user entries plus an optional global entry
// under the empty-string key; per-user always wins.

// OverrideGate pins a gate's value. With no userID the override applies to
// every user.
func (e *Evaluator) OverrideGate(name string, value bool, userID ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gateOverrides[name] == nil {
		e.gateOverrides[name] = make(map[string]bool)
	}
	e.gateOverrides[name][overrideKey(userID)] = value
}

// OverrideConfig pins a config's value map.
func (e *Evaluator) OverrideConfig(name string, value map[string]any, userID ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.configOverrides[name] == nil {
		e.configOverrides[name] = make(map[string]map[string]any)
	}
	e.configOverrides[name][overrideKey(userID)] = value
}

// OverrideLayer pins a layer's value map.
func (e *Evaluator) OverrideLayer(name string, value map[string]any, userID ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.layerOverrides[name] == nil {
		e.layerOverrides[name] = make(map[string]map[string]any)
	}
	e.layerOverrides[name][overrideKey(userID)] = value
}

// ClearAllGateOverrides drops every gate override.
func (e *Evaluator) ClearAllGateOverrides() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gateOverrides = make(map[string]map[string]bool)
}

// ClearAllConfigOverrides drops every config override.
func (e *Evaluator) ClearAllConfigOverrides() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configOverrides = make(map[string]map[string]map[string]any)
}

// ClearAllLayerOverrides drops every layer override.
func (e *Evaluator) ClearAllLayerOverrides() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.layerOverrides = make(map[string]map[string]map[string]any)
}

func overrideKey(userID []string) string {
	if len(userID) == 0 {
		return globalOverrideKey
	}
	return userID[0]
}

// lookupGateOverride resolves a gate override for the user, preferring the
// per-user entry over the global one.
func (e *Evaluator) lookupGateOverride(user *User, name string) (*Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entries, ok := e.gateOverrides[name]
	if !ok {
		return nil, false
	}

	value, ok := resolveOverride(entries, user.UserID)
	if !ok {
		return nil, false
	}

	return &Result{
		Value:     value,
		JSONValue: value,
		RuleID:    ruleIDOverride,
		Details:   e.overrideDetails(),
	}, true
}

// lookupValueOverride resolves a config or layer override for the user.
func (e *Evaluator) lookupValueOverride(user *User, name string, overrides map[string]map[string]map[string]any) (*Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entries, ok := overrides[name]
	if !ok {
		return nil, false
	}

	value, ok := resolveOverride(entries, user.UserID)
	if !ok {
		return nil, false
	}

	return &Result{
		Value:     true,
		JSONValue: value,
		RuleID:    ruleIDOverride,
		Details:   e.overrideDetails(),
	}, true
}

// resolveOverride implements the per-user-then-global lookup.
func resolveOverride[V any](entries map[string]V, userID string) (V, bool) {
	if value, ok := entries[userID]; ok {
		return value, true
	}
	value, ok := entries[globalOverrideKey]
	return value, ok
}

func (e *Evaluator) overrideDetails() Details {
	return Details{
		Reason:         ReasonLocalOverride,
		ConfigSyncTime: e.store.LastUpdateTime(),
		InitTime:       e.store.InitialUpdateTime(),
		ServerTime:     time.Now().UnixMilli(),
	}
}
