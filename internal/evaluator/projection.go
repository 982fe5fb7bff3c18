package evaluator

import (
	"github.com/rafaeljc/mimir/internal/hashing"
	"github.com/rafaeljc/mimir/internal/specs"
)

// ProjectionOptions tune the client bootstrap payload.
type ProjectionOptions struct {
	// HashAlgorithm obfuscates spec names in the payload: "sha256"
	// (default), "djb2", or "none" for plaintext.
	HashAlgorithm string
}

// GateProjection is one gate entry in the bootstrap payload.
type GateProjection struct {
	Name               string              `json:"name"`
	Value              bool                `json:"value"`
	RuleID             string              `json:"rule_id"`
	SecondaryExposures []SecondaryExposure `json:"secondary_exposures"`
}

// ConfigProjection is one dynamic config / experiment entry.
type ConfigProjection struct {
	Name               string              `json:"name"`
	Value              map[string]any      `json:"value"`
	RuleID             string              `json:"rule_id"`
	GroupName          string              `json:"group_name,omitempty"`
	IsExperimentGroup  bool                `json:"is_experiment_group,omitempty"`
	IsUserInExperiment *bool               `json:"is_user_in_experiment,omitempty"`
	IsExperimentActive *bool               `json:"is_experiment_active,omitempty"`
	IsInLayer          bool                `json:"is_in_layer,omitempty"`
	ExplicitParameters []string            `json:"explicit_parameters,omitempty"`
	SecondaryExposures []SecondaryExposure `json:"secondary_exposures"`
}

// LayerProjection is one layer entry.
type LayerProjection struct {
	Name                          string              `json:"name"`
	Value                         map[string]any      `json:"value"`
	RuleID                        string              `json:"rule_id"`
	GroupName                     string              `json:"group_name,omitempty"`
	AllocatedExperimentName       string              `json:"allocated_experiment_name,omitempty"`
	IsUserInExperiment            *bool               `json:"is_user_in_experiment,omitempty"`
	IsExperimentActive            *bool               `json:"is_experiment_active,omitempty"`
	ExplicitParameters            []string            `json:"explicit_parameters"`
	SecondaryExposures            []SecondaryExposure `json:"secondary_exposures"`
	UndelegatedSecondaryExposures []SecondaryExposure `json:"undelegated_secondary_exposures"`
}

// InitializeResponse is the full per-user bootstrap payload a client SDK
// consumes in place of its own network init.
type InitializeResponse struct {
	FeatureGates   map[string]GateProjection   `json:"feature_gates"`
	DynamicConfigs map[string]ConfigProjection `json:"dynamic_configs"`
	LayerConfigs   map[string]LayerProjection  `json:"layer_configs"`
	SDKParams      map[string]any              `json:"sdkParams"`
	HasUpdates     bool                        `json:"has_updates"`
	Generator      string                      `json:"generator"`
	SDKInfo        map[string]string           `json:"sdkInfo"`
	Time           int64                       `json:"time"`
	EvaluatedKeys  map[string]any              `json:"evaluated_keys"`
	HashUsed       string                      `json:"hash_used"`
	User           User                        `json:"user"`
}

// GetClientInitializeResponse evaluates the whole catalog against one user
// and serializes it for client consumption. Returns nil until the store
// has a catalog to serve.
func (e *Evaluator) GetClientInitializeResponse(user User, opts ProjectionOptions, sdkVersion string) *InitializeResponse {
	if !e.store.IsServingChecks() {
		return nil
	}

	algorithm := opts.HashAlgorithm
	if algorithm == "" {
		algorithm = hashing.AlgorithmSha256
	}

	response := &InitializeResponse{
		FeatureGates:   make(map[string]GateProjection),
		DynamicConfigs: make(map[string]ConfigProjection),
		LayerConfigs:   make(map[string]LayerProjection),
		SDKParams:      map[string]any{},
		HasUpdates:     true,
		Generator:      "mimir-go-sdk",
		SDKInfo:        map[string]string{"sdkType": "mimir-go", "sdkVersion": sdkVersion},
		Time:           e.store.LastUpdateTime(),
		EvaluatedKeys:  evaluatedKeys(&user),
		HashUsed:       algorithm,
		User:           user.sanitized(),
	}

	for name, spec := range e.store.AllGates() {
		// Segment-backing and holdout gates are implementation detail;
		// clients never see them.
		if spec.Type == specs.TypeSegment || spec.Type == specs.TypeHoldout {
			continue
		}

		result := e.projectSpec(&user, spec)
		hashed := hashing.HashName(name, algorithm)

		response.FeatureGates[hashed] = GateProjection{
			Name:               hashed,
			Value:              result.Value && !result.Unsupported,
			RuleID:             result.RuleID,
			SecondaryExposures: CleanExposures(result.SecondaryExposures),
		}
	}

	for name, spec := range e.store.AllConfigs() {
		result := e.projectSpec(&user, spec)
		hashed := hashing.HashName(name, algorithm)
		response.DynamicConfigs[hashed] = e.projectConfig(name, hashed, spec, result)
	}

	for name, spec := range e.store.AllLayers() {
		result := e.projectSpec(&user, spec)
		hashed := hashing.HashName(name, algorithm)
		response.LayerConfigs[hashed] = e.projectLayer(hashed, result, algorithm)
	}

	return response
}

// projectSpec evaluates one spec for the payload; unsupported results keep
// their rule id and exposures but serve empty values.
func (e *Evaluator) projectSpec(user *User, spec *specs.Spec) *Result {
	result := e.evalSpec(user, spec)
	if result.Unsupported {
		result.Value = false
		result.JSONValue = map[string]any{}
	}
	return result
}

// projectConfig builds a dynamic config entry, adding experiment metadata
// and the shared-parameter layer merge where applicable.
func (e *Evaluator) projectConfig(name, hashed string, spec *specs.Spec, result *Result) ConfigProjection {
	entry := ConfigProjection{
		Name:               hashed,
		Value:              valueMap(result.JSONValue),
		RuleID:             result.RuleID,
		GroupName:          result.GroupName,
		IsExperimentGroup:  result.IsExperimentGroup,
		SecondaryExposures: CleanExposures(result.SecondaryExposures),
	}

	if spec.Type != specs.TypeExperiment {
		return entry
	}

	entry.IsUserInExperiment = boolPtr(result.IsExperimentGroup)
	entry.IsExperimentActive = boolPtr(spec.IsActive)

	if spec.HasSharedParams {
		entry.IsInLayer = true
		entry.ExplicitParameters = explicitOrEmpty(spec.ExplicitParameters)

		// Shared parameters resolve against the owning layer's defaults,
		// with the experiment's own values overlaid.
		if layerName, ok := e.store.GetExperimentLayer(name); ok {
			if layerSpec := e.store.GetLayer(layerName); layerSpec != nil {
				merged := make(map[string]any, len(entry.Value))
				for key, val := range layerSpec.DefaultMap() {
					merged[key] = val
				}
				for key, val := range entry.Value {
					merged[key] = val
				}
				entry.Value = merged
			}
		}
	}

	return entry
}

// projectLayer builds a layer entry, surfacing the delegated experiment's
// metadata when a delegate was chosen.
func (e *Evaluator) projectLayer(hashed string, result *Result, algorithm string) LayerProjection {
	entry := LayerProjection{
		Name:                          hashed,
		Value:                         valueMap(result.JSONValue),
		RuleID:                        result.RuleID,
		GroupName:                     result.GroupName,
		ExplicitParameters:            explicitOrEmpty(result.ExplicitParameters),
		SecondaryExposures:            CleanExposures(result.SecondaryExposures),
		UndelegatedSecondaryExposures: CleanExposures(result.UndelegatedSecondaryExposures),
	}

	if result.ConfigDelegate == "" {
		return entry
	}

	entry.AllocatedExperimentName = hashing.HashName(result.ConfigDelegate, algorithm)
	entry.IsUserInExperiment = boolPtr(result.IsExperimentGroup)

	if delegate := e.store.GetConfig(result.ConfigDelegate); delegate != nil {
		entry.IsExperimentActive = boolPtr(delegate.IsActive)
		entry.ExplicitParameters = explicitOrEmpty(delegate.ExplicitParameters)
	}

	return entry
}

func evaluatedKeys(user *User) map[string]any {
	keys := make(map[string]any)
	if user.UserID != "" {
		keys["userID"] = user.UserID
	}
	if len(user.CustomIDs) > 0 {
		keys["customIDs"] = user.CustomIDs
	}
	return keys
}

func valueMap(value any) map[string]any {
	if m, ok := value.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func explicitOrEmpty(params []string) []string {
	if params == nil {
		return []string{}
	}
	return params
}

func boolPtr(v bool) *bool {
	return &v
}
