// Package specs defines the parsed, immutable representation of the rule
// catalog served by the control plane: gates, dynamic configs, experiments
// and layers, each a list of rules, each rule a list of conditions.
//
// Incoming payloads are schema-loose JSON. Parsing here is strict about the
// parts evaluation depends on (names, rule shape) and deliberately loose
// about values (returnValue, defaultValue, targetValue stay as decoded
// `any`), mirroring how the control plane evolves fields without breaking
// older SDKs.
package specs

import (
	"encoding/json"
	"fmt"
)

// Spec entity types, as sent by the control plane.
const (
	TypeFeatureGate   = "feature_gate"
	TypeDynamicConfig = "dynamic_config"
	TypeExperiment    = "experiment"
	TypeAutotune      = "autotune"
	TypeLayer         = "layer"
	TypeSegment       = "segment"
	TypeHoldout       = "holdout"
)

// Condition types understood by the evaluator. Anything else short-circuits
// the evaluation to "unsupported" rather than guessing.
const (
	ConditionPublic           = "public"
	ConditionPassGate         = "pass_gate"
	ConditionFailGate         = "fail_gate"
	ConditionMultiPassGate    = "multi_pass_gate"
	ConditionMultiFailGate    = "multi_fail_gate"
	ConditionUserField        = "user_field"
	ConditionIPBased          = "ip_based"
	ConditionUABased          = "ua_based"
	ConditionEnvironmentField = "environment_field"
	ConditionCurrentTime      = "current_time"
	ConditionUserBucket       = "user_bucket"
	ConditionUnitID           = "unit_id"
)

// Condition is a single predicate inside a rule.
type Condition struct {
	// Type selects the value source (user field, nested gate, clock, ...).
	Type string `json:"type"`

	// TargetValue is the operand the extracted value is compared against.
	// Its shape depends on the operator (scalar, array, regex source).
	TargetValue any `json:"targetValue"`

	// Operator names the comparison; empty means the condition type carries
	// its own semantics (public, pass_gate, ...).
	Operator string `json:"operator"`

	// Field is the user attribute to read for field-based condition types.
	Field string `json:"field"`

	// IDType selects the unit id for unit_id / user_bucket conditions.
	IDType string `json:"idType"`

	// AdditionalValues carries free-form extras; notably "salt" for
	// user_bucket conditions.
	AdditionalValues map[string]any `json:"additionalValues"`
}

// Rule is an ordered member of a spec. The first rule whose conditions all
// pass decides the evaluation.
type Rule struct {
	Name              string      `json:"name"`
	ID                string      `json:"id"`
	Salt              string      `json:"salt"`
	PassPercentage    float64     `json:"passPercentage"`
	ReturnValue       any         `json:"returnValue"`
	IDType            string      `json:"idType"`
	GroupName         string      `json:"groupName"`
	ConfigDelegate    string      `json:"configDelegate"`
	IsExperimentGroup bool        `json:"isExperimentGroup"`
	Conditions        []Condition `json:"conditions"`
}

// BucketingSalt returns the salt used for pass-percentage bucketing.
// Rules without an explicit salt fall back to their id, which older
// control-plane versions relied on.
func (r *Rule) BucketingSalt() string {
	if r.Salt != "" {
		return r.Salt
	}
	return r.ID
}

// Spec is one immutable catalog entry. Instances are never mutated after
// installation; catalog updates replace the map entry wholesale.
type Spec struct {
	Name               string   `json:"name"`
	Type               string   `json:"type"`
	Salt               string   `json:"salt"`
	Enabled            bool     `json:"enabled"`
	DefaultValue       any      `json:"defaultValue"`
	IDType             string   `json:"idType"`
	Rules              []Rule   `json:"rules"`
	ExplicitParameters []string `json:"explicitParameters"`
	HasSharedParams    bool     `json:"hasSharedParams"`
	IsActive           bool     `json:"isActive"`
	Version            *int32   `json:"version"`
}

// Parse validates and decodes one raw spec. A failure here must abort the
// whole catalog rotation, so the error carries enough context to log.
func Parse(raw json.RawMessage) (*Spec, error) {
	var spec Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("malformed config spec: %w", err)
	}

	if spec.Name == "" {
		return nil, fmt.Errorf("config spec is missing a name")
	}

	return &spec, nil
}

// DefaultMap returns the spec's default value as a JSON object, or an empty
// map when the default is absent or not an object (gates carry `{}`).
func (s *Spec) DefaultMap() map[string]any {
	if m, ok := s.DefaultValue.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
