package evaluator

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rafaeljc/mimir/internal/hashing"
	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/specs"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/validation"
)

// Bucketing constants shared with every other SDK; changing either
// reshuffles live experiments.
const (
	// conditionSegmentCount is the modulus for rule pass-percentage
	// allocation; passPercentage is scaled by 100 to preserve fractional
	// percentages.
	conditionSegmentCount = 10_000

	// userBucketCount is the modulus for user_bucket conditions.
	userBucketCount = 1_000
)

// globalOverrideKey addresses the override that applies to every user.
// The empty-string sentinel is deliberate: a per-user entry keyed by a
// real user id always wins over it.
const globalOverrideKey = ""

// Rule ids the evaluator synthesizes.
const (
	ruleIDDisabled = "disabled"
	ruleIDDefault  = "default"
	ruleIDOverride = "override"
)

// Evaluator interprets the installed catalog for one user at a time.
// It is safe for concurrent use: catalog reads are lock-free snapshots,
// and the override maps take a read lock only.
type Evaluator struct {
	store  *store.Store
	logger *slog.Logger

	mu              sync.RWMutex
	gateOverrides   map[string]map[string]bool
	configOverrides map[string]map[string]map[string]any
	layerOverrides  map[string]map[string]map[string]any
}

// New constructs an evaluator over the given store.
func New(st *store.Store, logger *slog.Logger) *Evaluator {
	validation.AssertNotNil(st, "store")
	if logger == nil {
		logger = slog.Default()
	}

	return &Evaluator{
		store:           st,
		logger:          logger,
		gateOverrides:   make(map[string]map[string]bool),
		configOverrides: make(map[string]map[string]map[string]any),
		layerOverrides:  make(map[string]map[string]map[string]any),
	}
}

// Store exposes the underlying spec store (for projection and the facade).
func (e *Evaluator) Store() *store.Store {
	return e.store
}

// --- Entry points -------------------------------------------------------

// CheckGate evaluates a feature gate for a user.
func (e *Evaluator) CheckGate(user User, name string) *Result {
	if override, ok := e.lookupGateOverride(&user, name); ok {
		observability.Evaluations.WithLabelValues("gate", ReasonLocalOverride).Inc()
		return override
	}

	result := e.evalByName(&user, name, e.store.GetGate)
	observability.Evaluations.WithLabelValues("gate", result.Details.Reason).Inc()
	return result
}

// GetConfig evaluates a dynamic config or experiment for a user.
func (e *Evaluator) GetConfig(user User, name string) *Result {
	if override, ok := e.lookupValueOverride(&user, name, e.configOverrides); ok {
		observability.Evaluations.WithLabelValues("config", ReasonLocalOverride).Inc()
		return override
	}

	result := e.evalByName(&user, name, e.store.GetConfig)
	observability.Evaluations.WithLabelValues("config", result.Details.Reason).Inc()
	return result
}

// GetLayer evaluates a layer for a user.
func (e *Evaluator) GetLayer(user User, name string) *Result {
	if override, ok := e.lookupValueOverride(&user, name, e.layerOverrides); ok {
		observability.Evaluations.WithLabelValues("layer", ReasonLocalOverride).Inc()
		return override
	}

	result := e.evalByName(&user, name, e.store.GetLayer)
	observability.Evaluations.WithLabelValues("layer", result.Details.Reason).Inc()
	return result
}

// evalByName runs the shared top-level control flow: uninitialized and
// unrecognized short-circuits, then full evaluation with exposure cleanup.
func (e *Evaluator) evalByName(user *User, name string, lookup func(string) *specs.Spec) *Result {
	if e.store.InitReason() == store.ReasonUninitialized {
		return &Result{
			JSONValue: map[string]any{},
			Details:   detailsFor(string(store.ReasonUninitialized), e.store),
		}
	}

	spec := lookup(name)
	if spec == nil {
		return &Result{
			JSONValue: map[string]any{},
			Details:   detailsFor(ReasonUnrecognized, e.store),
		}
	}

	result := e.evalSpec(user, spec)
	e.finishResult(result)
	return result
}

// finishResult cleans exposures and stamps provenance. This is the only
// boundary where dedup happens; nested accumulation stays raw.
func (e *Evaluator) finishResult(result *Result) {
	result.SecondaryExposures = CleanExposures(result.SecondaryExposures)
	if result.UndelegatedSecondaryExposures != nil {
		result.UndelegatedSecondaryExposures = CleanExposures(result.UndelegatedSecondaryExposures)
	}

	reason := string(e.store.InitReason())
	if result.Unsupported {
		reason = ReasonUnsupported
	}
	result.Details = detailsFor(reason, e.store)
}

// --- Core interpreter ---------------------------------------------------

// evalSpec interprets one spec: first passing rule wins, delegation and
// allocation apply, no passing rule falls through to the default.
func (e *Evaluator) evalSpec(user *User, spec *specs.Spec) *Result {
	if !spec.Enabled {
		return &Result{
			RuleID:             ruleIDDisabled,
			JSONValue:          spec.DefaultValue,
			ExplicitParameters: spec.ExplicitParameters,
			ConfigVersion:      spec.Version,
		}
	}

	var exposures []SecondaryExposure

	for i := range spec.Rules {
		rule := &spec.Rules[i]

		passed, ruleExposures, unsupported := e.evalRule(user, rule)
		if unsupported {
			return &Result{Unsupported: true}
		}
		exposures = append(exposures, ruleExposures...)

		if !passed {
			continue
		}

		if rule.ConfigDelegate != "" {
			if delegated := e.evalDelegate(user, rule, exposures); delegated != nil {
				return delegated
			}
			// Missing delegate: evaluate the rule as if it had none.
		}

		allocated := e.passesAllocation(user, spec, rule)

		value := spec.DefaultValue
		if allocated {
			value = rule.ReturnValue
		}

		return &Result{
			Value:              allocated,
			JSONValue:          value,
			RuleID:             rule.ID,
			GroupName:          rule.GroupName,
			IsExperimentGroup:  rule.IsExperimentGroup,
			SecondaryExposures: exposures,
			ExplicitParameters: spec.ExplicitParameters,
			ConfigVersion:      spec.Version,
		}
	}

	return &Result{
		RuleID:             ruleIDDefault,
		JSONValue:          spec.DefaultValue,
		SecondaryExposures: exposures,
		ExplicitParameters: spec.ExplicitParameters,
		ConfigVersion:      spec.Version,
	}
}

// evalDelegate recursively evaluates a rule's delegation target, stitching
// exposures so analytics sees both the path to the delegation and the
// delegate's own nested checks. Returns nil when the delegate is missing,
// in which case the caller evaluates the rule undelegated.
func (e *Evaluator) evalDelegate(user *User, rule *specs.Rule, exposures []SecondaryExposure) *Result {
	delegateSpec := e.store.GetConfig(rule.ConfigDelegate)
	if delegateSpec == nil {
		return nil
	}

	result := e.evalSpec(user, delegateSpec)
	if result.Unsupported {
		return result
	}

	result.ConfigDelegate = rule.ConfigDelegate
	result.ExplicitParameters = delegateSpec.ExplicitParameters
	result.UndelegatedSecondaryExposures = append([]SecondaryExposure(nil), exposures...)
	result.SecondaryExposures = append(append([]SecondaryExposure(nil), exposures...), result.SecondaryExposures...)

	// The delegate's group name wins only when it actually has one.
	if result.GroupName == "" {
		result.GroupName = rule.GroupName
	}

	return result
}

// evalRule checks every condition (no short-circuit: exposure order is
// part of the contract). The rule passes iff all conditions pass.
func (e *Evaluator) evalRule(user *User, rule *specs.Rule) (bool, []SecondaryExposure, bool) {
	passed := true
	var exposures []SecondaryExposure

	for i := range rule.Conditions {
		result := e.evalCondition(user, &rule.Conditions[i])
		if result.unsupported {
			return false, nil, true
		}
		exposures = append(exposures, result.exposures...)
		if !result.pass {
			passed = false
		}
	}

	return passed, exposures, false
}

// passesAllocation applies salted pass-percentage bucketing:
// hash(specSalt.ruleSalt.unitID) mod 10000 < passPercentage * 100.
func (e *Evaluator) passesAllocation(user *User, spec *specs.Spec, rule *specs.Rule) bool {
	// Degenerate percentages skip the hash entirely, keeping 0 and 100
	// exact regardless of float rounding.
	if rule.PassPercentage <= 0 {
		return false
	}
	if rule.PassPercentage >= 100 {
		return true
	}

	idType := rule.IDType
	if idType == "" {
		idType = spec.IDType
	}

	hash := hashing.Sha256ToUint64(spec.Salt + "." + rule.BucketingSalt() + "." + user.UnitID(idType))
	return float64(hash%conditionSegmentCount) < rule.PassPercentage*100
}

// conditionResult is the outcome of one condition check.
type conditionResult struct {
	pass        bool
	unsupported bool
	exposures   []SecondaryExposure
}

// evalCondition extracts the condition's value and applies its operator.
func (e *Evaluator) evalCondition(user *User, condition *specs.Condition) conditionResult {
	var value any

	switch strings.ToLower(condition.Type) {
	case specs.ConditionPublic:
		return conditionResult{pass: true}

	case specs.ConditionPassGate, specs.ConditionFailGate:
		return e.evalGateCondition(user, condition)

	case specs.ConditionMultiPassGate, specs.ConditionMultiFailGate:
		return e.evalMultiGateCondition(user, condition)

	case specs.ConditionUserField, specs.ConditionIPBased:
		value = user.fieldValue(condition.Field)

	case specs.ConditionUABased:
		value = user.fieldValue(condition.Field)
		if value == nil {
			value = uaValue(user, condition.Field)
		}

	case specs.ConditionEnvironmentField:
		value = user.environmentValue(condition.Field)

	case specs.ConditionCurrentTime:
		value = float64(time.Now().UnixMilli())

	case specs.ConditionUserBucket:
		salt := ""
		if raw, ok := condition.AdditionalValues["salt"]; ok {
			salt = toString(raw)
		}
		hash := hashing.Sha256ToUint64(salt + "." + user.UnitID(condition.IDType))
		value = float64(hash % userBucketCount)

	case specs.ConditionUnitID:
		value = user.UnitID(condition.IDType)

	default:
		return conditionResult{unsupported: true}
	}

	return e.applyOperator(value, condition)
}

// evalGateCondition handles pass_gate / fail_gate: evaluate the inner
// gate, record its exposure after its own nested exposures, and adapt
// polarity.
func (e *Evaluator) evalGateCondition(user *User, condition *specs.Condition) conditionResult {
	gateName := toString(condition.TargetValue)

	inner := e.evalNestedGate(user, gateName)
	if inner.Unsupported {
		return conditionResult{unsupported: true}
	}

	exposures := append(inner.SecondaryExposures, SecondaryExposure{
		Gate:      gateName,
		GateValue: strconv.FormatBool(inner.Value),
		RuleID:    inner.RuleID,
	})

	pass := inner.Value
	if strings.EqualFold(condition.Type, specs.ConditionFailGate) {
		pass = !inner.Value
	}
	return conditionResult{pass: pass, exposures: exposures}
}

// evalMultiGateCondition handles multi_pass_gate / multi_fail_gate: a
// short-circuit OR across the listed gates with per-gate polarity.
// Exposures accumulate for every gate actually checked.
func (e *Evaluator) evalMultiGateCondition(user *User, condition *specs.Condition) conditionResult {
	wantPass := strings.EqualFold(condition.Type, specs.ConditionMultiPassGate)

	var exposures []SecondaryExposure
	for _, raw := range asArray(condition.TargetValue) {
		gateName := toString(raw)

		inner := e.evalNestedGate(user, gateName)
		if inner.Unsupported {
			return conditionResult{unsupported: true}
		}

		exposures = append(exposures, inner.SecondaryExposures...)
		exposures = append(exposures, SecondaryExposure{
			Gate:      gateName,
			GateValue: strconv.FormatBool(inner.Value),
			RuleID:    inner.RuleID,
		})

		if inner.Value == wantPass {
			return conditionResult{pass: true, exposures: exposures}
		}
	}

	return conditionResult{pass: false, exposures: exposures}
}

// evalNestedGate evaluates a dependency gate. Unknown gates evaluate
// false, still producing an exposure at the call site.
func (e *Evaluator) evalNestedGate(user *User, gateName string) *Result {
	spec := e.store.GetGate(gateName)
	if spec == nil {
		return &Result{}
	}
	return e.evalSpec(user, spec)
}

// applyOperator runs the condition's comparison against the extracted
// value. Unknown operators mark the whole evaluation unsupported.
func (e *Evaluator) applyOperator(value any, condition *specs.Condition) conditionResult {
	target := condition.TargetValue

	var pass bool
	switch strings.ToLower(condition.Operator) {
	case "gt":
		pass = compareNumbers(value, target, func(a, b float64) bool { return a > b })
	case "gte":
		pass = compareNumbers(value, target, func(a, b float64) bool { return a >= b })
	case "lt":
		pass = compareNumbers(value, target, func(a, b float64) bool { return a < b })
	case "lte":
		pass = compareNumbers(value, target, func(a, b float64) bool { return a <= b })

	case "version_gt":
		pass = compareVersions(value, target, func(cmp int) bool { return cmp > 0 })
	case "version_gte":
		pass = compareVersions(value, target, func(cmp int) bool { return cmp >= 0 })
	case "version_lt":
		pass = compareVersions(value, target, func(cmp int) bool { return cmp < 0 })
	case "version_lte":
		pass = compareVersions(value, target, func(cmp int) bool { return cmp <= 0 })
	case "version_eq":
		pass = compareVersions(value, target, func(cmp int) bool { return cmp == 0 })
	case "version_neq":
		pass = compareVersions(value, target, func(cmp int) bool { return cmp != 0 })

	case "any":
		pass = matchesAny(value, target, false)
	case "none":
		pass = !matchesAny(value, target, false)
	case "any_case_sensitive":
		pass = matchesAny(value, target, true)
	case "none_case_sensitive":
		pass = !matchesAny(value, target, true)

	case "str_starts_with_any":
		pass = stringMatchesAny(value, target, strings.HasPrefix)
	case "str_ends_with_any":
		pass = stringMatchesAny(value, target, strings.HasSuffix)
	case "str_contains_any":
		pass = stringMatchesAny(value, target, strings.Contains)
	case "str_contains_none":
		pass = !stringMatchesAny(value, target, strings.Contains)
	case "str_matches":
		pass = matchesRegex(value, target)

	case "eq":
		pass = looseEqual(value, target)
	case "neq":
		pass = !looseEqual(value, target)

	case "before":
		pass = compareDates(value, target, false, func(a, b time.Time) bool { return a.Before(b) })
	case "after":
		pass = compareDates(value, target, false, func(a, b time.Time) bool { return a.After(b) })
	case "on":
		pass = compareDates(value, target, true, func(a, b time.Time) bool { return a.Equal(b) })

	case "in_segment_list":
		pass = e.inSegmentList(value, target)
	case "not_in_segment_list":
		pass = !e.inSegmentList(value, target)

	case "array_contains_any":
		pass = arrayContainsAny(value, target)
	case "array_contains_none":
		pass = isArray(value) && isArray(target) && !arrayContainsAny(value, target)
	case "array_contains_all":
		pass = arrayContainsAll(value, target)
	case "not_array_contains_all":
		pass = isArray(value) && isArray(target) && !arrayContainsAll(value, target)

	default:
		return conditionResult{unsupported: true}
	}

	return conditionResult{pass: pass}
}

func isArray(value any) bool {
	_, ok := value.([]any)
	return ok
}

// inSegmentList hashes the value the same way segment files store members
// and checks the named list.
func (e *Evaluator) inSegmentList(value, target any) bool {
	list := e.store.GetIDList(toString(target))
	if list == nil {
		return false
	}
	return list.Contains(hashing.SegmentHash(toString(value)))
}
