package evaluator

import (
	"strings"
	"time"

	"github.com/rafaeljc/mimir/internal/store"
)

// Evaluation reasons beyond the store's init reasons.
const (
	ReasonLocalOverride = "LocalOverride"
	ReasonUnrecognized  = "Unrecognized"
	ReasonUnsupported   = "Unsupported"
)

// Details carries the provenance attached to every evaluation result.
type Details struct {
	// Reason explains where the result came from: the store's init reason
	// for normal evaluations, or LocalOverride / Uninitialized /
	// Unrecognized / Unsupported for the short-circuit paths.
	Reason string `json:"reason"`

	// ConfigSyncTime is the installed catalog's timestamp.
	ConfigSyncTime int64 `json:"configSyncTime"`

	// InitTime is the catalog timestamp observed at initialization.
	InitTime int64 `json:"initTime"`

	// ServerTime is when this evaluation happened.
	ServerTime int64 `json:"serverTime"`
}

// SecondaryExposure records one nested gate consulted during evaluation.
type SecondaryExposure struct {
	Gate      string `json:"gate"`
	GateValue string `json:"gateValue"`
	RuleID    string `json:"ruleID"`
}

// Result is the outcome of evaluating one spec against one user.
type Result struct {
	Value             bool
	JSONValue         any
	RuleID            string
	GroupName         string
	IsExperimentGroup bool
	ConfigDelegate    string

	SecondaryExposures            []SecondaryExposure
	UndelegatedSecondaryExposures []SecondaryExposure

	ExplicitParameters []string
	Unsupported        bool
	ConfigVersion      *int32

	Details Details
}

// detailsFor stamps provenance from the store's current state.
func detailsFor(reason string, st *store.Store) Details {
	return Details{
		Reason:         reason,
		ConfigSyncTime: st.LastUpdateTime(),
		InitTime:       st.InitialUpdateTime(),
		ServerTime:     time.Now().UnixMilli(),
	}
}

// segmentGatePrefix marks internal segment-backing gates whose exposures
// must never reach analytics.
const segmentGatePrefix = "segment:"

// CleanExposures deduplicates exposures on (gate, gateValue, ruleID),
// keeping first occurrence, and drops segment-backing gates. It runs only
// at boundaries the host observes; internal accumulation stays raw to
// preserve ordering context.
func CleanExposures(exposures []SecondaryExposure) []SecondaryExposure {
	seen := make(map[SecondaryExposure]struct{}, len(exposures))
	cleaned := make([]SecondaryExposure, 0, len(exposures))

	for _, exposure := range exposures {
		if strings.HasPrefix(exposure.Gate, segmentGatePrefix) {
			continue
		}
		if _, ok := seen[exposure]; ok {
			continue
		}
		seen[exposure] = struct{}{}
		cleaned = append(cleaned, exposure)
	}
	return cleaned
}
