// Package evaluator implements the deterministic rule interpreter: given a
// user and the installed catalog, it decides gate values, config variants
// and layer parameters, accumulating the secondary exposures analytics
// needs to attribute every decision.
package evaluator

import (
	"strings"
)

// User is the entity being evaluated. Only UserID (or a custom id named by
// the spec's idType) is required for bucketing; everything else feeds
// condition targeting.
type User struct {
	UserID            string            `json:"userID"`
	Email             string            `json:"email,omitempty"`
	IPAddress         string            `json:"ip,omitempty"`
	UserAgent         string            `json:"userAgent,omitempty"`
	Country           string            `json:"country,omitempty"`
	Locale            string            `json:"locale,omitempty"`
	AppVersion        string            `json:"appVersion,omitempty"`
	Custom            map[string]any    `json:"custom,omitempty"`
	PrivateAttributes map[string]any    `json:"privateAttributes,omitempty"`
	CustomIDs         map[string]string `json:"customIDs,omitempty"`

	// Environment is the tier block echoed to analytics, e.g.
	// {"tier": "production"}.
	Environment map[string]string `json:"statsigEnvironment,omitempty"`
}

// UnitID resolves the identifier a rule buckets on. The default id type
// ("userID", any casing, or empty) reads UserID; anything else reads the
// custom id map with a case-insensitive key match. Missing ids hash as the
// empty string.
func (u *User) UnitID(idType string) string {
	if idType == "" || strings.EqualFold(idType, "userid") {
		return u.UserID
	}

	if value, ok := u.CustomIDs[idType]; ok {
		return value
	}
	for key, value := range u.CustomIDs {
		if strings.EqualFold(key, idType) {
			return value
		}
	}
	return ""
}

// field names handled by fieldValue before falling through to custom and
// private attributes.
const (
	fieldUserID     = "userid"
	fieldEmail      = "email"
	fieldIP         = "ip"
	fieldUserAgent  = "useragent"
	fieldCountry    = "country"
	fieldLocale     = "locale"
	fieldAppVersion = "appversion"
)

// fieldValue extracts a user attribute for field-based conditions:
// top-level fields first (case-insensitive), then custom, then private
// attributes. Returns nil when the field is absent or empty.
func (u *User) fieldValue(field string) any {
	normalized := strings.ToLower(strings.ReplaceAll(field, "_", ""))

	var top string
	switch normalized {
	case fieldUserID:
		top = u.UserID
	case fieldEmail:
		top = u.Email
	case fieldIP, "ipaddress":
		top = u.IPAddress
	case fieldUserAgent:
		top = u.UserAgent
	case fieldCountry:
		top = u.Country
	case fieldLocale:
		top = u.Locale
	case fieldAppVersion:
		top = u.AppVersion
	}
	if top != "" {
		return top
	}

	if value, ok := lookupCaseInsensitive(u.Custom, field); ok {
		return value
	}
	if value, ok := lookupCaseInsensitive(u.PrivateAttributes, field); ok {
		return value
	}
	return nil
}

// environmentValue reads a field from the user's environment block,
// case-insensitively.
func (u *User) environmentValue(field string) any {
	for key, value := range u.Environment {
		if strings.EqualFold(key, field) {
			return value
		}
	}
	return nil
}

// lookupCaseInsensitive prefers an exact key hit before scanning.
func lookupCaseInsensitive(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if value, ok := m[key]; ok && value != nil {
		return value, true
	}
	for k, value := range m {
		if value != nil && strings.EqualFold(k, key) {
			return value, true
		}
	}
	return nil, false
}

// sanitized returns a copy safe to echo in client payloads: private
// attributes never leave the server.
func (u *User) sanitized() User {
	clean := *u
	clean.PrivateAttributes = nil
	return clean
}
