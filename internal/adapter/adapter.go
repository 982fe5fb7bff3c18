// Package adapter defines the DataAdapter contract: an external key/value
// store of rule payloads and id lists that can seed the SDK without a
// network round trip, or share one download across a fleet of processes.
package adapter

import "context"

// Well-known adapter keys.
const (
	// KeyRulesets holds the raw download_config_specs payload.
	KeyRulesets = "rulesets"

	// KeyIDLists holds the id-list manifest.
	KeyIDLists = "id_lists"

	// IDListKeyPrefix namespaces individual id-list contents:
	// "id_list::<name>".
	IDListKeyPrefix = "id_list::"
)

// IDListKey returns the adapter key for one id list's contents.
func IDListKey(name string) string {
	return IDListKeyPrefix + name
}

// DataAdapter is implemented by hosts that want to back the SDK with an
// external cache. All methods may be called from background pollers; they
// must be safe for concurrent use.
type DataAdapter interface {
	// Initialize prepares the adapter (open connections, warm caches).
	Initialize(ctx context.Context) error

	// Shutdown releases the adapter's resources.
	Shutdown(ctx context.Context) error

	// Get returns the stored value and its timestamp (ms) for a key.
	// A missing key returns ("", 0, nil).
	Get(ctx context.Context, key string) (value string, updatedAt int64, err error)

	// Set stores a value with its timestamp (ms).
	Set(ctx context.Context, key, value string, updatedAt int64) error

	// SupportsPollingUpdatesFor reports whether the adapter should be
	// polled for fresh values of the given key instead of the network.
	SupportsPollingUpdatesFor(key string) bool
}
