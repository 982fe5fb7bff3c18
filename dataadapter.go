package mimir

import (
	"context"

	"github.com/rafaeljc/mimir/internal/adapter"
)

// Data adapter keys hosts may care about when implementing their own
// adapter or inspecting a shared cache.
const (
	DataAdapterKeyRulesets = adapter.KeyRulesets
	DataAdapterKeyIDLists  = adapter.KeyIDLists
)

// NewRedisDataAdapter dials Redis and returns a DataAdapter backed by it.
// With pollRulesets true the SDK polls the adapter instead of the network
// for rule updates, which is the usual setup when one writer process owns
// the network sync and its siblings read from Redis.
func NewRedisDataAdapter(ctx context.Context, addr string, pollRulesets bool) (DataAdapter, error) {
	redisAdapter, err := adapter.NewRedisAdapterFromAddr(ctx, addr, pollRulesets)
	if err != nil {
		return nil, err
	}
	return redisAdapter, nil
}
