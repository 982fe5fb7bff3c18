package evaluator

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/transport"
)

// stubFetcher serves canned id-list manifests and chunks so segment tests
// can drive the store's real sync path without a network.
type stubFetcher struct {
	manifest string
	chunks   map[string]string
}

func (f *stubFetcher) Get(_ context.Context, url string, _ map[string]string) (*transport.Response, error) {
	body := f.chunks[url]
	return &transport.Response{
		StatusCode:    http.StatusOK,
		Body:          []byte(body),
		ContentLength: int64(len(body)),
		Header:        http.Header{},
	}, nil
}

func (f *stubFetcher) Post(_ context.Context, _ string, _ []byte) (*transport.Response, error) {
	return &transport.Response{
		StatusCode:    http.StatusOK,
		Body:          []byte(f.manifest),
		ContentLength: int64(len(f.manifest)),
		Header:        http.Header{},
	}, nil
}

// newStoreWithStubFetcher seeds a store through bootstrap and returns the
// stub so tests can stage id-list fixtures.
func newStoreWithStubFetcher(t *testing.T, payload string) (*store.Store, *stubFetcher) {
	t.Helper()

	fetcher := &stubFetcher{chunks: make(map[string]string)}

	opts := &config.Options{
		DisableRulesetsSync: true,
		DisableIDListsSync:  true,
		IDListsInitStrategy: config.IDListsStrategyNone,
	}
	opts.Normalize()

	st := store.New("test-key", opts, store.Dependencies{
		Fetcher: fetcher,
		Logger:  discardLogger(),
	})
	t.Cleanup(func() { st.Shutdown(context.Background()) })

	require.NoError(t, st.SyncBootstrapValues(context.Background(), payload))
	return st, fetcher
}
