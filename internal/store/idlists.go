package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rafaeljc/mimir/internal/adapter"
	"github.com/rafaeljc/mimir/internal/diagnostics"
	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/transport"
)

// manifestEntry is one id list's descriptor in the manifest response.
// url and fileID are deliberately typed `any`: a non-string value means the
// entry is skipped, not that the whole manifest is rejected.
type manifestEntry struct {
	URL          any   `json:"url"`
	FileID       any   `json:"fileID"`
	CreationTime int64 `json:"creationTime"`
	Size         int64 `json:"size"`
}

// SyncIDLists performs one id-list sync cycle: fetch the manifest, then
// reconcile every list against it (reset on generation change, ranged
// fetch of new bytes, removal of delisted names).
func (s *Store) SyncIDLists(ctx context.Context) {
	manifest, err := s.fetchIDListManifest(ctx)
	if err != nil {
		if !errors.Is(err, transport.ErrLocalMode) {
			observability.SyncCycles.WithLabelValues(pollerIDLists, "failure").Inc()
			s.logger.Warn("failed to fetch id list manifest", slog.String("error", err.Error()))
		}
		return
	}

	for name, entry := range manifest {
		s.syncIDList(ctx, name, entry)
	}

	// Drop lists the control plane no longer serves.
	for _, name := range s.idLists.Names() {
		if _, ok := manifest[name]; !ok {
			s.idLists.Remove(name)
		}
	}

	observability.SyncCycles.WithLabelValues(pollerIDLists, "success").Inc()

	if s.dataAdapter != nil {
		s.persistIDListsToAdapter(ctx, manifest)
	}
}

// fetchIDListManifest POSTs the SDK metadata and decodes the name → entry
// manifest.
func (s *Store) fetchIDListManifest(ctx context.Context) (map[string]manifestEntry, error) {
	body, err := json.Marshal(map[string]any{"statsigMetadata": s.metadataPayload()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest request: %w", err)
	}

	url := s.opts.API + "/get_id_lists"

	s.diag.Mark(diagnostics.ContextConfigSync, diagnostics.KeyGetIDListSources, diagnostics.ActionStart, diagnostics.StepNetworkRequest, nil, nil)
	resp, err := s.fetcher.Post(ctx, url, body)
	s.diag.Mark(diagnostics.ContextConfigSync, diagnostics.KeyGetIDListSources, diagnostics.ActionEnd, diagnostics.StepNetworkRequest, err == nil, nil)

	if err != nil {
		return nil, err
	}

	var manifest map[string]manifestEntry
	if err := json.Unmarshal(resp.Body, &manifest); err != nil {
		return nil, fmt.Errorf("malformed id list manifest: %w", err)
	}
	return manifest, nil
}

// metadataPayload returns the identity block sent with manifest requests.
func (s *Store) metadataPayload() transport.Metadata {
	if f, ok := s.fetcher.(*transport.HTTPFetcher); ok {
		return f.Metadata()
	}
	return transport.NewMetadata("unknown")
}

// syncIDList reconciles one list against its manifest entry.
func (s *Store) syncIDList(ctx context.Context, name string, entry manifestEntry) {
	url, urlOK := entry.URL.(string)
	fileID, fileOK := entry.FileID.(string)
	if !urlOK || !fileOK {
		return
	}

	list := s.idLists.Get(name)
	if list != nil {
		_, currentFileID, currentCreation, _ := list.Meta()

		// An older generation in the manifest is a stale read somewhere
		// upstream; never move backwards.
		if entry.CreationTime < currentCreation {
			return
		}
		if fileID != currentFileID {
			// Generation change: rebuild from offset zero.
			list = s.idLists.Reset(name, url, fileID, entry.CreationTime)
			observability.IDListResets.Inc()
		}
	} else {
		list = s.idLists.Reset(name, url, fileID, entry.CreationTime)
	}

	_, _, _, readBytes := list.Meta()
	if entry.Size <= readBytes {
		return
	}

	s.diag.Mark(diagnostics.ContextConfigSync, diagnostics.KeyGetIDList, diagnostics.ActionStart, diagnostics.StepNetworkRequest, nil, map[string]any{"name": name})
	resp, err := s.fetcher.Get(ctx, url, map[string]string{
		"Range": fmt.Sprintf("bytes=%d-", readBytes),
	})
	s.diag.Mark(diagnostics.ContextConfigSync, diagnostics.KeyGetIDList, diagnostics.ActionEnd, diagnostics.StepNetworkRequest, err == nil, map[string]any{"name": name})

	if err != nil {
		s.logger.Warn("failed to fetch id list chunk",
			slog.String("list", name),
			slog.String("error", err.Error()),
		)
		return
	}

	// A fetch that raced a generation change must not interleave byte
	// ranges from two files; the next cycle re-reads from offset zero.
	if s.idLists.Get(name) != list {
		return
	}

	if resp.ContentLength < 0 {
		s.logger.Warn("id list response missing content length, dropping list", slog.String("list", name))
		s.idLists.Remove(name)
		observability.IDListResets.Inc()
		return
	}

	// Credit the advertised length before parsing so a corrupt chunk does
	// not leave the resume offset pointing into its middle.
	list.AdvanceReadBytes(resp.ContentLength)

	if err := list.Apply(resp.Body); err != nil {
		s.logger.Warn("id list chunk invalid, dropping list",
			slog.String("list", name),
			slog.String("error", err.Error()),
		)
		s.idLists.Remove(name)
		observability.IDListResets.Inc()
	}
}

// persistIDListsToAdapter exports the manifest and per-list membership
// snapshots so sibling processes can bootstrap without hitting storage.
func (s *Store) persistIDListsToAdapter(ctx context.Context, manifest map[string]manifestEntry) {
	now := s.LastUpdateTime()

	raw, err := json.Marshal(manifest)
	if err == nil {
		if err := s.dataAdapter.Set(ctx, adapter.KeyIDLists, string(raw), now); err != nil {
			s.logger.Warn("failed to push id list manifest to data adapter", slog.String("error", err.Error()))
			return
		}
	}

	for _, name := range s.idLists.Names() {
		list := s.idLists.Get(name)
		if list == nil {
			continue
		}
		if err := s.dataAdapter.Set(ctx, adapter.IDListKey(name), exportList(list.Snapshot()), now); err != nil {
			s.logger.Warn("failed to push id list to data adapter",
				slog.String("list", name),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// exportList renders a membership snapshot in the same +<hash> line format
// the ingest path consumes, sorted for deterministic output.
func exportList(ids []string) string {
	sort.Strings(ids)

	var sb strings.Builder
	for _, id := range ids {
		sb.WriteByte('+')
		sb.WriteString(id)
		sb.WriteByte('\n')
	}
	return sb.String()
}
