package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/domain"
)

type cacheEntry struct {
	capability string
	key        string
	packID     string
}

// newCacheEntry derives the graph key of a cacheable step: the SHA-256 of the canonical
// JSON encoding of its input. encoding/json writes map keys sorted, so equal inputs
// always produce the same key.
func newCacheEntry(contract capabilities.Contract, in capabilities.Input) (*cacheEntry, error) {
	packID, err := in.PackID(contract.PackInput)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(map[string]any(in))
	if err != nil {
		return nil, &domain.ValidationError{Field: contract.Name, Reason: fmt.Sprintf("input is not serializable: %v", err)}
	}
	sum := sha256.Sum256(encoded)
	return &cacheEntry{
		capability: contract.Name,
		key:        hex.EncodeToString(sum[:]),
		packID:     packID,
	}, nil
}

// lookup returns a recorded output for the entry. Store and decode failures count as misses.
func (o *Orchestrator) lookup(ctx context.Context, agent capabilities.Agent, entry *cacheEntry) (any, bool) {
	node, err := o.store.GetLatestForPack(ctx, entry.capability, entry.key, entry.packID)
	if err != nil {
		o.log.Warn().Err(err).Str("capability", entry.capability).Msg("Cache lookup failed")
		o.metrics.observeCache(entry.capability, false)
		return nil, false
	}
	if node == nil {
		o.metrics.observeCache(entry.capability, false)
		return nil, false
	}

	output, err := agent.(capabilities.OutputDecoder).DecodeOutput(node.Payload)
	if err != nil {
		o.log.Warn().Err(err).Str("capability", entry.capability).Int64("node_id", node.ID).Msg("Cached output is unreadable")
		o.metrics.observeCache(entry.capability, false)
		return nil, false
	}
	o.metrics.observeCache(entry.capability, true)
	return output, true
}

// record appends the output to the graph store. A failed write only costs a future recomputation.
func (o *Orchestrator) record(ctx context.Context, entry *cacheEntry, output any) {
	payload, err := json.Marshal(output)
	if err != nil {
		o.log.Warn().Err(err).Str("capability", entry.capability).Msg("Failed to encode output for cache")
		return
	}
	if _, err := o.store.Put(context.WithoutCancel(ctx), entry.capability, entry.key, payload, entry.packID); err != nil {
		o.log.Warn().Err(err).Str("capability", entry.capability).Str("pack_id", entry.packID).Msg("Failed to record output")
	}
}
