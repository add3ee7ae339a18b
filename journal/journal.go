// Package journal appends confirmed uploads to a Lode dataset.
//
// Records are JSONL, Hive-partitioned by event and day, so an operator can
// audit what left the booth without touching the sync map. Appends are best
// effort: the sync map stays the source of truth for idempotence.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/pithecene-io/boothbridge/types"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "boothbridge"

// Config configures the journal.
type Config struct {
	// Dataset is the Lode dataset id (default "boothbridge").
	Dataset string
	// BridgeID is stamped on records that carry none.
	BridgeID string
}

// Journal is a Lode-backed append-only log of confirmed uploads.
type Journal struct {
	dataset lode.Dataset
	config  Config
	mu      sync.Mutex
}

// New creates a journal over a store factory.
// Use lode.NewMemoryFactory() for testing.
func New(cfg Config, factory lode.StoreFactory) (*Journal, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, fmt.Errorf("journal: create dataset: %w", err)
	}
	return &Journal{dataset: ds, config: cfg}, nil
}

// NewMemory creates a journal kept in process memory. Records are lost on
// exit; useful for inspecting recent uploads through the bridge.
func NewMemory(cfg Config) (*Journal, error) {
	return New(cfg, lode.NewMemoryFactory())
}

// NewFS creates a journal with filesystem storage under root.
func NewFS(cfg Config, root string) (*Journal, error) {
	if root == "" {
		return nil, errors.New("journal: root is required")
	}
	return New(cfg, lode.NewFSFactory(root))
}

// NewS3 creates a journal stored in an S3 bucket.
func NewS3(cfg Config, client *s3.Client, bucket, prefix string) (*Journal, error) {
	if client == nil || bucket == "" {
		return nil, errors.New("journal: S3 client and bucket are required")
	}
	factory := func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: bucket,
			Prefix: prefix,
		})
	}
	return New(cfg, factory)
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout("event", "day"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Append writes one confirmed upload.
func (j *Journal) Append(ctx context.Context, ev types.ArtifactSynced) error {
	if ev.Key == "" {
		return errors.New("journal: record key is required")
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	records := []any{toRecordMap(ev, j.config.BridgeID)}
	if _, err := j.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return fmt.Errorf("journal: write %s: %w", ev.Key, err)
	}
	return nil
}

// Recent returns up to limit confirmed uploads, newest first, one per key.
// A limit of zero or less returns every record.
func (j *Journal) Recent(ctx context.Context, limit int) ([]types.ArtifactSynced, error) {
	snapshots, err := j.dataset.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: list snapshots: %w", err)
	}

	var out []types.ArtifactSynced
	seen := make(map[string]struct{})
	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		data, err := j.dataset.Read(ctx, snapshots[i].ID)
		if err != nil {
			return nil, fmt.Errorf("journal: read snapshot %s: %w", snapshots[i].ID, err)
		}
		for k := len(data) - 1; k >= 0; k-- {
			m, ok := data[k].(map[string]any)
			if !ok {
				continue
			}
			ev, ok := fromRecordMap(m)
			if !ok {
				continue
			}
			if _, dup := seen[ev.Key]; dup {
				continue
			}
			seen[ev.Key] = struct{}{}
			out = append(out, ev)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}
