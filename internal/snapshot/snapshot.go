// Package snapshot persists the full tracker state (orders plus derived
// summaries) as JSON. Persistence is best-effort: the summaries inside a
// snapshot are advisory and are reconciled by a recompute on load.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"oms/internal/model"
	"oms/internal/stats"
)

// State is the persisted shape: the ledger contents and the summaries that
// were current when the snapshot was written.
type State struct {
	Orders   []model.OrderRecord            `json:"orders"`
	Customer stats.CustomerMetrics          `json:"customerMetrics"`
	Sellers  map[string]stats.SellerMetrics `json:"sellerMetrics"`
	SavedAt  int64                          `json:"savedAt"`
}

type Snapshotter interface {
	WriteSnapshot(snapshotID string, st State) error
}

type FilesystemSnapshotter struct {
	baseDir string
}

func NewFilesystemSnapshotter(baseDir string) *FilesystemSnapshotter {
	return &FilesystemSnapshotter{baseDir: baseDir}
}

func (f *FilesystemSnapshotter) WriteSnapshot(snapshotID string, st State) error {
	if err := os.MkdirAll(filepath.Join(f.baseDir, snapshotID), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	file := filepath.Join(f.baseDir, snapshotID, "state.json")
	out, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer out.Close()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&st); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// Read loads a previously written snapshot.
func (f *FilesystemSnapshotter) Read(snapshotID string) (State, error) {
	file := filepath.Join(f.baseDir, snapshotID, "state.json")
	data, err := os.ReadFile(file)
	if err != nil {
		return State{}, fmt.Errorf("read snapshot: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return st, nil
}
