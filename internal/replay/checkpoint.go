package replay

import (
	"fmt"
	"os"
	"time"

	"curveLedger/internal/storage"
)

// Checkpoint records the last operation whose events reached the sinks, and
// how many events had been written by then.
type Checkpoint struct {
	LastProcessedSeq uint64 `json:"last_processed_seq"`
	EventSeq         uint64 `json:"event_seq"`
	UpdatedAt        string `json:"updated_at"`
}

// CheckpointStore persists checkpoints to disk. A disabled store loads
// nothing and saves nothing.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled && path != ""}
}

func (c *CheckpointStore) Load() (Checkpoint, bool, error) {
	if !c.enabled {
		return Checkpoint{}, false, nil
	}
	if stat, err := os.Stat(c.path); err == nil && stat.IsDir() {
		return Checkpoint{}, false, fmt.Errorf("checkpoint path %s is a directory", c.path)
	}
	var cp Checkpoint
	ok, err := storage.ReadJSONFile(c.path, &cp)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("checkpoint: %w", err)
	}
	return cp, ok, nil
}

func (c *CheckpointStore) Save(lastSeq, eventSeq uint64) error {
	if !c.enabled {
		return nil
	}
	err := storage.WriteJSONFile(c.path, Checkpoint{
		LastProcessedSeq: lastSeq,
		EventSeq:         eventSeq,
		UpdatedAt:        time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}
