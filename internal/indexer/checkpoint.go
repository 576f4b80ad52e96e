package indexer

import (
	"time"

	"pmrouter/internal/storage"
)

// Checkpoint tracks the last synced block and the last sequence number handed out.
type Checkpoint struct {
	LastProcessedBlock uint64    `json:"last_processed_block"`
	LastSeq            uint64    `json:"last_seq"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CheckpointStore persists checkpoints as a JSON file. A nil or disabled store loads
// nothing and saves nothing.
type CheckpointStore struct {
	path    string
	enabled bool
}

// NewCheckpointStore returns a store at path.
func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled && path != ""}
}

// Load reads the checkpoint. found is false when none exists yet.
func (c *CheckpointStore) Load() (cp Checkpoint, found bool, err error) {
	if c == nil || !c.enabled {
		return Checkpoint{}, false, nil
	}
	found, err = storage.ReadJSONFile(c.path, &cp)
	return cp, found, err
}

// Save replaces the checkpoint atomically.
func (c *CheckpointStore) Save(lastProcessed, lastSeq uint64) error {
	if c == nil || !c.enabled {
		return nil
	}
	return storage.WriteJSONFile(c.path, Checkpoint{
		LastProcessedBlock: lastProcessed,
		LastSeq:            lastSeq,
		UpdatedAt:          time.Now().UTC(),
	})
}
