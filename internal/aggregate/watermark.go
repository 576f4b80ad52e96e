package aggregate

import (
	"context"
	"time"

	"pmrouter/internal/storage"
)

// Watermark remembers the newest fill timestamp already folded into stored windows.
type Watermark interface {
	Load(ctx context.Context) (ts uint64, found bool, err error)
	Save(ctx context.Context, ts uint64) error
}

// FileWatermark keeps the watermark in a local JSON file.
type FileWatermark struct {
	Path string
}

type watermarkFile struct {
	LastProcessed uint64    `json:"last_processed_ts"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (w *FileWatermark) Load(context.Context) (uint64, bool, error) {
	if w == nil || w.Path == "" {
		return 0, false, nil
	}
	var rec watermarkFile
	found, err := storage.ReadJSONFile(w.Path, &rec)
	return rec.LastProcessed, found, err
}

func (w *FileWatermark) Save(_ context.Context, ts uint64) error {
	if w == nil || w.Path == "" {
		return nil
	}
	return storage.WriteJSONFile(w.Path, watermarkFile{LastProcessed: ts, UpdatedAt: time.Now().UTC()})
}

// WatermarkTable is a named watermark row store such as *postgres.Store.
type WatermarkTable interface {
	Watermark(ctx context.Context, name string) (uint64, bool, error)
	SetWatermark(ctx context.Context, name string, position uint64) error
}

// TableWatermark keeps the watermark under Name in a WatermarkTable.
type TableWatermark struct {
	Table WatermarkTable
	Name  string
}

func (w *TableWatermark) Load(ctx context.Context) (uint64, bool, error) {
	if w == nil || w.Table == nil {
		return 0, false, nil
	}
	return w.Table.Watermark(ctx, w.Name)
}

func (w *TableWatermark) Save(ctx context.Context, ts uint64) error {
	if w == nil || w.Table == nil {
		return nil
	}
	return w.Table.SetWatermark(ctx, w.Name, ts)
}
