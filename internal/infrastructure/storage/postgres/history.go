package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"fieldsettings/internal/core/id"
	"fieldsettings/internal/domain/fieldsettings"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the payload size above which snapshots are compressed.
const DefaultCompressThreshold = 4 * 1024

// HistoryEntry is one saved version of an institute's settings.
type HistoryEntry struct {
	ID              string          `db:"id" json:"id"`
	InstituteID     string          `db:"institute_id" json:"instituteId"`
	Version         int             `db:"version" json:"version"`
	UserID          string          `db:"user_id" json:"userId,omitempty"`
	Snapshot        json.RawMessage `db:"snapshot" json:"snapshot"`
	SnapshotZstd    []byte          `db:"snapshot_compressed" json:"-"`
	CompressionAlgo CompressionAlgo `db:"compression_algo" json:"compression"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

var historyColumns = ExtractDBColumns[HistoryEntry]()

// History records every saved snapshot, compressing large ones with zstd.
type History struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewHistory creates a snapshot history.
func NewHistory(txManager *TxManager) (*History, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &History{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: DefaultCompressThreshold,
	}, nil
}

// newEntry encodes s, compressing it above the threshold.
func (h *History) newEntry(instituteID, userID string, s *fieldsettings.Snapshot) (HistoryEntry, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	entry := HistoryEntry{
		ID:              id.NewString(),
		InstituteID:     instituteID,
		Version:         s.Version,
		UserID:          userID,
		Snapshot:        payload,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}
	if len(payload) > h.compressThreshold {
		entry.SnapshotZstd = h.encoder.EncodeAll(payload, nil)
		entry.Snapshot = nil
		entry.CompressionAlgo = CompressionZstd
	}
	return entry, nil
}

// decode restores the JSON payload of a stored entry.
func (h *History) decode(e *HistoryEntry) error {
	if e.CompressionAlgo != CompressionZstd || len(e.SnapshotZstd) == 0 {
		return nil
	}
	payload, err := h.decoder.DecodeAll(e.SnapshotZstd, nil)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}
	e.Snapshot = payload
	e.SnapshotZstd = nil
	return nil
}

// Record stores s as the given institute's newest version.
func (h *History) Record(ctx context.Context, instituteID, userID string, s *fieldsettings.Snapshot) error {
	entry, err := h.newEntry(instituteID, userID, s)
	if err != nil {
		return err
	}

	sql, args, err := builder().
		Insert(tableHistory).
		Columns(historyColumns...).
		Values(ValuesOf(historyColumns, entry)...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build history insert: %w", err)
	}
	if _, err := h.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// List returns the newest entries of an institute, newest first.
func (h *History) List(ctx context.Context, instituteID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	sql, args, err := builder().
		Select(historyColumns...).
		From(tableHistory).
		Where(squirrel.Eq{"institute_id": instituteID}).
		OrderBy("version DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var entries []HistoryEntry
	if err := pgxscan.Select(ctx, h.txManager.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	for i := range entries {
		if err := h.decode(&entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// pruneQuery deletes every entry of an institute older than the newest keep.
func pruneQuery(instituteID string, keep int) squirrel.Sqlizer {
	newest := builder().
		Select("id").
		From(tableHistory).
		Where(squirrel.Eq{"institute_id": instituteID}).
		OrderBy("version DESC").
		Limit(uint64(keep))
	return builder().
		Delete(tableHistory).
		Where(squirrel.Eq{"institute_id": instituteID}).
		Where(squirrel.Expr("id NOT IN (?)", newest))
}

// Prune keeps the newest keep entries of an institute and returns how many
// were deleted.
func (h *History) Prune(ctx context.Context, instituteID string, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("prune history: keep must be positive, got %d", keep)
	}
	sql, args, err := pruneQuery(instituteID, keep).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build history prune: %w", err)
	}
	tag, err := h.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return tag.RowsAffected(), nil
}
