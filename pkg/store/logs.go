package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/Tim-sandbox/barista/pkg/model"
)

// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll calls.
var (
	logEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	logDecoder, _ = zstd.NewReader(nil)
)

// PutScanLog stores the fetcher log of a scan, replacing any earlier one.
// The text is zstd-compressed.
func (s *Store) PutScanLog(ctx context.Context, scanID, text string) error {
	data := logEncoder.EncodeAll([]byte(text), nil)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_logs (scan_id, data, size, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(scan_id) DO UPDATE SET
			data = excluded.data,
			size = excluded.size,
			created_at = excluded.created_at`,
		scanID, data, len(text), millis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("store log of scan %s: %w", scanID, err)
	}
	return nil
}

// GetScanLog returns the stored log of a scan or a NOT_FOUND error.
func (s *Store) GetScanLog(ctx context.Context, scanID string) (*model.ScanLog, error) {
	var (
		data    []byte
		size    int
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, size, created_at FROM scan_logs WHERE scan_id = ?`, scanID,
	).Scan(&data, &size, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("log of scan", scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("get log of scan %s: %w", scanID, err)
	}

	text, err := logDecoder.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("decompress log of scan %s: %w", scanID, err)
	}
	return &model.ScanLog{ScanID: scanID, Log: string(text), CreatedAt: fromMillis(created)}, nil
}
