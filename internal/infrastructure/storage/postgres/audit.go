package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/audit"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the payload size above which snapshots are compressed.
const DefaultCompressThreshold = 10 * 1024

// AuditRecord is a stored admin_audit_log row.
type AuditRecord struct {
	ID               id.ID           `db:"id" json:"id"`
	TableName        string          `db:"table_name" json:"tableName"`
	RowPK            string          `db:"row_pk" json:"rowPk"`
	Action           audit.Action    `db:"action" json:"action"`
	Before           json.RawMessage `db:"before" json:"before,omitempty"`
	After            json.RawMessage `db:"after" json:"after,omitempty"`
	BeforeCompressed []byte          `db:"before_compressed" json:"-"`
	AfterCompressed  []byte          `db:"after_compressed" json:"-"`
	CompressionAlgo  CompressionAlgo `db:"compression_algo" json:"-"`
	Comment          *string         `db:"comment" json:"comment,omitempty"`
	ActorID          *id.ID          `db:"actor_id" json:"actorId,omitempty"`
	RequestID        *string         `db:"request_id" json:"requestId,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
}

// AuditSink stores audit entries delivered by the outbox relay.
type AuditSink struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditSink creates a new audit sink. threshold <= 0 uses DefaultCompressThreshold.
func NewAuditSink(txManager *TxManager, threshold int) (*AuditSink, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}
	return &AuditSink{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: threshold,
	}, nil
}

// Write inserts the entry under recordID. Redelivery of the same record is a no-op.
func (s *AuditSink) Write(ctx context.Context, recordID id.ID, entry audit.Entry) error {
	rec, err := s.encode(recordID, entry)
	if err != nil {
		return err
	}

	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO admin_audit_log (
			id, table_name, row_pk, action, before, after,
			before_compressed, after_compressed, compression_algo,
			comment, actor_id, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`,
		rec.ID, rec.TableName, rec.RowPK, rec.Action, nullJSON(rec.Before), nullJSON(rec.After),
		rec.BeforeCompressed, rec.AfterCompressed, rec.CompressionAlgo,
		rec.Comment, rec.ActorID, rec.RequestID, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *AuditSink) encode(recordID id.ID, entry audit.Entry) (AuditRecord, error) {
	before, err := marshalSnapshot(entry.Before)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("marshal before: %w", err)
	}
	after, err := marshalSnapshot(entry.After)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("marshal after: %w", err)
	}

	createdAt := entry.RecordedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	rec := AuditRecord{
		ID:              recordID,
		TableName:       entry.TableName,
		RowPK:           entry.RowPK,
		Action:          entry.Action,
		Before:          before,
		After:           after,
		CompressionAlgo: CompressionNone,
		Comment:         optionalString(entry.Comment),
		ActorID:         entry.ActorID,
		RequestID:       optionalString(entry.RequestID),
		CreatedAt:       createdAt,
	}

	if len(before)+len(after) > s.compressThreshold {
		rec.BeforeCompressed = s.compress(before)
		rec.AfterCompressed = s.compress(after)
		rec.Before, rec.After = nil, nil
		rec.CompressionAlgo = CompressionZstd
	}
	return rec, nil
}

func (s *AuditSink) compress(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return s.encoder.EncodeAll(b, nil)
}

// History returns the newest entries for a row, decompressed.
func (s *AuditSink) History(ctx context.Context, tableName, rowPK string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []AuditRecord
	err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &records, `
		SELECT id, table_name, row_pk, action, before, after,
		       before_compressed, after_compressed, compression_algo,
		       comment, actor_id, request_id, created_at
		FROM admin_audit_log
		WHERE table_name = $1 AND row_pk = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, tableName, rowPK, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}

	for i := range records {
		if err := s.decompress(&records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *AuditSink) decompress(rec *AuditRecord) error {
	if rec.CompressionAlgo != CompressionZstd {
		return nil
	}
	if len(rec.BeforeCompressed) > 0 {
		b, err := s.decoder.DecodeAll(rec.BeforeCompressed, nil)
		if err != nil {
			return fmt.Errorf("decompress before: %w", err)
		}
		rec.Before = b
	}
	if len(rec.AfterCompressed) > 0 {
		b, err := s.decoder.DecodeAll(rec.AfterCompressed, nil)
		if err != nil {
			return fmt.Errorf("decompress after: %w", err)
		}
		rec.After = b
	}
	rec.BeforeCompressed, rec.AfterCompressed = nil, nil
	rec.CompressionAlgo = CompressionNone
	return nil
}

func marshalSnapshot(m map[string]any) (json.RawMessage, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// nullJSON keeps absent snapshots NULL instead of the JSON literal null.
func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
