package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"receiptanchor/internal/anchoring/models"
)

// uniqueViolation is the postgres error code raised when an insert breaks a
// unique constraint.
const uniqueViolation = "23505"

// PostgresAnchorStore persists anchor records in PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE anchor_records (
//	    record_id           TEXT PRIMARY KEY,
//	    topic_id            TEXT NOT NULL,
//	    sequence_number     BIGINT NOT NULL,
//	    consensus_timestamp TIMESTAMPTZ NOT NULL,
//	    content_hash        TEXT NOT NULL,
//	    transaction_ref     TEXT NOT NULL,
//	    anchored_at         TIMESTAMPTZ NOT NULL
//	);
//
// The primary key on record_id is the authoritative guard against two
// concurrent anchor calls for the same receipt.
type PostgresAnchorStore struct {
	db *sql.DB
}

func NewPostgresAnchorStore(db *sql.DB) *PostgresAnchorStore {
	return &PostgresAnchorStore{db: db}
}

func (s *PostgresAnchorStore) InsertIfAbsent(ctx context.Context, record *models.AnchorRecord) error {
	query := `
		INSERT INTO anchor_records
			(record_id, topic_id, sequence_number, consensus_timestamp, content_hash, transaction_ref, anchored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.RecordID,
		record.TopicID,
		record.SequenceNumber,
		record.ConsensusTimestamp,
		record.ContentHash,
		record.TransactionRef,
		record.AnchoredAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateAnchor
		}
		return fmt.Errorf("insert anchor record: %w", err)
	}
	return nil
}

func (s *PostgresAnchorStore) FindByRecordID(ctx context.Context, recordID string) (*models.AnchorRecord, error) {
	query := `
		SELECT record_id, topic_id, sequence_number, consensus_timestamp, content_hash, transaction_ref, anchored_at
		FROM anchor_records
		WHERE record_id = $1
	`
	var record models.AnchorRecord
	err := s.db.QueryRowContext(ctx, query, recordID).Scan(
		&record.RecordID,
		&record.TopicID,
		&record.SequenceNumber,
		&record.ConsensusTimestamp,
		&record.ContentHash,
		&record.TransactionRef,
		&record.AnchoredAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find anchor record: %w", err)
	}
	record.ConsensusTimestamp = record.ConsensusTimestamp.UTC()
	record.AnchoredAt = record.AnchoredAt.UTC()
	return &record, nil
}

// PostgresReceiptStore reads receipts from the externally owned tables. The
// anchoring core never writes here.
//
// Expected schema (owned by the receipt system):
//
//	receipts(id, owner_ref, merchant_ref, total_minor, currency, issued_at)
//	receipt_items(receipt_id, position, name, quantity, unit_price_minor)
type PostgresReceiptStore struct {
	db *sql.DB
}

func NewPostgresReceiptStore(db *sql.DB) *PostgresReceiptStore {
	return &PostgresReceiptStore{db: db}
}

func (s *PostgresReceiptStore) FindByID(ctx context.Context, id string) (*models.Receipt, error) {
	var receipt models.Receipt
	var issuedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_ref, merchant_ref, total_minor, currency, issued_at
		FROM receipts
		WHERE id = $1
	`, id).Scan(
		&receipt.ID,
		&receipt.OwnerRef,
		&receipt.MerchantRef,
		&receipt.TotalMinor,
		&receipt.Currency,
		&issuedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find receipt: %w", err)
	}
	receipt.IssuedAt = issuedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, quantity, unit_price_minor
		FROM receipt_items
		WHERE receipt_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("find receipt items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.Name, &item.Quantity, &item.UnitPriceMinor); err != nil {
			return nil, fmt.Errorf("scan receipt item: %w", err)
		}
		receipt.Items = append(receipt.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipt items: %w", err)
	}
	return &receipt, nil
}
