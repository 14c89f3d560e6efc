// Package store persists anchor records and reads receipts. Stores are
// interface-driven so services stay testable and in-memory and postgres
// implementations swap without rewiring business code.
package store

import (
	"context"

	"receiptanchor/internal/anchoring/models"
	domainerrors "receiptanchor/pkg/domain-errors"
)

// ReceiptStore is the read surface of the externally owned receipt store.
type ReceiptStore interface {
	FindByID(ctx context.Context, id string) (*models.Receipt, error)
}

// AnchorStore persists anchor records. InsertIfAbsent is the authoritative
// guard against double anchoring: implementations must enforce uniqueness on
// the record ID at the storage level so two concurrent anchor calls can
// never both succeed.
type AnchorStore interface {
	InsertIfAbsent(ctx context.Context, record *models.AnchorRecord) error
	FindByRecordID(ctx context.Context, recordID string) (*models.AnchorRecord, error)
}

var (
	// ErrNotFound keeps storage-level 404s consistent across implementations.
	ErrNotFound = domainerrors.New(domainerrors.CodeNotFound, "record not found")
	// ErrDuplicateAnchor is returned by InsertIfAbsent when an anchor record
	// already exists for the receipt.
	ErrDuplicateAnchor = domainerrors.New(domainerrors.CodeAlreadyAnchored, "receipt is already anchored")
)
