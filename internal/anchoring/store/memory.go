package store

import (
	"context"
	"sync"

	"receiptanchor/internal/anchoring/models"
)

// In-memory stores favor clarity over performance. They back tests and local
// development; production deployments use the postgres implementations.

// InMemoryReceiptStore holds receipts keyed by ID.
type InMemoryReceiptStore struct {
	mu       sync.RWMutex
	receipts map[string]models.Receipt
}

func NewInMemoryReceiptStore() *InMemoryReceiptStore {
	return &InMemoryReceiptStore{receipts: make(map[string]models.Receipt)}
}

// Save seeds or replaces a receipt. The anchoring core never calls this; it
// exists for the external system's sake (and for tests).
func (s *InMemoryReceiptStore) Save(_ context.Context, receipt models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[receipt.ID] = receipt
	return nil
}

func (s *InMemoryReceiptStore) FindByID(_ context.Context, id string) (*models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if receipt, ok := s.receipts[id]; ok {
		copied := receipt
		copied.Items = append([]models.LineItem(nil), receipt.Items...)
		return &copied, nil
	}
	return nil, ErrNotFound
}

// InMemoryAnchorStore enforces the one-anchor-per-receipt invariant under a
// single lock, mirroring the unique constraint the postgres store relies on.
type InMemoryAnchorStore struct {
	mu      sync.RWMutex
	anchors map[string]models.AnchorRecord
}

func NewInMemoryAnchorStore() *InMemoryAnchorStore {
	return &InMemoryAnchorStore{anchors: make(map[string]models.AnchorRecord)}
}

func (s *InMemoryAnchorStore) InsertIfAbsent(_ context.Context, record *models.AnchorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.anchors[record.RecordID]; exists {
		return ErrDuplicateAnchor
	}
	s.anchors[record.RecordID] = *record
	return nil
}

func (s *InMemoryAnchorStore) FindByRecordID(_ context.Context, recordID string) (*models.AnchorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.anchors[recordID]; ok {
		copied := record
		return &copied, nil
	}
	return nil, ErrNotFound
}
