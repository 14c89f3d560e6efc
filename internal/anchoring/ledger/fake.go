package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"receiptanchor/internal/anchoring/models"
	domainerrors "receiptanchor/pkg/domain-errors"
)

// Fake is an in-memory Gateway used in tests and in local development when
// no log deployment is available. It preserves the log's observable
// semantics: strictly increasing sequence numbers, monotonic consensus
// timestamps, a running hash chain, and (optionally) replica propagation lag.
type Fake struct {
	mu       sync.Mutex
	topicID  string
	entries  []models.LedgerEntry
	lastSeen time.Time

	// PublishErr and QueryErr, when set, fail the corresponding call.
	PublishErr error
	QueryErr   error
	// Lag hides the newest Lag entries from QueryEntries, simulating a
	// replica that has not caught up with the publish path yet.
	Lag int
	// FailPublishContaining fails any Publish whose payload contains the
	// substring, for per-item batch failure tests.
	FailPublishContaining string
}

// NewFake builds a fake gateway with a fixed topic.
func NewFake() *Fake {
	return &Fake{topicID: "0.0.90001"}
}

func (f *Fake) EnsureTopic(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topicID, nil
}

func (f *Fake) Publish(ctx context.Context, topicID string, payload []byte) (PublishReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishErr != nil {
		return PublishReceipt{}, f.PublishErr
	}
	if f.FailPublishContaining != "" && bytes.Contains(payload, []byte(f.FailPublishContaining)) {
		return PublishReceipt{}, domainerrors.New(domainerrors.CodeLedgerUnavailable, "injected publish failure")
	}
	if topicID != f.topicID {
		return PublishReceipt{}, domainerrors.New(domainerrors.CodeLedgerUnavailable,
			fmt.Sprintf("unknown topic %s", topicID))
	}

	now := time.Now().UTC()
	if !now.After(f.lastSeen) {
		now = f.lastSeen.Add(time.Nanosecond)
	}
	f.lastSeen = now

	seq := int64(len(f.entries) + 1)
	entry := models.LedgerEntry{
		TopicID:            topicID,
		SequenceNumber:     seq,
		ConsensusTimestamp: now,
		Payload:            append([]byte(nil), payload...),
		RunningHash:        fmt.Sprintf("rh-%s-%d", topicID, seq),
	}
	f.entries = append(f.entries, entry)

	return PublishReceipt{
		SequenceNumber:     seq,
		ConsensusTimestamp: now,
		TransactionRef:     fmt.Sprintf("tx-%s-%d", topicID, seq),
	}, nil
}

func (f *Fake) QueryEntries(ctx context.Context, topicID string, limit int) ([]models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	if topicID != f.topicID {
		return nil, nil
	}

	visible := len(f.entries) - f.Lag
	if visible < 0 {
		visible = 0
	}
	start := visible - limit
	if start < 0 {
		start = 0
	}

	// Newest first, like the mirror's order=desc.
	out := make([]models.LedgerEntry, 0, visible-start)
	for i := visible - 1; i >= start; i-- {
		out = append(out, f.entries[i])
	}
	return out, nil
}

func (f *Fake) Status(ctx context.Context) (models.GatewayStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.GatewayStatus{Network: "in-memory", TopicID: f.topicID, Connected: true}, nil
}

// TamperEntry rewrites the payload at the given sequence number. Only tests
// use this to simulate a (hypothetically) corrupted replica.
func (f *Fake) TamperEntry(sequenceNumber int64, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].SequenceNumber == sequenceNumber {
			f.entries[i].Payload = append([]byte(nil), payload...)
		}
	}
}
