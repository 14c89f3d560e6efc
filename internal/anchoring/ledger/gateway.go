// Package ledger abstracts the external append-only consensus log. The
// gateway is a long-lived, constructor-injected client: callers own its
// lifecycle and tests substitute a fake.
package ledger

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"receiptanchor/internal/anchoring/models"
)

// PublishReceipt is the log's acknowledgement of a submitted payload. The
// consensus timestamp is the log's own ordering time and may lag wall clock.
type PublishReceipt struct {
	SequenceNumber     int64
	ConsensusTimestamp time.Time
	TransactionRef     string
}

// Gateway is the publish/query surface of the consensus log.
//
// Publish blocks until the log acknowledges the submission and never retries
// internally: a retried publish can silently duplicate an entry, so retry
// policy belongs to the caller. QueryEntries reads from an eventually
// consistent replica; a just-published entry may not be visible yet.
type Gateway interface {
	EnsureTopic(ctx context.Context) (string, error)
	Publish(ctx context.Context, topicID string, payload []byte) (PublishReceipt, error)
	QueryEntries(ctx context.Context, topicID string, limit int) ([]models.LedgerEntry, error)
	Status(ctx context.Context) (models.GatewayStatus, error)
}

// LookupURL builds the deterministic read-replica URL for a single entry.
// It is a pure function of the topic and sequence number so proof bundles
// exported at different times point at byte-identical locations.
func LookupURL(mirrorBase, topicID string, sequenceNumber int64) string {
	return fmt.Sprintf("%s/api/v1/topics/%s/messages/%d",
		mirrorBase, url.PathEscape(topicID), sequenceNumber)
}
