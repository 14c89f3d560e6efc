package service

import (
	"context"

	"receiptanchor/internal/anchoring/models"
	domainerrors "receiptanchor/pkg/domain-errors"
)

// BulkAnchor anchors many receipts best-effort. Items run strictly
// sequentially and paced by the rate limiter so the external log's limits
// are respected. A per-item failure (including already_anchored) is
// recorded and the batch continues; nothing is rolled back. Anchoring is
// idempotent per record, so a partially failed batch is safely retried by
// resubmitting only the failed subset.
func (s *Service) BulkAnchor(ctx context.Context, recordIDs []string) *models.BulkAnchorResult {
	result := &models.BulkAnchorResult{
		Succeeded: []*models.AnchorRecord{},
		Failed:    []models.BulkAnchorFailure{},
	}

	for i, recordID := range recordIDs {
		// Once the caller gives up, stop scheduling further publishes. An
		// in-flight publish is never cancelled: it may already be durable
		// on the log.
		if err := ctx.Err(); err != nil {
			for _, remaining := range recordIDs[i:] {
				result.Failed = append(result.Failed, models.BulkAnchorFailure{
					RecordID: remaining,
					Code:     "canceled",
					Message:  "batch stopped before this item was attempted",
				})
				s.metrics.BulkItems.WithLabelValues("canceled").Inc()
			}
			return result
		}

		s.limiter.Take()

		record, err := s.Anchor(ctx, recordID)
		if err != nil {
			result.Failed = append(result.Failed, models.BulkAnchorFailure{
				RecordID: recordID,
				Code:     string(domainerrors.CodeOf(err)),
				Message:  err.Error(),
			})
			s.metrics.BulkItems.WithLabelValues("failed").Inc()
			s.logger.WarnContext(ctx, "bulk anchor item failed",
				"record_id", recordID,
				"code", string(domainerrors.CodeOf(err)),
			)
			continue
		}
		result.Succeeded = append(result.Succeeded, record)
		s.metrics.BulkItems.WithLabelValues("succeeded").Inc()
	}
	return result
}
