package service

import (
	"context"
	"time"

	"receiptanchor/internal/anchoring/models"
)

// Bulk anchoring tests share the ServiceSuite fixtures.
type BatchSuite = ServiceSuite

func (s *BatchSuite) succeededIDs(result *models.BulkAnchorResult) []string {
	ids := make([]string, 0, len(result.Succeeded))
	for _, record := range result.Succeeded {
		ids = append(ids, record.RecordID)
	}
	return ids
}

func (s *BatchSuite) TestBulkAnchorAll() {
	s.seedCafeReceipt("a")
	s.seedCafeReceipt("b")
	s.seedCafeReceipt("c")

	result := s.svc.BulkAnchor(s.ctx, []string{"a", "b", "c"})

	s.ElementsMatch([]string{"a", "b", "c"}, s.succeededIDs(result))
	s.Empty(result.Failed)
}

func (s *BatchSuite) TestBulkAnchorIsolatesPerItemFailure() {
	s.seedCafeReceipt("a")
	bReceipt := s.seedCafeReceipt("b")
	s.seedCafeReceipt("c")

	// Fail only b's publish by matching its content hash in the payload.
	bHash := s.mustFingerprintOf(bReceipt)
	s.gateway.FailPublishContaining = bHash

	result := s.svc.BulkAnchor(s.ctx, []string{"a", "b", "c"})

	s.ElementsMatch([]string{"a", "c"}, s.succeededIDs(result))
	s.Require().Len(result.Failed, 1)
	s.Equal("b", result.Failed[0].RecordID)
	s.Equal("ledger_unavailable", result.Failed[0].Code)

	// Resubmitting only the failed subset succeeds.
	s.gateway.FailPublishContaining = ""
	retry := s.svc.BulkAnchor(s.ctx, []string{"b"})
	s.ElementsMatch([]string{"b"}, s.succeededIDs(retry))
	s.Empty(retry.Failed)
}

func (s *BatchSuite) TestBulkAnchorReportsAlreadyAnchoredAndContinues() {
	s.seedCafeReceipt("a")
	s.seedCafeReceipt("b")

	_, err := s.svc.Anchor(s.ctx, "a")
	s.Require().NoError(err)

	result := s.svc.BulkAnchor(s.ctx, []string{"a", "b"})

	s.ElementsMatch([]string{"b"}, s.succeededIDs(result))
	s.Require().Len(result.Failed, 1)
	s.Equal("a", result.Failed[0].RecordID)
	s.Equal("already_anchored", result.Failed[0].Code)
}

func (s *BatchSuite) TestBulkAnchorStopsSchedulingOnCancel() {
	s.seedCafeReceipt("a")
	s.seedCafeReceipt("b")

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	result := s.svc.BulkAnchor(ctx, []string{"a", "b"})

	s.Empty(result.Succeeded)
	s.Require().Len(result.Failed, 2)
	for _, failure := range result.Failed {
		s.Equal("canceled", failure.Code)
	}
}

func (s *BatchSuite) TestBulkAnchorPacesSubmissions() {
	s.svc.limiter = newCountingLimiter()
	s.seedCafeReceipt("a")
	s.seedCafeReceipt("b")

	s.svc.BulkAnchor(s.ctx, []string{"a", "b"})

	limiter := s.svc.limiter.(*countingLimiter)
	s.Equal(2, limiter.takes, "every item must pass through the limiter")
}

// countingLimiter records Take calls without actually sleeping.
type countingLimiter struct {
	takes int
}

func newCountingLimiter() *countingLimiter { return &countingLimiter{} }

func (l *countingLimiter) Take() time.Time {
	l.takes++
	return time.Now()
}
