// Package service orchestrates anchoring, verification, and proof export.
// It owns no transport or storage details: stores, the ledger gateway, the
// cache, and the audit sink are all injected.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/singleflight"

	"receiptanchor/internal/anchoring/cache"
	"receiptanchor/internal/anchoring/canonical"
	"receiptanchor/internal/anchoring/ledger"
	"receiptanchor/internal/anchoring/models"
	"receiptanchor/internal/anchoring/store"
	"receiptanchor/internal/audit"
	"receiptanchor/internal/platform/metrics"
	domainerrors "receiptanchor/pkg/domain-errors"
)

// payloadVersion tags the published payload format.
const payloadVersion = 1

// Config carries the service-level knobs.
type Config struct {
	// PartySalt keys the one-way hashing of party references in payloads.
	PartySalt string
	// ProofSigningKey signs proof attestations; empty disables them.
	ProofSigningKey string
	// VerifyBaseURL is the public base for verification links in proofs.
	VerifyBaseURL string
	// MirrorBaseURL is the public read-replica base for proof lookup URLs.
	MirrorBaseURL string
	// QueryLimit caps how many recent entries one verify call fetches.
	QueryLimit int
	// BulkRatePerSecond paces bulk anchoring submissions.
	BulkRatePerSecond int
}

// Service implements the anchoring core: one-shot anchoring, pure
// verification, proof export, and paced bulk anchoring.
type Service struct {
	receipts    store.ReceiptStore
	anchors     store.AnchorStore
	gateway     ledger.Gateway
	verifyCache *cache.VerificationCache
	auditor     audit.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	cfg         Config

	limiter     ratelimit.Limiter
	verifyGroup singleflight.Group
}

// New wires the anchoring service. All collaborators are required except the
// cache (nil disables caching) and the auditor (nil disables audit events).
func New(
	receipts store.ReceiptStore,
	anchors store.AnchorStore,
	gateway ledger.Gateway,
	verifyCache *cache.VerificationCache,
	auditor audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = 100
	}
	if cfg.BulkRatePerSecond <= 0 {
		cfg.BulkRatePerSecond = 5
	}
	return &Service{
		receipts:    receipts,
		anchors:     anchors,
		gateway:     gateway,
		verifyCache: verifyCache,
		auditor:     auditor,
		metrics:     m,
		logger:      logger,
		cfg:         cfg,
		limiter:     ratelimit.New(cfg.BulkRatePerSecond),
	}
}

// Anchor commits the receipt's fingerprint to the ledger exactly once and
// persists the resulting coordinates. A second call for the same receipt
// fails with already_anchored; the storage uniqueness constraint is the
// authoritative guard against a race between concurrent callers.
func (s *Service) Anchor(ctx context.Context, recordID string) (*models.AnchorRecord, error) {
	receipt, err := s.receipts.FindByID(ctx, recordID)
	if err != nil {
		if domainerrors.Is(err, domainerrors.CodeNotFound) {
			return nil, s.anchorFailed(ctx, recordID,
				domainerrors.New(domainerrors.CodeNotFound, "receipt "+recordID+" not found"))
		}
		return nil, s.anchorFailed(ctx, recordID, fmt.Errorf("load receipt: %w", err))
	}

	// Fast pre-check. The insert below still decides the race.
	if _, err := s.anchors.FindByRecordID(ctx, recordID); err == nil {
		return nil, s.anchorFailed(ctx, recordID,
			domainerrors.New(domainerrors.CodeAlreadyAnchored, "receipt "+recordID+" is already anchored"))
	} else if !domainerrors.Is(err, domainerrors.CodeNotFound) {
		return nil, s.anchorFailed(ctx, recordID, fmt.Errorf("check existing anchor: %w", err))
	}

	contentHash, err := canonical.Fingerprint(*receipt)
	if err != nil {
		return nil, s.anchorFailed(ctx, recordID, err)
	}

	payload, err := json.Marshal(models.AnchorPayload{
		Version:   payloadVersion,
		Hash:      contentHash,
		OwnerRef:  canonical.HashPartyRef(s.cfg.PartySalt, receipt.OwnerRef),
		Total:     receipt.TotalMinor,
		Currency:  receipt.Currency,
		ItemCount: len(receipt.Items),
	})
	if err != nil {
		return nil, s.anchorFailed(ctx, recordID, fmt.Errorf("marshal anchor payload: %w", err))
	}

	topicID, err := s.gateway.EnsureTopic(ctx)
	if err != nil {
		return nil, s.anchorFailed(ctx, recordID, err)
	}

	started := time.Now()
	ack, err := s.gateway.Publish(ctx, topicID, payload)
	if err != nil {
		// No partial state: nothing was persisted, the caller decides
		// whether to retry.
		return nil, s.anchorFailed(ctx, recordID, err)
	}
	s.metrics.LedgerPublishSeconds.Observe(time.Since(started).Seconds())

	record := &models.AnchorRecord{
		RecordID:           recordID,
		TopicID:            topicID,
		SequenceNumber:     ack.SequenceNumber,
		ConsensusTimestamp: ack.ConsensusTimestamp,
		ContentHash:        contentHash,
		TransactionRef:     ack.TransactionRef,
		AnchoredAt:         time.Now().UTC(),
	}
	if err := s.anchors.InsertIfAbsent(ctx, record); err != nil {
		if domainerrors.Is(err, domainerrors.CodeAlreadyAnchored) {
			// A concurrent caller won after our pre-check. Our ledger entry
			// exists but is orphaned; the winner's record is authoritative.
			s.logger.WarnContext(ctx, "lost anchor race after publish",
				"record_id", recordID,
				"orphaned_sequence_number", ack.SequenceNumber,
			)
			return nil, s.anchorFailed(ctx, recordID,
				domainerrors.New(domainerrors.CodeAlreadyAnchored, "receipt "+recordID+" is already anchored"))
		}
		return nil, s.anchorFailed(ctx, recordID, fmt.Errorf("persist anchor record: %w", err))
	}

	s.metrics.AnchorsCreated.Inc()
	s.verifyCache.Invalidate(ctx, recordID)
	s.emit(ctx, audit.Event{
		Action:      audit.ActionAnchored,
		RecordID:    recordID,
		ContentHash: contentHash,
		Outcome:     "success",
	})
	s.logger.InfoContext(ctx, "receipt anchored",
		"record_id", recordID,
		"topic_id", topicID,
		"sequence_number", record.SequenceNumber,
	)
	return record, nil
}

// Verify is a pure read: it never mutates state. Absence of an anchor and a
// not-yet-propagated ledger entry are reported outcomes, not errors; only a
// failing collaborator (store, gateway) is an error.
func (s *Service) Verify(ctx context.Context, recordID string) (*models.VerificationResult, error) {
	if cached := s.verifyCache.Get(ctx, recordID); cached != nil {
		s.metrics.Verifications.WithLabelValues("cached").Inc()
		return cached, nil
	}

	// Concurrent verifies of the same record share one ledger query.
	v, err, _ := s.verifyGroup.Do(recordID, func() (any, error) {
		return s.verify(ctx, recordID)
	})
	if err != nil {
		return nil, err
	}
	result := v.(*models.VerificationResult)

	s.metrics.Verifications.WithLabelValues(verificationOutcome(result)).Inc()
	s.verifyCache.Set(ctx, result)
	s.emit(ctx, audit.Event{
		Action:      audit.ActionVerified,
		RecordID:    recordID,
		ContentHash: result.LocalHash,
		Outcome:     verificationOutcome(result),
	})
	return result, nil
}

func (s *Service) verify(ctx context.Context, recordID string) (*models.VerificationResult, error) {
	result := &models.VerificationResult{RecordID: recordID}

	anchor, err := s.anchors.FindByRecordID(ctx, recordID)
	if err != nil {
		if domainerrors.Is(err, domainerrors.CodeNotFound) {
			result.MismatchReason = models.MismatchNotAnchored
			return result, nil
		}
		return nil, fmt.Errorf("load anchor record: %w", err)
	}
	result.StoredHash = anchor.ContentHash

	entries, err := s.gateway.QueryEntries(ctx, anchor.TopicID, s.cfg.QueryLimit)
	if err != nil {
		return nil, err
	}
	entry := findEntry(entries, anchor.SequenceNumber)
	if entry == nil {
		// Propagation lag or pruning; reported, not raised.
		result.MismatchReason = models.MismatchEntryNotFound
		return result, nil
	}
	result.LedgerSnapshot = entry

	var payload models.AnchorPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		result.MismatchReason = models.MismatchTampered
		return result, nil
	}
	result.RemoteHash = payload.Hash

	// Recompute from the live receipt so local edits after anchoring are
	// caught too, not just ledger divergence.
	receipt, err := s.receipts.FindByID(ctx, recordID)
	if err != nil {
		if domainerrors.Is(err, domainerrors.CodeNotFound) {
			result.MismatchReason = models.MismatchTampered
			return result, nil
		}
		return nil, fmt.Errorf("load receipt: %w", err)
	}
	localHash, err := canonical.Fingerprint(*receipt)
	if err != nil {
		result.MismatchReason = models.MismatchTampered
		return result, nil
	}
	result.LocalHash = localHash

	if localHash == anchor.ContentHash && anchor.ContentHash == payload.Hash {
		result.IsValid = true
	} else {
		result.MismatchReason = models.MismatchTampered
	}
	return result, nil
}

// ExportProof assembles a self-contained bundle a third party can use to
// re-fetch the ledger entry and re-verify without trusting this service.
func (s *Service) ExportProof(ctx context.Context, recordID string) (*models.ProofBundle, error) {
	anchor, err := s.anchors.FindByRecordID(ctx, recordID)
	if err != nil {
		if domainerrors.Is(err, domainerrors.CodeNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotAnchored, "receipt "+recordID+" is not anchored")
		}
		return nil, fmt.Errorf("load anchor record: %w", err)
	}

	bundle := &models.ProofBundle{
		RecordID:           anchor.RecordID,
		ContentHash:        anchor.ContentHash,
		TopicID:            anchor.TopicID,
		SequenceNumber:     anchor.SequenceNumber,
		ConsensusTimestamp: anchor.ConsensusTimestamp,
		TransactionRef:     anchor.TransactionRef,
		VerifyURL:          fmt.Sprintf("%s/anchors/%s/verify", s.cfg.VerifyBaseURL, recordID),
		LookupURL:          ledger.LookupURL(s.cfg.MirrorBaseURL, anchor.TopicID, anchor.SequenceNumber),
	}

	if s.cfg.ProofSigningKey != "" {
		attestation, err := s.signAttestation(anchor)
		if err != nil {
			return nil, fmt.Errorf("sign proof attestation: %w", err)
		}
		bundle.Attestation = attestation
	}
	return bundle, nil
}

// signAttestation issues a compact JWT over the anchor coordinates so a
// relying party can check the bundle was produced by this service.
func (s *Service) signAttestation(anchor *models.AnchorRecord) (string, error) {
	claims := jwt.MapClaims{
		"sub":   anchor.RecordID,
		"hash":  anchor.ContentHash,
		"topic": anchor.TopicID,
		"seq":   anchor.SequenceNumber,
		"ref":   anchor.TransactionRef,
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.ProofSigningKey))
}

// GatewayStatus reports the gateway's connectivity and resolved topic.
func (s *Service) GatewayStatus(ctx context.Context) (models.GatewayStatus, error) {
	return s.gateway.Status(ctx)
}

func (s *Service) anchorFailed(ctx context.Context, recordID string, err error) error {
	s.metrics.AnchorFailures.WithLabelValues(string(domainerrors.CodeOf(err))).Inc()
	s.emit(ctx, audit.Event{
		Action:   audit.ActionAnchorFailed,
		RecordID: recordID,
		Outcome:  string(domainerrors.CodeOf(err)),
	})
	return err
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"record_id", event.RecordID,
			"error", err.Error(),
		)
	}
}

func findEntry(entries []models.LedgerEntry, sequenceNumber int64) *models.LedgerEntry {
	for i := range entries {
		if entries[i].SequenceNumber == sequenceNumber {
			return &entries[i]
		}
	}
	return nil
}

func verificationOutcome(result *models.VerificationResult) string {
	if result.IsValid {
		return "valid"
	}
	switch result.MismatchReason {
	case models.MismatchNotAnchored:
		return "not_anchored"
	case models.MismatchEntryNotFound:
		return "entry_not_found"
	default:
		return "tampered"
	}
}
