package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"receiptanchor/internal/anchoring/canonical"
	"receiptanchor/internal/anchoring/ledger"
	"receiptanchor/internal/anchoring/models"
	"receiptanchor/internal/anchoring/store"
	"receiptanchor/internal/audit"
	"receiptanchor/internal/platform/metrics"
	domainerrors "receiptanchor/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	receipts *store.InMemoryReceiptStore
	anchors  *store.InMemoryAnchorStore
	gateway  *ledger.Fake
	auditor  *audit.MemoryPublisher
	svc      *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.receipts = store.NewInMemoryReceiptStore()
	s.anchors = store.NewInMemoryAnchorStore()
	s.gateway = ledger.NewFake()
	s.auditor = audit.NewMemoryPublisher()
	s.svc = New(
		s.receipts,
		s.anchors,
		s.gateway,
		nil, // cache disabled in unit tests
		s.auditor,
		metrics.NewWith(prometheus.NewRegistry()),
		slog.New(slog.DiscardHandler),
		Config{
			PartySalt:         "test-salt",
			ProofSigningKey:   "test-signing-key",
			VerifyBaseURL:     "https://receipts.example",
			MirrorBaseURL:     "https://mirror.example",
			QueryLimit:        50,
			BulkRatePerSecond: 1000,
		},
	)
}

func (s *ServiceSuite) seedCafeReceipt(id string) models.Receipt {
	receipt := models.Receipt{
		ID:          id,
		OwnerRef:    "owner-42",
		MerchantRef: "merchant-7",
		TotalMinor:  1500,
		Currency:    "USD",
		IssuedAt:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Items: []models.LineItem{
			{Name: "Latte", Quantity: 2, UnitPriceMinor: 450},
			{Name: "Muffin", Quantity: 1, UnitPriceMinor: 275},
		},
	}
	s.Require().NoError(s.receipts.Save(s.ctx, receipt))
	return receipt
}

func (s *ServiceSuite) mustFingerprintOf(receipt models.Receipt) string {
	hash, err := canonical.Fingerprint(receipt)
	s.Require().NoError(err)
	return hash
}

func (s *ServiceSuite) TestAnchorPersistsLedgerCoordinates() {
	s.seedCafeReceipt("r1")

	record, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)

	s.Equal("r1", record.RecordID)
	s.Len(record.ContentHash, 64)
	s.Equal(int64(1), record.SequenceNumber)
	s.NotEmpty(record.TopicID)
	s.NotEmpty(record.TransactionRef)
	s.False(record.ConsensusTimestamp.IsZero())
	s.False(record.AnchoredAt.IsZero())

	persisted, err := s.anchors.FindByRecordID(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal(record, persisted)
}

func (s *ServiceSuite) TestAnchorPayloadExposesNoPrivateData() {
	s.seedCafeReceipt("r1")
	record, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)

	entries, err := s.gateway.QueryEntries(s.ctx, record.TopicID, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)

	raw := string(entries[0].Payload)
	s.NotContains(raw, "owner-42", "cleartext owner reference must never be published")
	s.NotContains(raw, "Latte", "item names must never be published")

	var payload models.AnchorPayload
	s.Require().NoError(json.Unmarshal(entries[0].Payload, &payload))
	s.Equal(1, payload.Version)
	s.Equal(record.ContentHash, payload.Hash)
	s.Equal(int64(1500), payload.Total)
	s.Equal("USD", payload.Currency)
	s.Equal(2, payload.ItemCount)
	s.Len(payload.OwnerRef, 64)
}

func (s *ServiceSuite) TestAnchorTwiceFailsAndFirstRecordIsUnchanged() {
	s.seedCafeReceipt("r1")

	first, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)

	_, err = s.svc.Anchor(s.ctx, "r1")
	s.Require().Error(err)
	s.True(domainerrors.Is(err, domainerrors.CodeAlreadyAnchored))

	persisted, err := s.anchors.FindByRecordID(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal(first, persisted)
}

func (s *ServiceSuite) TestAnchorUnknownReceipt() {
	_, err := s.svc.Anchor(s.ctx, "ghost")
	s.Require().Error(err)
	s.True(domainerrors.Is(err, domainerrors.CodeNotFound))
}

func (s *ServiceSuite) TestAnchorMalformedReceipt() {
	bad := s.seedCafeReceipt("r1")
	bad.Currency = ""
	s.Require().NoError(s.receipts.Save(s.ctx, bad))

	_, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().Error(err)
	s.True(domainerrors.Is(err, domainerrors.CodeInvalidRecord))
}

func (s *ServiceSuite) TestAnchorLeavesNoPartialStateOnPublishFailure() {
	s.seedCafeReceipt("r1")
	s.gateway.PublishErr = domainerrors.New(domainerrors.CodeLedgerUnavailable, "node down")

	_, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().Error(err)
	s.True(domainerrors.Is(err, domainerrors.CodeLedgerUnavailable))

	_, err = s.anchors.FindByRecordID(s.ctx, "r1")
	s.True(domainerrors.Is(err, domainerrors.CodeNotFound), "no anchor record may be persisted on publish failure")

	// Caller-controlled retry succeeds once the log recovers.
	s.gateway.PublishErr = nil
	_, err = s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestVerifyAfterAnchorIsValid() {
	s.seedCafeReceipt("r1")
	record, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)

	result, err := s.svc.Verify(s.ctx, "r1")
	s.Require().NoError(err)

	s.True(result.IsValid)
	s.Empty(result.MismatchReason)
	s.Equal(record.ContentHash, result.LocalHash)
	s.Equal(record.ContentHash, result.RemoteHash)
	s.Equal(record.ContentHash, result.StoredHash)
	s.Require().NotNil(result.LedgerSnapshot)
	s.Equal(record.SequenceNumber, result.LedgerSnapshot.SequenceNumber)
}

func (s *ServiceSuite) TestVerifyUnanchoredIsReportedNotRaised() {
	s.seedCafeReceipt("r1")

	result, err := s.svc.Verify(s.ctx, "r1")
	s.Require().NoError(err)
	s.False(result.IsValid)
	s.Equal(models.MismatchNotAnchored, result.MismatchReason)
}

func (s *ServiceSuite) TestVerifyDuringPropagationLag() {
	s.seedCafeReceipt("r1")
	_, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)

	s.gateway.Lag = 1 // replica has not seen the entry yet

	result, err := s.svc.Verify(s.ctx, "r1")
	s.Require().NoError(err)
	s.False(result.IsValid)
	s.Equal(models.MismatchEntryNotFound, result.MismatchReason)

	// Once the replica catches up the same verify turns valid.
	s.gateway.Lag = 0
	result, err = s.svc.Verify(s.ctx, "r1")
	s.Require().NoError(err)
	s.True(result.IsValid)
}

func (s *ServiceSuite) TestVerifyDetectsLocalTampering() {
	receipt := s.seedCafeReceipt("r1")
	_, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)

	// An unauthorized local edit after anchoring.
	receipt.Items[0].Quantity = 3
	s.Require().NoError(s.receipts.Save(s.ctx, receipt))

	result, err := s.svc.Verify(s.ctx, "r1")
	s.Require().NoError(err)
	s.False(result.IsValid)
	s.Equal(models.MismatchTampered, result.MismatchReason)
	s.NotEqual(result.StoredHash, result.LocalHash)
	s.Equal(result.StoredHash, result.RemoteHash, "the ledger still holds the original fingerprint")
}

func (s *ServiceSuite) TestVerifyDetectsLedgerDivergence() {
	s.seedCafeReceipt("r1")
	record, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)

	s.gateway.TamperEntry(record.SequenceNumber, []byte(`{"v":1,"hash":"0000"}`))

	result, err := s.svc.Verify(s.ctx, "r1")
	s.Require().NoError(err)
	s.False(result.IsValid)
	s.Equal(models.MismatchTampered, result.MismatchReason)
}

func (s *ServiceSuite) TestVerifySurfacesGatewayFailure() {
	s.seedCafeReceipt("r1")
	_, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)

	s.gateway.QueryErr = domainerrors.New(domainerrors.CodeLedgerUnavailable, "mirror down")

	_, err = s.svc.Verify(s.ctx, "r1")
	s.Require().Error(err)
	s.True(domainerrors.Is(err, domainerrors.CodeLedgerUnavailable))
}

func (s *ServiceSuite) TestVerifyNeverMutatesState() {
	s.seedCafeReceipt("r1")
	record, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)

	for i := 0; i < 3; i++ {
		_, err = s.svc.Verify(s.ctx, "r1")
		s.Require().NoError(err)
	}

	persisted, err := s.anchors.FindByRecordID(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal(record, persisted)

	entries, err := s.gateway.QueryEntries(s.ctx, record.TopicID, 10)
	s.Require().NoError(err)
	s.Len(entries, 1, "verification must not append entries")
}

func (s *ServiceSuite) TestExportProofRequiresAnchor() {
	s.seedCafeReceipt("r1")
	_, err := s.svc.ExportProof(s.ctx, "r1")
	s.Require().Error(err)
	s.True(domainerrors.Is(err, domainerrors.CodeNotAnchored))
}

func (s *ServiceSuite) TestExportProofBundle() {
	s.seedCafeReceipt("r1")
	record, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)

	bundle, err := s.svc.ExportProof(s.ctx, "r1")
	s.Require().NoError(err)

	s.Equal(record.ContentHash, bundle.ContentHash)
	s.Equal(record.TopicID, bundle.TopicID)
	s.Equal(record.SequenceNumber, bundle.SequenceNumber)
	s.Equal(record.TransactionRef, bundle.TransactionRef)
	s.Equal("https://receipts.example/anchors/r1/verify", bundle.VerifyURL)
	s.Equal(ledger.LookupURL("https://mirror.example", record.TopicID, record.SequenceNumber), bundle.LookupURL)

	// The lookup URL is a pure function of topic and sequence number.
	again, err := s.svc.ExportProof(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal(bundle.LookupURL, again.LookupURL)
}

func (s *ServiceSuite) TestExportProofAttestationVerifies() {
	s.seedCafeReceipt("r1")
	record, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)

	bundle, err := s.svc.ExportProof(s.ctx, "r1")
	s.Require().NoError(err)
	s.Require().NotEmpty(bundle.Attestation)

	token, err := jwt.Parse(bundle.Attestation, func(t *jwt.Token) (any, error) {
		return []byte("test-signing-key"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	s.Require().NoError(err)

	claims := token.Claims.(jwt.MapClaims)
	s.Equal("r1", claims["sub"])
	s.Equal(record.ContentHash, claims["hash"])
	s.Equal(record.TopicID, claims["topic"])
	s.EqualValues(record.SequenceNumber, claims["seq"])
}

func (s *ServiceSuite) TestAuditTrail() {
	s.seedCafeReceipt("r1")
	_, err := s.svc.Anchor(s.ctx, "r1")
	s.Require().NoError(err)
	_, err = s.svc.Verify(s.ctx, "r1")
	s.Require().NoError(err)
	_, err = s.svc.Anchor(s.ctx, "r1")
	s.Require().Error(err)

	events := s.auditor.Events()
	s.Require().Len(events, 3)
	s.Equal(audit.ActionAnchored, events[0].Action)
	s.Equal(audit.ActionVerified, events[1].Action)
	s.Equal("valid", events[1].Outcome)
	s.Equal(audit.ActionAnchorFailed, events[2].Action)
	s.Equal("already_anchored", events[2].Outcome)
}

func (s *ServiceSuite) TestGatewayStatus() {
	status, err := s.svc.GatewayStatus(s.ctx)
	s.Require().NoError(err)
	s.True(status.Connected)
	s.NotEmpty(status.TopicID)
}
