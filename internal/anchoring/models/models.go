package models

import "time"

// Receipt is the transaction record owned by the external receipt store.
// This core only reads it; monetary values are fixed-point minor units so
// fingerprints never depend on float formatting.
type Receipt struct {
	ID          string     `json:"id"`
	OwnerRef    string     `json:"ownerRef"`
	MerchantRef string     `json:"merchantRef"`
	TotalMinor  int64      `json:"totalMinor"`
	Currency    string     `json:"currency"`
	IssuedAt    time.Time  `json:"issuedAt"`
	Items       []LineItem `json:"items"`
}

// LineItem is a single purchased item on a receipt.
type LineItem struct {
	Name           string `json:"name"`
	Quantity       int64  `json:"quantity"`
	UnitPriceMinor int64  `json:"unitPriceMinor"`
}

// AnchorRecord ties a receipt to the ledger entry its fingerprint was
// committed to. At most one exists per receipt and it is immutable once
// persisted.
type AnchorRecord struct {
	RecordID           string    `json:"recordId"`
	TopicID            string    `json:"topicId"`
	SequenceNumber     int64     `json:"sequenceNumber"`
	ConsensusTimestamp time.Time `json:"consensusTimestamp"`
	ContentHash        string    `json:"contentHash"`
	TransactionRef     string    `json:"transactionRef"`
	AnchoredAt         time.Time `json:"anchoredAt"`
}

// LedgerEntry is one message on the external append-only log, as returned by
// its read replica. Never written directly; only read back after publish.
type LedgerEntry struct {
	TopicID            string    `json:"topicId"`
	SequenceNumber     int64     `json:"sequenceNumber"`
	ConsensusTimestamp time.Time `json:"consensusTimestamp"`
	Payload            []byte    `json:"payload"`
	RunningHash        string    `json:"runningHash"`
}

// MismatchReason explains why a verification did not come back valid.
type MismatchReason string

const (
	MismatchNotAnchored   MismatchReason = "NotAnchored"
	MismatchEntryNotFound MismatchReason = "EntryNotFound"
	MismatchTampered      MismatchReason = "Tampered"
)

// VerificationResult is the outcome of comparing local state against the
// ledger. It is computed on demand and never persisted.
type VerificationResult struct {
	RecordID       string         `json:"recordId"`
	IsValid        bool           `json:"isValid"`
	LocalHash      string         `json:"localHash,omitempty"`
	StoredHash     string         `json:"storedHash,omitempty"`
	RemoteHash     string         `json:"remoteHash,omitempty"`
	MismatchReason MismatchReason `json:"mismatchReason,omitempty"`
	LedgerSnapshot *LedgerEntry   `json:"ledgerSnapshot,omitempty"`
}

// ProofBundle is a self-contained set of coordinates a third party can use
// to re-fetch the ledger entry and re-verify without trusting this service.
type ProofBundle struct {
	RecordID           string    `json:"recordId"`
	ContentHash        string    `json:"contentHash"`
	TopicID            string    `json:"topicId"`
	SequenceNumber     int64     `json:"sequenceNumber"`
	ConsensusTimestamp time.Time `json:"consensusTimestamp"`
	TransactionRef     string    `json:"transactionRef"`
	VerifyURL          string    `json:"verifyUrl"`
	LookupURL          string    `json:"lookupUrl"`
	Attestation        string    `json:"attestation,omitempty"`
}

// AnchorPayload is the privacy-preserving message published to the log. It
// carries only the content hash, a salted one-way hash of the owner
// reference, the numeric total, and an item count. No cleartext identities,
// names, or line items ever reach the public log.
type AnchorPayload struct {
	Version   int    `json:"v"`
	Hash      string `json:"hash"`
	OwnerRef  string `json:"owner"`
	Total     int64  `json:"total"`
	Currency  string `json:"currency"`
	ItemCount int    `json:"items"`
}

// BulkAnchorFailure records one failed item of a bulk anchoring run.
type BulkAnchorFailure struct {
	RecordID string `json:"recordId"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// BulkAnchorResult is the tagged per-item outcome of a bulk anchoring run.
// Partial failure is expected; the failed subset can be resubmitted as-is.
type BulkAnchorResult struct {
	Succeeded []*AnchorRecord     `json:"succeeded"`
	Failed    []BulkAnchorFailure `json:"failed"`
}

// GatewayStatus reports the gateway's view of its connection to the log.
type GatewayStatus struct {
	Network   string `json:"network"`
	TopicID   string `json:"topicId"`
	Connected bool   `json:"connected"`
}
