// Package canonical derives deterministic content fingerprints from receipt
// records. Serialization order is fixed by schema, never by map iteration,
// so two semantically identical receipts always hash identically.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"receiptanchor/internal/anchoring/models"
	domainerrors "receiptanchor/pkg/domain-errors"
)

// layoutVersion is baked into the serialized form; bump it whenever the
// field layout changes so old and new fingerprints can never collide
// silently.
const layoutVersion = "v1"

// Fingerprint computes the canonical SHA-256 content hash of a receipt as a
// 64-character lowercase hex digest. Pure; the only failure mode is a
// malformed receipt.
func Fingerprint(rec models.Receipt) (string, error) {
	if err := validate(rec); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(layoutVersion)
	writeField(&b, rec.ID)
	writeField(&b, rec.OwnerRef)
	writeField(&b, rec.MerchantRef)
	writeField(&b, strconv.FormatInt(rec.TotalMinor, 10))
	writeField(&b, rec.Currency)
	writeField(&b, rec.IssuedAt.UTC().Format(time.RFC3339))
	writeField(&b, strconv.Itoa(len(rec.Items)))
	for _, item := range rec.Items {
		writeField(&b, item.Name)
		writeField(&b, strconv.FormatInt(item.Quantity, 10))
		writeField(&b, strconv.FormatInt(item.UnitPriceMinor, 10))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// writeField length-prefixes each value so field boundaries stay unambiguous
// even when values contain the separator.
func writeField(b *strings.Builder, v string) {
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(len(v)))
	b.WriteByte(':')
	b.WriteString(v)
}

func validate(rec models.Receipt) error {
	switch {
	case rec.ID == "":
		return domainerrors.New(domainerrors.CodeInvalidRecord, "receipt id is required")
	case rec.OwnerRef == "":
		return domainerrors.New(domainerrors.CodeInvalidRecord, "receipt owner reference is required")
	case rec.Currency == "":
		return domainerrors.New(domainerrors.CodeInvalidRecord, "receipt currency is required")
	case rec.TotalMinor < 0:
		return domainerrors.New(domainerrors.CodeInvalidRecord, "receipt total must not be negative")
	case rec.IssuedAt.IsZero():
		return domainerrors.New(domainerrors.CodeInvalidRecord, "receipt issue date is required")
	}
	for i, item := range rec.Items {
		if item.Name == "" {
			return domainerrors.New(domainerrors.CodeInvalidRecord,
				fmt.Sprintf("item %d: name is required", i))
		}
		if item.Quantity <= 0 {
			return domainerrors.New(domainerrors.CodeInvalidRecord,
				fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if item.UnitPriceMinor < 0 {
			return domainerrors.New(domainerrors.CodeInvalidRecord,
				fmt.Sprintf("item %d: unit price must not be negative", i))
		}
	}
	return nil
}

// HashPartyRef one-way hashes an owner/merchant reference with a salt before
// it is published, so identities never appear in the clear on the public log.
func HashPartyRef(salt, ref string) string {
	sum := sha3.Sum256([]byte(salt + "|" + ref))
	return hex.EncodeToString(sum[:])
}
