package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainEntry = "haggle/entry/v1"
	DomainView  = "haggle/view/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as hex.
// The null separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntryID computes the content-addressed id of an encoded entry envelope.
// The envelope includes the submitter's nonce, so two otherwise identical
// submissions get distinct ids while a retried submission keeps its id.
func EntryID(envelope Object) (string, error) {
	canonical, err := MarshalCanonical(envelope)
	if err != nil {
		return "", fmt.Errorf("entry id: %w", err)
	}
	return HashWithDomain(DomainEntry, canonical), nil
}
