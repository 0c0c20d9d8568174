package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// signatureAlgorithm is the only algorithm accepted in X-Hub-Signature-256.
const signatureAlgorithm = "sha256"

var (
	ErrSignatureMissing   = errors.New("signature header missing")
	ErrSignatureFormat    = errors.New("invalid signature format")
	ErrSignatureAlgorithm = errors.New("unsupported signature algorithm")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

// VerifySignature checks header, a value of the form "sha256=<hex>", against
// the HMAC-SHA256 of body keyed with secret.
//
// body must be the exact bytes received. The digests are compared with
// hmac.Equal, which runs in constant time. A nil error means the payload is
// authentic; any other result is a rejection and never a panic.
func VerifySignature(body []byte, header, secret string) error {
	if header == "" {
		return ErrSignatureMissing
	}

	// Exactly one separator: "sha256=abc=def" is as malformed as "abc".
	parts := strings.Split(header, "=")
	if len(parts) != 2 {
		return ErrSignatureFormat
	}
	algorithm, digest := parts[0], parts[1]
	if algorithm != signatureAlgorithm {
		return ErrSignatureAlgorithm
	}

	expected := computeDigest(body, secret)
	if !hmac.Equal([]byte(expected), []byte(digest)) {
		return ErrSignatureMismatch
	}
	return nil
}

// SignPayload returns the X-Hub-Signature-256 value GitHub would send for body.
func SignPayload(body []byte, secret string) string {
	return signatureAlgorithm + "=" + computeDigest(body, secret)
}

// computeDigest returns the lowercase hex HMAC-SHA256 of body.
func computeDigest(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
