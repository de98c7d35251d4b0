/**
 * @description
 * This package implements the authenticated envelope used on every interbank
 * call: a freshness timestamp, an HMAC-SHA256 over a canonical payload string
 * keyed by the per-bank shared secret, and an RSA-SHA256 signature over the
 * same payload. Both checks must pass before any inbound request mutates state.
 *
 * Canonical payload strings are built by deterministic concatenation of the
 * business fields in a fixed order. The amount field appears exactly as it was
 * transmitted on the wire; it is never reformatted, so signer and verifier
 * always hash identical bytes.
 *
 * @dependencies
 * - crypto/hmac, crypto/rsa, crypto/sha256, crypto/x509, encoding/pem: Standard Go crypto.
 */
package banksign

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// FreshnessWindow bounds the accepted clock skew between a message timestamp
// and its receipt. It limits the replay window; replay inside the window is
// suppressed at the business layer (deposit request de-duplication).
const FreshnessWindow = 5 * time.Minute

var (
	ErrRequestExpired   = errors.New("request timestamp outside freshness window")
	ErrInvalidHash      = errors.New("invalid request hash")
	ErrInvalidSignature = errors.New("invalid signature")
)

// TimestampNow returns the current wall clock in milliseconds since epoch,
// the unit used by every interbank message.
func TimestampNow() int64 {
	return time.Now().UnixMilli()
}

// AccountInfoPayload builds the canonical payload for an account query:
// "{account_number}.{timestamp}".
func AccountInfoPayload(accountNumber string, timestamp int64) string {
	return accountNumber + "." + strconv.FormatInt(timestamp, 10)
}

// DepositPayload builds the canonical payload for a deposit:
// "{account_number}.{from_account_number}.{amount}.{timestamp}".
func DepositPayload(accountNumber, fromAccountNumber, amount string, timestamp int64) string {
	return accountNumber + "." + fromAccountNumber + "." + amount + "." + strconv.FormatInt(timestamp, 10)
}

// Fresh reports whether a millisecond timestamp is within the freshness window
// of now.
func Fresh(timestamp int64, now time.Time) bool {
	diff := now.UnixMilli() - timestamp
	if diff < 0 {
		diff = -diff
	}
	return diff < FreshnessWindow.Milliseconds()
}

// ComputeHMAC returns the hex HMAC-SHA256 of the payload under the shared secret.
func ComputeHMAC(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a hex HMAC in constant time.
func VerifyHMAC(payload, secret, givenHex string) bool {
	expected := ComputeHMAC(payload, secret)
	return hmac.Equal([]byte(expected), []byte(givenHex))
}

// Sign produces a base64 RSA-SHA256 (PKCS#1 v1.5) signature over the payload.
func Sign(privateKey *rsa.PrivateKey, payload []byte) (string, error) {
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifySignature checks a base64 RSA-SHA256 signature over the payload.
func VerifySignature(publicKey *rsa.PublicKey, payload []byte, signatureB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return ErrInvalidSignature
	}
	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest[:], sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyEnvelope runs the full inbound check sequence on a canonical payload:
// freshness, HMAC under the shared secret, then the counterparty's RSA
// signature. The first failing check is returned; all are terminal.
func VerifyEnvelope(payload string, timestamp int64, secret string, publicKey *rsa.PublicKey, hash, signature string, now time.Time) error {
	if !Fresh(timestamp, now) {
		return ErrRequestExpired
	}
	if !VerifyHMAC(payload, secret, hash) {
		return ErrInvalidHash
	}
	return VerifySignature(publicKey, []byte(payload), signature)
}

// SignResponseData signs the canonical JSON encoding of a response data object.
// Signer and verifier must use the same struct type so that re-serialization is
// byte-stable (struct fields marshal in declaration order; decimals marshal as
// quoted strings).
func SignResponseData(privateKey *rsa.PrivateKey, data interface{}) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal response data: %w", err)
	}
	return Sign(privateKey, raw)
}

// VerifyResponseData verifies a signature over the canonical JSON encoding of
// a decoded response data object.
func VerifyResponseData(publicKey *rsa.PublicKey, data interface{}, signatureB64 string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal response data: %w", err)
	}
	return VerifySignature(publicKey, raw, signatureB64)
}

// ParsePrivateKey reads a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found in private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

// ParsePublicKey reads a PEM-encoded RSA public key (PKIX or PKCS#1).
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found in public key")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}
