/**
 * @description
 * This package provides the outbound client for calling linked banks. It
 * encapsulates envelope construction (timestamp, HMAC, RSA signature), HTTP
 * transport and response signature verification, and maps outcomes onto three
 * distinct error classes the settlement engine branches on.
 *
 * @notes
 * - ErrRemoteDeclined means the remote bank refused the operation. For a
 *   deposit the refusal must carry a valid signature before it is classified
 *   this way, because the caller compensates on it; for the read-only account
 *   query any HTTP refusal qualifies.
 * - ErrUnverifiedResponse means a response arrived but its signature did not
 *   check out; nothing it claims can be trusted.
 * - Plain transport errors (dial failure, timeout) are returned as-is; the
 *   remote leg's outcome is unknown and the caller must not assume either way.
 *
 * @dependencies
 * - crypto/rsa, net/http, encoding/json: Standard Go libraries.
 * - pkg/banksign: Canonical payloads, envelope primitives, wire DTOs.
 */
package bankclient

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/meridianbank/funds-service/pkg/banksign"
)

var (
	// ErrRemoteDeclined indicates a signed, verified refusal from the remote bank.
	ErrRemoteDeclined = errors.New("remote bank declined the request")
	// ErrUnverifiedResponse indicates a response whose signature failed verification.
	ErrUnverifiedResponse = errors.New("remote bank response could not be verified")
)

// Endpoint describes one linked bank as a call target.
type Endpoint struct {
	BankCode        string
	BaseURL         string
	AccountInfoPath string
	DepositPath     string
	SharedSecret    string
	PublicKey       *rsa.PublicKey
}

// Client calls linked banks on behalf of this institution.
type Client struct {
	BankCode   string
	PrivateKey *rsa.PrivateKey
	HTTPClient *http.Client
}

// NewClient creates a bank client identified by our own bank code and signing key.
func NewClient(bankCode string, privateKey *rsa.PrivateKey, timeout time.Duration) *Client {
	return &Client{
		BankCode:   bankCode,
		PrivateKey: privateKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// QueryAccountInfo asks a linked bank for the holder of an account. The
// returned data is only surfaced after its signature verifies against the
// bank's registered public key.
func (c *Client) QueryAccountInfo(ctx context.Context, endpoint Endpoint, accountNumber string) (*banksign.AccountInfoData, error) {
	ts := banksign.TimestampNow()
	payload := banksign.AccountInfoPayload(accountNumber, ts)
	sig, err := banksign.Sign(c.PrivateKey, []byte(payload))
	if err != nil {
		return nil, err
	}
	reqBody := banksign.AccountInfoRequest{
		AccountNumber: accountNumber,
		Timestamp:     ts,
		BankCode:      c.BankCode,
		Hash:          banksign.ComputeHMAC(payload, endpoint.SharedSecret),
		Signature:     sig,
	}

	raw, status, err := c.post(ctx, endpoint.BaseURL+endpoint.AccountInfoPath, reqBody)
	if err != nil {
		return nil, err
	}
	// Account queries are read-only, so a plain HTTP refusal (typically an
	// unsigned not-found body) is safe to act on without a signature.
	if status < 200 || status >= 300 {
		log.Printf("level=info component=bank_client op=account_info bank=%s status=%d msg=\"remote declined account query\"", endpoint.BankCode, status)
		return nil, ErrRemoteDeclined
	}

	var resp banksign.AccountInfoResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Printf("level=warn component=bank_client op=account_info bank=%s status=%d msg=\"unparsable response body\"", endpoint.BankCode, status)
		return nil, ErrUnverifiedResponse
	}
	if err := banksign.VerifyResponseData(endpoint.PublicKey, resp.Data, resp.Signature); err != nil {
		log.Printf("level=warn component=bank_client op=account_info bank=%s msg=\"response signature verification failed\"", endpoint.BankCode)
		return nil, ErrUnverifiedResponse
	}
	return &resp.Data, nil
}

// Deposit instructs a linked bank to credit one of its accounts. The amount is
// the exact wire string that was hashed and signed.
func (c *Client) Deposit(ctx context.Context, endpoint Endpoint, accountNumber, fromAccountNumber, amount, message string) (*banksign.DepositAckData, error) {
	ts := banksign.TimestampNow()
	payload := banksign.DepositPayload(accountNumber, fromAccountNumber, amount, ts)
	sig, err := banksign.Sign(c.PrivateKey, []byte(payload))
	if err != nil {
		return nil, err
	}
	reqBody := banksign.DepositRequest{
		AccountNumber:     accountNumber,
		FromAccountNumber: fromAccountNumber,
		Amount:            amount,
		Timestamp:         ts,
		BankCode:          c.BankCode,
		Hash:              banksign.ComputeHMAC(payload, endpoint.SharedSecret),
		Signature:         sig,
		Message:           message,
	}

	raw, status, err := c.post(ctx, endpoint.BaseURL+endpoint.DepositPath, reqBody)
	if err != nil {
		return nil, err
	}

	var resp banksign.DepositResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Printf("level=warn component=bank_client op=deposit bank=%s status=%d msg=\"unparsable response body\"", endpoint.BankCode, status)
		return nil, ErrUnverifiedResponse
	}
	if err := banksign.VerifyResponseData(endpoint.PublicKey, resp.Data, resp.Signature); err != nil {
		log.Printf("level=warn component=bank_client op=deposit bank=%s msg=\"response signature verification failed\"", endpoint.BankCode)
		return nil, ErrUnverifiedResponse
	}
	if status < 200 || status >= 300 || resp.Data.Status != "success" {
		return nil, ErrRemoteDeclined
	}
	return &resp.Data, nil
}

// post executes a JSON POST and returns the raw body alongside the status
// code. Transport failures are returned unwrapped into either error class so
// the caller can tell "unknown outcome" apart from "verified outcome".
func (c *Client) post(ctx context.Context, url string, body interface{}) ([]byte, int, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(encoded))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	return raw, resp.StatusCode, nil
}
