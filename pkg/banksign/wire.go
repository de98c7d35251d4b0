/**
 * @description
 * Wire DTOs for the interbank protocol. These structs are shared by the
 * inbound handlers and the outbound client so that the JSON encoding a signer
 * produces is byte-identical to the encoding the verifier reconstructs.
 */
package banksign

import "github.com/shopspring/decimal"

// AccountInfoRequest is the body of POST /bank/account-info.
type AccountInfoRequest struct {
	AccountNumber string `json:"account_number"`
	Timestamp     int64  `json:"timestamp"`
	BankCode      string `json:"bank_code"`
	Hash          string `json:"hash"`
	Signature     string `json:"signature"`
}

// AccountInfoData is the signed data block of an account query response.
// Field order is part of the canonical encoding; do not reorder.
type AccountInfoData struct {
	AccountNumber string          `json:"account_number"`
	FullName      string          `json:"full_name"`
	Balance       decimal.Decimal `json:"balance"`
}

// AccountInfoResponse is the full envelope returned for an account query.
type AccountInfoResponse struct {
	Data      AccountInfoData `json:"data"`
	Signature string          `json:"signature"`
}

// DepositRequest is the body of POST /bank/deposit. Amount is carried as a
// string so the canonical payload hashes the exact wire bytes.
type DepositRequest struct {
	AccountNumber     string `json:"account_number"`
	FromAccountNumber string `json:"from_account_number"`
	Amount            string `json:"amount"`
	Timestamp         int64  `json:"timestamp"`
	BankCode          string `json:"bank_code"`
	Hash              string `json:"hash"`
	Signature         string `json:"signature"`
	Message           string `json:"message,omitempty"`
}

// DepositAckData is the signed data block of a deposit acknowledgment.
// Field order is part of the canonical encoding; do not reorder.
type DepositAckData struct {
	Status        string          `json:"status"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	AccountNumber string          `json:"account_number"`
	Timestamp     int64           `json:"timestamp"`
}

// DepositResponse is the full envelope returned for a deposit.
type DepositResponse struct {
	Data      DepositAckData `json:"data"`
	Signature string         `json:"signature"`
}
