/**
 * @description
 * HTTP handlers for the interbank surface: the outbound external transfer
 * flow for customers, and the inbound endpoints linked banks call on us.
 *
 * Inbound envelope failures are mapped to 403 with a generic message; which
 * of freshness, HMAC or signature failed is logged, never reported to the
 * caller.
 */

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meridianbank/funds-service/internal/app"
	"github.com/meridianbank/funds-service/internal/domain"
	"github.com/meridianbank/funds-service/internal/store"
	"github.com/meridianbank/funds-service/pkg/banksign"
)

// InitiateExternalTransferHandler starts an outbound interbank transfer.
func (h *FundsHandlers) InitiateExternalTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	var req domain.InitiateExternalTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	initiation, err := h.service.InitiateExternalTransfer(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, initiation)
}

// ConfirmExternalTransferHandler runs the outbound settlement. A settlement
// still pending at return time is reported as 202: the local debit stands and
// the outcome will be reconciled.
func (h *FundsHandlers) ConfirmExternalTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	var req domain.ConfirmExternalTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OTPCode == "" {
		h.writeError(w, http.StatusBadRequest, "otp_code is required")
		return
	}
	settlement, err := h.service.ConfirmExternalTransfer(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if settlement.Status == domain.InterbankStatusPending {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, settlement)
}

// writeEnvelopeError maps inbound verification failures without leaking which
// check failed.
func (h *FundsHandlers) writeEnvelopeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, banksign.ErrRequestExpired):
		h.writeError(w, http.StatusBadRequest, "Request expired")
	case errors.Is(err, banksign.ErrInvalidHash),
		errors.Is(err, banksign.ErrInvalidSignature):
		h.writeError(w, http.StatusForbidden, "Request verification failed")
	case errors.Is(err, store.ErrBankNotLinked), errors.Is(err, app.ErrBankInactive):
		h.writeError(w, http.StatusForbidden, "Request verification failed")
	case errors.Is(err, store.ErrDuplicateDeposit):
		h.writeError(w, http.StatusConflict, "Deposit already processed")
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, app.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Invalid amount")
	default:
		h.writeError(w, http.StatusInternalServerError, "An internal error occurred")
	}
}

// BankAccountInfoHandler serves an inbound account query from a linked bank.
func (h *FundsHandlers) BankAccountInfoHandler(w http.ResponseWriter, r *http.Request) {
	var req banksign.AccountInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	resp, err := h.service.QueryLocalAccountInfo(r.Context(), req)
	if err != nil {
		h.writeEnvelopeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// BankDepositHandler serves an inbound deposit from a linked bank. Refusals
// for which the service produced a signed failed acknowledgment carry that
// body, so the counterparty can verify the refusal and compensate its sender.
func (h *FundsHandlers) BankDepositHandler(w http.ResponseWriter, r *http.Request) {
	var req banksign.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	resp, err := h.service.ProcessInboundDeposit(r.Context(), req)
	if err != nil {
		if resp != nil {
			status := http.StatusBadRequest
			if errors.Is(err, store.ErrAccountNotFound) {
				status = http.StatusNotFound
			}
			h.writeJSON(w, status, resp)
			return
		}
		h.writeEnvelopeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}
