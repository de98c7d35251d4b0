/**
 * @description
 * This file contains the HTTP handlers for the funds-service's customer-facing
 * endpoints: account queries, internal transfer initiation and confirmation,
 * and the ledger history. Handlers parse the request, call the application
 * service and map the outcome onto HTTP statuses; debt and interbank handlers
 * live in sibling files.
 *
 * Authentication-sensitive failures (invalid code, intent mismatch) are
 * reported with generic messages so responses cannot be used to probe codes.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/meridianbank/funds-service/internal/app"
	"github.com/meridianbank/funds-service/internal/domain"
	"github.com/meridianbank/funds-service/internal/store"
)

// FundsHandlers holds the application service that handlers will use.
type FundsHandlers struct {
	service *app.Service
}

// NewFundsHandlers creates a new instance of FundsHandlers.
func NewFundsHandlers(service *app.Service) *FundsHandlers {
	return &FundsHandlers{service: service}
}

func (h *FundsHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *FundsHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps application and store errors onto HTTP statuses. Any
// error not matched here is a 500 with a generic message.
func (h *FundsHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidFeePayer):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusBadRequest, "Insufficient funds")
	case errors.Is(err, store.ErrInvalidOrExpiredOTP):
		h.writeError(w, http.StatusBadRequest, "Invalid or expired confirmation code")
	case errors.Is(err, store.ErrOTPIntentMismatch):
		h.writeError(w, http.StatusConflict, "Confirmation does not match the initiated operation")
	case errors.Is(err, store.ErrSelfTransfer):
		h.writeError(w, http.StatusConflict, "Cannot transfer to your own account")
	case errors.Is(err, app.ErrDestinationNotFound),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrDebtNotFound):
		h.writeError(w, http.StatusNotFound, "Debt reminder not found")
	case errors.Is(err, store.ErrDebtForbidden):
		h.writeError(w, http.StatusForbidden, "Not allowed for this debt reminder")
	case errors.Is(err, store.ErrDebtNotPending):
		h.writeError(w, http.StatusConflict, "Debt reminder is no longer pending")
	case errors.Is(err, store.ErrBankNotLinked):
		h.writeError(w, http.StatusNotFound, "Bank is not linked")
	case errors.Is(err, app.ErrBankInactive):
		h.writeError(w, http.StatusConflict, "Bank link is not active")
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many attempts, slow down")
	case errors.Is(err, app.ErrRemoteSettlement):
		h.writeError(w, http.StatusBadGateway, "Settlement with the remote bank failed")
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "An internal error occurred")
	}
}

// GetAccountHandler returns the caller's ledger account.
func (h *FundsHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	account, err := h.service.GetAccount(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// LookupAccountHandler resolves an internal account number to its holder's
// display name for recipient confirmation screens.
func (h *FundsHandlers) LookupAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountNumber := r.URL.Query().Get("account_number")
	if accountNumber == "" {
		h.writeError(w, http.StatusBadRequest, "account_number is required")
		return
	}
	account, holder, err := h.service.LookupAccountHolder(r.Context(), accountNumber)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"account_number": account.AccountNumber,
		"full_name":      holder.FullName,
	})
}

// ListTransactionsHandler returns the caller's ledger history.
func (h *FundsHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	transactions, err := h.service.ListTransactions(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

// InitiateTransferHandler starts an internal transfer and triggers OTP delivery.
func (h *FundsHandlers) InitiateTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	var req domain.InitiateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	initiation, err := h.service.InitiateTransfer(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, initiation)
}

// ConfirmTransferHandler settles an initiated internal transfer.
func (h *FundsHandlers) ConfirmTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	var req domain.ConfirmTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OTPCode == "" {
		h.writeError(w, http.StatusBadRequest, "otp_code is required")
		return
	}
	record, err := h.service.ConfirmTransfer(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, record)
}
