/**
 * @description
 * HTTP handlers for debt reminders: creation, listing, cancellation and the
 * OTP-gated payment flow.
 */

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridianbank/funds-service/internal/domain"
)

// CreateDebtReminderHandler records a payment request against another customer.
func (h *FundsHandlers) CreateDebtReminderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	var req domain.CreateDebtReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	reminder, err := h.service.CreateDebtReminder(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, reminder)
}

// ListDebtRemindersHandler returns every reminder the caller participates in.
func (h *FundsHandlers) ListDebtRemindersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	reminders, err := h.service.ListDebtReminders(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"debt_reminders": reminders})
}

func reminderIDFromURL(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "reminderID"))
	return id, err == nil
}

// CancelDebtReminderHandler cancels a pending reminder.
func (h *FundsHandlers) CancelDebtReminderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	reminderID, ok := reminderIDFromURL(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid reminder ID")
		return
	}
	if err := h.service.CancelDebtReminder(r.Context(), userID, reminderID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": domain.DebtStatusCancelled})
}

// InitiateDebtPaymentHandler issues a one-time code for settling a reminder.
func (h *FundsHandlers) InitiateDebtPaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	reminderID, ok := reminderIDFromURL(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid reminder ID")
		return
	}
	initiation, err := h.service.InitiateDebtPayment(r.Context(), userID, reminderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, initiation)
}

// ConfirmDebtPaymentHandler settles a reminder with the debtor's code.
func (h *FundsHandlers) ConfirmDebtPaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	reminderID, ok := reminderIDFromURL(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid reminder ID")
		return
	}
	var req domain.ConfirmDebtPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OTPCode == "" {
		h.writeError(w, http.StatusBadRequest, "otp_code is required")
		return
	}
	record, err := h.service.ConfirmDebtPayment(r.Context(), userID, reminderID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, record)
}
