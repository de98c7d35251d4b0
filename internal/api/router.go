/**
 * @description
 * This file sets up the HTTP router for the funds-service. Customer endpoints
 * sit behind bearer-token authentication; the /bank endpoints are open at the
 * HTTP layer because every inbound interbank request authenticates itself via
 * its signed envelope.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// FundsRoutes creates and returns the router for the funds service.
func FundsRoutes(h *FundsHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Inbound interbank endpoints, authenticated by signed envelopes.
	r.Route("/bank", func(r chi.Router) {
		r.Post("/account-info", h.BankAccountInfoHandler)
		r.Post("/deposit", h.BankDepositHandler)
	})

	// Customer endpoints behind bearer-token authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Get("/account", h.GetAccountHandler)
		r.Get("/accounts/lookup", h.LookupAccountHandler)
		r.Get("/transactions", h.ListTransactionsHandler)

		r.Post("/transfers/initiate", h.InitiateTransferHandler)
		r.Post("/transfers/confirm", h.ConfirmTransferHandler)

		r.Post("/external-transfers/initiate", h.InitiateExternalTransferHandler)
		r.Post("/external-transfers/confirm", h.ConfirmExternalTransferHandler)

		r.Post("/debts", h.CreateDebtReminderHandler)
		r.Get("/debts", h.ListDebtRemindersHandler)
		r.Delete("/debts/{reminderID}", h.CancelDebtReminderHandler)
		r.Post("/debts/{reminderID}/pay/initiate", h.InitiateDebtPaymentHandler)
		r.Post("/debts/{reminderID}/pay/confirm", h.ConfirmDebtPaymentHandler)
	})

	return r
}
