package controllers

import (
	"net/http"

	"github.com/littlewears/littlewears-backend/api/responses"
	"github.com/littlewears/littlewears-backend/api/validators"
	"github.com/littlewears/littlewears-backend/internal/commission"
	"github.com/littlewears/littlewears-backend/internal/ledger"
	"github.com/littlewears/littlewears-backend/pkg/logger"
)

type withdrawalRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"required,gt=0"`
}

type withdrawalResponse struct {
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	DocumentKey   *string `json:"document_key,omitempty"`
}

// SellerWithdrawal moves seller balance to the bank. The response status is
// "completed" when the bank settled inline, "pending" when the transfer
// waits on a signed document.
func SellerWithdrawal(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, err := validators.ParsePathUUID(r, "sellerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req withdrawalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RequestWithdrawal(r.Context(), sellerID, req.AmountCents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, withdrawalResponse{
			TransactionID: result.TransactionID.String(),
			Status:        result.Status,
			DocumentKey:   result.DocumentKey,
		})
	}
}

// ReferrerWithdrawal pays out approved commission balance.
func ReferrerWithdrawal(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		referrerID, err := validators.ParsePathUUID(r, "referrerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req withdrawalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RequestWithdrawal(r.Context(), referrerID, req.AmountCents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, withdrawalResponse{
			TransactionID: result.TransactionID.String(),
			Status:        result.Status,
			DocumentKey:   result.DocumentKey,
		})
	}
}
