package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/littlewears/littlewears-backend/api/responses"
	"github.com/littlewears/littlewears-backend/api/validators"
	"github.com/littlewears/littlewears-backend/pkg/bank"
	pkgerrors "github.com/littlewears/littlewears-backend/pkg/errors"
	"github.com/littlewears/littlewears-backend/pkg/logger"
)

// TransferSigner is the slice of the bank client the signing endpoints need.
type TransferSigner interface {
	RequestTransferOTP(ctx context.Context, documentKey string) error
	SignTransferDocument(ctx context.Context, documentKey, otp string) (*bank.DocumentStatus, error)
}

type signTransferRequest struct {
	OTP string `json:"otp" validate:"required"`
}

type transferDocumentResponse struct {
	DocumentKey string `json:"document_key"`
	ResultCode  int    `json:"result_code"`
	Message     string `json:"message"`
	Terminal    bool   `json:"terminal"`
}

func documentKeyParam(r *http.Request) (string, error) {
	key := strings.TrimSpace(chi.URLParam(r, "documentKey"))
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "document key is required")
	}
	return key, nil
}

// RequestTransferOTP asks the bank to send a signing code for a pending
// transfer document.
func RequestTransferOTP(signer TransferSigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := documentKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := signer.RequestTransferOTP(r.Context(), key); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"document_key": key, "status": "otp_sent"})
	}
}

// SignTransferDocument submits the signer's OTP. Settlement of the backing
// ledger row is left to the transfer reconciliation job.
func SignTransferDocument(signer TransferSigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := documentKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req signTransferRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := signer.SignTransferDocument(r.Context(), key, req.OTP)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transferDocumentResponse{
			DocumentKey: status.DocumentKey,
			ResultCode:  status.ResultCode,
			Message:     status.Message,
			Terminal:    status.IsTerminal(),
		})
	}
}
