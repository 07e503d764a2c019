package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/littlewears/littlewears-backend/pkg/bank"
	pkgerrors "github.com/littlewears/littlewears-backend/pkg/errors"
	"github.com/littlewears/littlewears-backend/pkg/types"
)

type fakeSigner struct {
	otpRequested []string
	signedKey    string
	signedOTP    string
	status       *bank.DocumentStatus
	err          error
}

func (f *fakeSigner) RequestTransferOTP(_ context.Context, documentKey string) error {
	f.otpRequested = append(f.otpRequested, documentKey)
	return f.err
}

func (f *fakeSigner) SignTransferDocument(_ context.Context, documentKey, otp string) (*bank.DocumentStatus, error) {
	f.signedKey = documentKey
	f.signedOTP = otp
	return f.status, f.err
}

func TestRequestTransferOTP(t *testing.T) {
	signer := &fakeSigner{}
	r := chi.NewRouter()
	r.Post("/api/v1/transfers/{documentKey}/otp", RequestTransferOTP(signer, testLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/DOC-9/otp", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 but got %d: %s", w.Code, w.Body.String())
	}
	if len(signer.otpRequested) != 1 || signer.otpRequested[0] != "DOC-9" {
		t.Fatalf("otp request not forwarded: %v", signer.otpRequested)
	}
}

func TestSignTransferDocumentCompleted(t *testing.T) {
	signer := &fakeSigner{status: &bank.DocumentStatus{DocumentKey: "DOC-9", ResultCode: bank.ResultCodeCompleted, Message: "transfer completed"}}
	r := chi.NewRouter()
	r.Post("/api/v1/transfers/{documentKey}/sign", SignTransferDocument(signer, testLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/DOC-9/sign", strings.NewReader(`{"otp": "123456"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 but got %d: %s", w.Code, w.Body.String())
	}
	if signer.signedKey != "DOC-9" || signer.signedOTP != "123456" {
		t.Fatalf("sign request not forwarded: %s %s", signer.signedKey, signer.signedOTP)
	}

	var envelope types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data := envelope.Data.(map[string]any)
	if data["terminal"] != true {
		t.Fatalf("completed document must be terminal: %v", data)
	}
}

func TestSignTransferDocumentRequiresOTP(t *testing.T) {
	signer := &fakeSigner{}
	r := chi.NewRouter()
	r.Post("/api/v1/transfers/{documentKey}/sign", SignTransferDocument(signer, testLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/DOC-9/sign", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 but got %d", w.Code)
	}
	if signer.signedKey != "" {
		t.Fatalf("signer must not be invoked without an otp")
	}
}

func TestSignTransferDocumentBankDown(t *testing.T) {
	signer := &fakeSigner{err: pkgerrors.New(pkgerrors.CodeDependency, "bank api unavailable")}
	r := chi.NewRouter()
	r.Post("/api/v1/transfers/{documentKey}/sign", SignTransferDocument(signer, testLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/DOC-9/sign", strings.NewReader(`{"otp": "123456"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 but got %d", w.Code)
	}
}
