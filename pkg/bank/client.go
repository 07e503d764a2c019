package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/littlewears/littlewears-backend/pkg/config"
	pkgerrors "github.com/littlewears/littlewears-backend/pkg/errors"
	"github.com/littlewears/littlewears-backend/pkg/logger"
)

const (
	grantClientCredentials = "client_credentials"
	grantRefreshToken      = "refresh_token"

	dispatchClassSingle = "single"
	dispatchClassBulk   = "bulk"

	// Tokens are refreshed slightly before the bank's stated expiry.
	tokenExpirySkew = 30 * time.Second
)

var (
	errLoggerRequired  = errors.New("bank logger is required")
	errBaseURLRequired = errors.New("bank base url is required")
)

// session holds one credential pair's cached bearer token. The bank issues a
// refresh token alongside each access token; refresh is preferred because it
// does not count against the credential-grant rate limit.
type session struct {
	clientID     string
	clientSecret string
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

func (s *session) valid(now time.Time) bool {
	return s.accessToken != "" && now.Add(tokenExpirySkew).Before(s.expiresAt)
}

// Client talks to the corporate bank transfer API. Inquiry endpoints use the
// base credential pair; money-moving endpoints use the privileged transfer
// pair only.
type Client struct {
	cfg    config.BankConfig
	http   *http.Client
	logger *logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	inquiry  session
	transfer session
}

// NewClient validates configuration and builds the gateway.
func NewClient(ctx context.Context, cfg config.BankConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errBaseURLRequired
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("bank inquiry credentials are required")
	}
	if cfg.TransferClientID == "" || cfg.TransferClientSecret == "" {
		return nil, errors.New("bank transfer credentials are required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: timeout},
		logger:   logg,
		now:      time.Now,
		inquiry:  session{clientID: cfg.ClientID, clientSecret: cfg.ClientSecret},
		transfer: session{clientID: cfg.TransferClientID, clientSecret: cfg.TransferClientSecret},
	}
	logg.Info(ctx, "bank client initialized")
	return c, nil
}

// TransferToSeller submits one transfer document. Local rejects come back as
// validation errors before any network call; bank-side outcomes are reported
// through TransferResult.ResultCode.
func (c *Client) TransferToSeller(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	}
	if req.BankCode == "" || req.AccountHolder == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient bank details incomplete")
	}
	if !strings.HasPrefix(req.AccountNo, c.cfg.AccountNoPrefix) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("account number must start with %q", c.cfg.AccountNoPrefix))
	}

	payload := map[string]any{
		"withdrawal_account_no": c.cfg.WithdrawalAccountNo,
		"bank_code":             req.BankCode,
		"account_no":            req.AccountNo,
		"account_holder":        req.AccountHolder,
		"amount_cents":          req.AmountCents,
		"reference":             req.Reference,
		"dispatch_class":        c.dispatchClass(req.AmountCents),
	}

	var resp struct {
		DocumentID  string `json:"document_id"`
		DocumentKey string `json:"document_key"`
		ResultCode  int    `json:"result_code"`
		Message     string `json:"message"`
	}
	if err := c.call(ctx, &c.transfer, http.MethodPost, "/v1/transfers", payload, &resp); err != nil {
		return nil, err
	}

	result := &TransferResult{
		DocumentID:  resp.DocumentID,
		DocumentKey: resp.DocumentKey,
		ResultCode:  resp.ResultCode,
		Message:     resp.Message,
	}
	if result.Message == "" {
		result.Message = ResultMessage(result.ResultCode)
	}

	logCtx := c.logger.WithFields(ctx, map[string]any{
		"document_key": result.DocumentKey,
		"result_code":  result.ResultCode,
		"account_no":   redactAccountNo(req.AccountNo),
	})
	c.logger.Info(logCtx, "bank transfer submitted")
	return result, nil
}

// GetDocumentStatus fetches the authoritative state of one transfer document.
func (c *Client) GetDocumentStatus(ctx context.Context, documentKey string) (*DocumentStatus, error) {
	if documentKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document key required")
	}

	var resp struct {
		DocumentKey string `json:"document_key"`
		ResultCode  int    `json:"result_code"`
		Message     string `json:"message"`
	}
	path := "/v1/transfers/documents/" + url.PathEscape(documentKey)
	if err := c.call(ctx, &c.transfer, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	status := &DocumentStatus{
		DocumentKey: resp.DocumentKey,
		ResultCode:  resp.ResultCode,
		Message:     resp.Message,
	}
	if status.Message == "" {
		status.Message = ResultMessage(status.ResultCode)
	}
	return status, nil
}

// RequestTransferOTP asks the bank to send a one-time code to the registered
// signer. Human-triggered; the reconciliation job never calls this.
func (c *Client) RequestTransferOTP(ctx context.Context, documentKey string) error {
	if documentKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "document key required")
	}
	path := "/v1/transfers/documents/" + url.PathEscape(documentKey) + "/otp"
	return c.call(ctx, &c.transfer, http.MethodPost, path, map[string]any{}, nil)
}

// SignTransferDocument submits the signer's OTP for a pending document.
func (c *Client) SignTransferDocument(ctx context.Context, documentKey, otp string) (*DocumentStatus, error) {
	if documentKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document key required")
	}
	if otp == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "otp required")
	}

	var resp struct {
		DocumentKey string `json:"document_key"`
		ResultCode  int    `json:"result_code"`
		Message     string `json:"message"`
	}
	path := "/v1/transfers/documents/" + url.PathEscape(documentKey) + "/sign"
	if err := c.call(ctx, &c.transfer, http.MethodPost, path, map[string]any{"otp": otp}, &resp); err != nil {
		return nil, err
	}

	status := &DocumentStatus{
		DocumentKey: resp.DocumentKey,
		ResultCode:  resp.ResultCode,
		Message:     resp.Message,
	}
	if status.Message == "" {
		status.Message = ResultMessage(status.ResultCode)
	}
	return status, nil
}

func (c *Client) dispatchClass(amountCents int64) string {
	if c.cfg.BulkThresholdCents > 0 && amountCents >= c.cfg.BulkThresholdCents {
		return dispatchClassBulk
	}
	return dispatchClassSingle
}

// call performs one authenticated request, refreshing the session token when
// needed. A 401 retries once with a freshly forced token.
func (c *Client) call(ctx context.Context, sess *session, method, path string, body any, out any) error {
	token, err := c.token(ctx, sess, false)
	if err != nil {
		return err
	}

	status, err := c.do(ctx, token, method, path, body, out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		token, err = c.token(ctx, sess, true)
		if err != nil {
			return err
		}
		status, err = c.do(ctx, token, method, path, body, out)
		if err != nil {
			return err
		}
	}
	if status < 200 || status >= 300 {
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("bank API returned status %d for %s", status, path))
	}
	return nil
}

func (c *Client) do(ctx context.Context, token, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode bank request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build bank request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bank API unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode bank response")
		}
		return resp.StatusCode, nil
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// token returns a valid bearer token for the session, re-authenticating when
// expired or when force is set. The refresh grant is tried first; a failed
// refresh falls back to client credentials rather than surfacing an error.
func (c *Client) token(ctx context.Context, sess *session, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && sess.valid(c.now()) {
		return sess.accessToken, nil
	}

	if sess.refreshToken != "" {
		if err := c.authenticate(ctx, sess, grantRefreshToken); err == nil {
			return sess.accessToken, nil
		}
		c.logger.Warn(ctx, "bank token refresh failed; falling back to client credentials")
		sess.refreshToken = ""
	}
	if err := c.authenticate(ctx, sess, grantClientCredentials); err != nil {
		return "", err
	}
	return sess.accessToken, nil
}

func (c *Client) authenticate(ctx context.Context, sess *session, grant string) error {
	form := url.Values{}
	form.Set("grant_type", grant)
	switch grant {
	case grantRefreshToken:
		form.Set("refresh_token", sess.refreshToken)
		form.Set("client_id", sess.clientID)
	default:
		form.Set("client_id", sess.clientID)
		form.Set("client_secret", sess.clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bank token endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("bank token endpoint returned status %d", resp.StatusCode))
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode bank token response")
	}
	if payload.AccessToken == "" {
		return pkgerrors.New(pkgerrors.CodeDependency, "bank token response missing access token")
	}

	sess.accessToken = payload.AccessToken
	if payload.RefreshToken != "" {
		sess.refreshToken = payload.RefreshToken
	}
	sess.expiresAt = c.now().Add(time.Duration(payload.ExpiresIn) * time.Second)

	logCtx := c.logger.WithField(ctx, "grant_type", grant)
	c.logger.Info(logCtx, "bank session authenticated")
	return nil
}

func redactAccountNo(accountNo string) string {
	if len(accountNo) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(accountNo)-4) + accountNo[len(accountNo)-4:]
}
