// Package rail talks to the external banking partner. Every response is
// decoded against one strict schema; anything else is a rejection.
package rail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/cache"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL        string
	TokenURL       string
	AccessToken    string
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
}

// Client is the live rail.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	tokens     *TokenSource
}

// NewClient builds a live client. c backs the token cache and may be nil.
func NewClient(cfg Config, c cache.Cache) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = strings.TrimRight(cfg.BaseURL, "/") + "/auth/token"
	}
	return &Client{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		HTTPClient: httpClient,
		tokens:     NewTokenSource(cfg.AccessToken, tokenURL, cfg.ConsumerKey, cfg.ConsumerSecret, httpClient, c),
	}
}

// Transfer submits a transfer. A well-formed response whose status is not
// "00" is returned alongside a RailRejected error carrying the rail's message.
func (c *Client) Transfer(ctx context.Context, in TransferRequest) (*TransferResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	var out TransferResponse
	if err := c.do(ctx, http.MethodPost, "/transfer", nil, body, "transfer", &out); err != nil {
		return nil, err
	}
	if out.Status != StatusSuccess {
		zap.L().Warn("rail declined transfer",
			zap.String("reference", in.Reference),
			zap.String("status", out.Status),
			zap.String("message", out.Message),
		)
		return &out, rejection(out.Message)
	}
	return &out, nil
}

// TransactionStatus asks the rail what became of the transfer with reference.
func (c *Client) TransactionStatus(ctx context.Context, reference string) (*StatusResult, error) {
	var out statusResponse
	query := url.Values{"reference": {reference}}
	if err := c.do(ctx, http.MethodGet, "/transactions", query, nil, "status", &out); err != nil {
		return nil, err
	}

	switch out.Status {
	case statusNotFound:
		return &StatusResult{State: TxNotFound, Message: out.Message}, nil
	case StatusSuccess:
	default:
		return nil, rejection(out.Message)
	}

	res := &StatusResult{TransactionID: out.Data.TransactionID, Message: out.Message}
	switch out.Data.TransactionStatus {
	case StatusSuccess:
		res.State = TxSucceeded
	case "01", "02", "09":
		res.State = TxPending
	default:
		res.State = TxFailed
	}
	return res, nil
}

// Balance returns the rail-held balance of accountNumber in kobo.
func (c *Client) Balance(ctx context.Context, accountNumber string) (int64, error) {
	var out balanceResponse
	query := url.Values{"accountNumber": {accountNumber}}
	if err := c.do(ctx, http.MethodGet, "/account/enquiry", query, nil, "balance", &out); err != nil {
		return 0, err
	}
	if out.Status != StatusSuccess {
		return 0, rejection(out.Message)
	}
	kobo, err := domain.ParseMajorUnits(out.Data.AccountBalance)
	if err != nil {
		return 0, domain.NewError(domain.CodeRailRejected, "banking partner returned an unreadable balance", err)
	}
	return kobo, nil
}

func (c *Client) CreateVirtualAccount(ctx context.Context, in VirtualAccountRequest) (*VirtualAccount, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal virtual account request: %w", err)
	}

	var out virtualAccountResponse
	if err := c.do(ctx, http.MethodPost, "/virtualaccount", nil, body, "virtual_account", &out); err != nil {
		return nil, err
	}
	if out.Status != StatusSuccess {
		return nil, rejection(out.Message)
	}
	ref := out.Reference
	if ref == "" {
		ref = in.Reference
	}
	return &VirtualAccount{AccountNumber: out.AccountNumber, Reference: ref}, nil
}

// do sends an authenticated request. A 401 drops the cached token and the
// request is retried once with a fresh one.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, endpoint string, out validator) error {
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return classifyTransportErr(err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return fmt.Errorf("failed to create %s request: %w", endpoint, err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		err = doJSON(c.HTTPClient, req, endpoint, out)
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusUnauthorized && attempt == 0 {
			c.tokens.Invalidate(ctx)
			continue
		}
		return err
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("rail responded with status %d", e.code)
}

// doJSON executes req and strictly decodes a 2xx body into out. Errors are
// already classified into the rail taxonomy.
func doJSON(httpClient *http.Client, req *http.Request, endpoint string, out validator) error {
	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		observability.ObserveRailRequest(endpoint, "transport_error", time.Since(start))
		return classifyTransportErr(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		observability.ObserveRailRequest(endpoint, "transport_error", time.Since(start))
		return classifyTransportErr(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.ObserveRailRequest(endpoint, fmt.Sprintf("http_%dxx", resp.StatusCode/100), time.Since(start))
		zap.L().Warn("rail non-2xx response",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		cause := &statusError{code: resp.StatusCode}
		if resp.StatusCode >= 500 {
			return domain.NewError(domain.CodeRailUnavailable, domain.ErrRailUnavailable.Message, cause)
		}
		return domain.NewError(domain.CodeRailRejected, domain.ErrRailRejected.Message, cause)
	}

	if err := decodeStrict(raw, out); err != nil {
		observability.ObserveRailRequest(endpoint, "decode_error", time.Since(start))
		zap.L().Warn("rail response rejected", zap.String("endpoint", endpoint), zap.Error(err))
		return domain.NewError(domain.CodeRailRejected, "banking partner returned an unexpected response", err)
	}
	observability.ObserveRailRequest(endpoint, "ok", time.Since(start))
	return nil
}

func decodeStrict(raw []byte, out validator) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("trailing data after response object")
	}
	return out.validate()
}

func classifyTransportErr(err error) error {
	if domain.CodeOf(err) != "" {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.NewError(domain.CodeRailTimeout, domain.ErrRailTimeout.Message, err)
	}
	return domain.NewError(domain.CodeRailUnavailable, domain.ErrRailUnavailable.Message, err)
}

// rejection carries the rail's own message, trimmed, as the caller-facing text.
func rejection(message string) error {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = domain.ErrRailRejected.Message
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return domain.NewError(domain.CodeRailRejected, msg, nil)
}
