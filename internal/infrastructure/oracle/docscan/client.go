package docscan

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/batipro/chantierdesk/internal/core/domain"
	"github.com/batipro/chantierdesk/internal/infrastructure/resilience"
)

// Client talks to the document-scan oracle. The oracle is untrusted and
// rate limited: guesses may be partial or absent, calls are throttled
// locally and circuit-broken, and nothing here may gate manual entry.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

type Config struct {
	BaseURL string
	APIKey  string
	// RequestsPerSecond throttles oracle calls; the remote end enforces
	// its own quota and 429s are not worth the retry budget.
	RequestsPerSecond float64
	Timeout           time.Duration
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		executor:   executor,
	}
}

type scanRequest struct {
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	Text       string `json:"text,omitempty"`
	DataBase64 string `json:"data_base64,omitempty"`
}

type scanResponse struct {
	DocumentDate string  `json:"document_date,omitempty"`
	AmountCents  *int64  `json:"amount_cents,omitempty"`
	Supplier     string  `json:"supplier,omitempty"`
	SIRET        string  `json:"siret,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
}

// Extract asks the oracle for a best-effort structured guess. PDFs are
// reduced to plain text locally before the call; images travel inline.
func (c *Client) Extract(ctx context.Context, filename, mimeType string, data []byte) (*domain.ExtractedFields, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := scanRequest{Filename: filename, MimeType: mimeType}
	switch {
	case mimeType == "application/pdf":
		text, err := pdfText(data)
		if err != nil {
			// Unreadable PDFs still go up raw; the oracle may cope.
			req.DataBase64 = base64.StdEncoding.EncodeToString(data)
		} else {
			req.Text = text
		}
	default:
		req.DataBase64 = base64.StdEncoding.EncodeToString(data)
	}

	var resp scanResponse
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/v1/scan", req, &resp)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "docscan.extract", call, classifyScanError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("docscan.extract", err)
	}

	return fieldsFromResponse(resp), nil
}

func fieldsFromResponse(resp scanResponse) *domain.ExtractedFields {
	fields := &domain.ExtractedFields{
		AmountCents: resp.AmountCents,
		Supplier:    resp.Supplier,
		SIRET:       resp.SIRET,
		Confidence:  resp.Confidence,
	}
	if resp.DocumentDate != "" {
		if parsed, err := time.Parse("2006-01-02", resp.DocumentDate); err == nil {
			fields.DocumentDate = &parsed
		}
	}
	return fields
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal scan request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build scan request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("scan request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4<<10))
		return &HTTPStatusError{
			Operation:  "scan",
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Body:       string(raw),
		}
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode scan response: %w", err)
	}
	return nil
}
