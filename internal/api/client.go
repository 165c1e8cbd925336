// Package api implements the REST client for the remote localization-review
// service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/stringvet/stringvet/internal/common"
	"github.com/stringvet/stringvet/internal/model"
	"github.com/stringvet/stringvet/internal/service"
)

// Config holds the client configuration. It is injected at construction;
// there is no process-wide transport state.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the remote service's request/response surface.
type Client struct {
	http    *resty.Client
	baseURL string
}

// errorBody is the service's error envelope: a status code plus a
// human-readable detail string.
type errorBody struct {
	Detail string `json:"detail"`
}

// New creates a new client for the given base URL.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, common.NewValidationError("base URL", "must not be empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, common.NewValidationError("base URL", err.Error())
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpc := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{http: httpc, baseURL: base}, nil
}

// StartTranslation starts a bulk translation job and returns its id.
func (c *Client) StartTranslation(ctx context.Context, fileID string, languages []string) (string, error) {
	if err := requireFields(map[string]string{"file id": fileID}); err != nil {
		return "", err
	}
	if len(languages) == 0 {
		return "", common.NewValidationError("languages", "must not be empty")
	}

	var out struct {
		JobID string `json:"job_id"`
	}
	err := c.post(ctx, fmt.Sprintf("/api/translate/%s", url.PathEscape(fileID)),
		map[string]any{"languages": languages}, &out)
	if err != nil {
		return "", err
	}
	return out.JobID, nil
}

// StartVerification starts one verification batch job and returns its id.
func (c *Client) StartVerification(ctx context.Context, fileID, language string, offset int, includeReviewed bool) (string, error) {
	if err := requireFields(map[string]string{"file id": fileID, "language": language}); err != nil {
		return "", err
	}
	if offset < 0 {
		return "", common.NewValidationError("offset", "must not be negative")
	}

	var out struct {
		JobID string `json:"job_id"`
	}
	err := c.post(ctx, fmt.Sprintf("/api/verify/%s", url.PathEscape(fileID)),
		map[string]any{
			"language":         language,
			"offset":           offset,
			"include_reviewed": includeReviewed,
		}, &out)
	if err != nil {
		return "", err
	}
	return out.JobID, nil
}

// StreamURL returns the streaming endpoint for a job. The caller knows the
// job's kind statically from having started it.
func (c *Client) StreamURL(kind model.JobKind, jobID string) string {
	return fmt.Sprintf("%s/api/%s/%s/stream", c.baseURL, kind, url.PathEscape(jobID))
}

// ListTranslations fetches the ordered translation records for a (file,
// language) pair, optionally narrowed to one state.
func (c *Client) ListTranslations(ctx context.Context, fileID, language string, stateFilter model.TranslationState) ([]model.TranslationRecord, error) {
	if err := requireFields(map[string]string{"file id": fileID, "language": language}); err != nil {
		return nil, err
	}

	var out struct {
		Language     string                    `json:"language"`
		Translations []model.TranslationRecord `json:"translations"`
	}
	req := c.http.R().SetContext(ctx).SetResult(&out)
	if stateFilter != "" {
		req.SetQueryParam("state", string(stateFilter))
	}
	resp, err := req.Get(fmt.Sprintf("/api/review/%s/%s", url.PathEscape(fileID), url.PathEscape(language)))
	if err != nil {
		return nil, common.WrapRequestError(err)
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	return out.Translations, nil
}

// UpdateTranslation writes one translation's text and state.
func (c *Client) UpdateTranslation(ctx context.Context, fileID, language, key, translation string, state model.TranslationState) error {
	if err := requireFields(map[string]string{"file id": fileID, "language": language, "key": key}); err != nil {
		return err
	}
	if _, err := model.ParseState(string(state)); err != nil {
		return common.NewValidationError("state", err.Error())
	}

	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"translation": translation, "state": state}).
		Put(fmt.Sprintf("/api/review/%s/%s/%s",
			url.PathEscape(fileID), url.PathEscape(language), url.PathEscape(key)))
	if err != nil {
		return common.WrapRequestError(err)
	}
	if resp.IsError() {
		return responseError(resp)
	}
	return nil
}

// TranslateSingle machine-translates one entry and returns the authoritative
// saved record.
func (c *Client) TranslateSingle(ctx context.Context, fileID, language, key, source string) (*model.SingleTranslation, error) {
	if err := requireFields(map[string]string{"file id": fileID, "language": language, "key": key, "source": source}); err != nil {
		return nil, err
	}

	var out model.SingleTranslation
	err := c.post(ctx, fmt.Sprintf("/api/review/%s/%s/translate-single",
		url.PathEscape(fileID), url.PathEscape(language)),
		map[string]any{"key": key, "source": source}, &out)
	if err != nil {
		return nil, err
	}
	if out.Key == "" {
		out.Key = key
	}
	return &out, nil
}

// ReviewSingle runs one LLM review and returns issues plus suggestions.
func (c *Client) ReviewSingle(ctx context.Context, fileID, language, key, source, translation string) (*model.SingleReview, error) {
	if err := requireFields(map[string]string{"file id": fileID, "language": language, "key": key, "source": source}); err != nil {
		return nil, err
	}

	var out model.SingleReview
	err := c.post(ctx, fmt.Sprintf("/api/review/%s/%s/review-single",
		url.PathEscape(fileID), url.PathEscape(language)),
		map[string]any{"key": key, "source": source, "translation": translation}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(result).Post(path)
	if err != nil {
		return common.WrapRequestError(err)
	}
	if resp.IsError() {
		return responseError(resp)
	}
	return nil
}

func responseError(resp *resty.Response) error {
	detail := strings.TrimSpace(resp.String())
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Detail != "" {
		detail = body.Detail
	}
	if detail == "" {
		detail = resp.Status()
	}
	return common.NewRequestError(resp.StatusCode(), detail)
}

func requireFields(fields map[string]string) error {
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			return common.NewValidationError(name, "must not be empty")
		}
	}
	return nil
}

// Ensure Client implements the remote service contract.
var _ service.RemoteService = (*Client)(nil)
