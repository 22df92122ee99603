// Package fhirserver is the HTTP client for the FHIR R4 server that holds
// the patient records.
package fhirserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinctx/internal/fhir/r4"
	"github.com/drfirst/go-clinctx/pkg/circuitbreaker"
)

const fhirJSON = "application/fhir+json"

// maxResponseBytes bounds a single response body.
const maxResponseBytes = 64 << 20

var ErrNotTransaction = errors.New("bundle is not a transaction or batch")

// Config holds client configuration
type Config struct {
	BaseURL  string
	PageSize int
	MaxPages int
	Timeout  time.Duration
}

// DefaultConfig returns defaults for a local HAPI server
func DefaultConfig() Config {
	return Config{
		BaseURL:  "http://localhost:8080/fhir",
		PageSize: 100,
		MaxPages: 50,
		Timeout:  30 * time.Second,
	}
}

// BreakerConfig returns breaker settings where client errors (4xx) do not
// count against the server's health.
func BreakerConfig() circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig("fhir")
	cfg.IsSuccessful = func(err error) bool {
		var se *StatusError
		if errors.As(err, &se) {
			return se.StatusCode < http.StatusInternalServerError
		}
		return err == nil
	}
	return cfg
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Outcome    *r4.OperationOutcome
	Body       string
}

func (e *StatusError) Error() string {
	detail := e.Body
	if e.Outcome != nil && len(e.Outcome.Issue) > 0 {
		detail = e.Outcome.Summary()
	}
	if len(detail) > 200 {
		detail = detail[:200] + "..."
	}
	return fmt.Sprintf("fhir %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, detail)
}

// IsNotFound reports whether err is a 404 or 410 from the server.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusGone)
}

// Client talks to a FHIR R4 server
type Client struct {
	base    *url.URL
	config  Config
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
	tracer  trace.Tracer
}

// New creates a new client. A nil breaker calls the server directly.
func New(cfg Config, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid FHIR base url %q", cfg.BaseURL)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultConfig().MaxPages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	return &Client{
		base:    base,
		config:  cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
		tracer:  otel.Tracer("fhir-client"),
	}, nil
}

// BaseURL returns the server base
func (c *Client) BaseURL() string { return c.base.String() }

// Read retrieves a resource by type and id
func (c *Client) Read(ctx context.Context, resourceType, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, fmt.Errorf("read %s: empty id", resourceType)
	}
	return c.do(ctx, http.MethodGet, c.resolve(resourceType+"/"+url.PathEscape(id)), nil, nil)
}

// GetPatient retrieves and decodes a Patient
func (c *Client) GetPatient(ctx context.Context, id string) (*r4.Patient, error) {
	raw, err := c.Read(ctx, r4.TypePatient, id)
	if err != nil {
		return nil, err
	}
	var p r4.Patient
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode patient %s: %w", id, err)
	}
	if p.ResourceType != r4.TypePatient {
		return nil, fmt.Errorf("patient %s: server returned %q", id, p.ResourceType)
	}
	return &p, nil
}

// ListPatients returns up to count patients from the first search page
func (c *Client) ListPatients(ctx context.Context, count int) ([]r4.Patient, error) {
	if count <= 0 {
		count = c.config.PageSize
	}
	params := url.Values{"_count": {strconv.Itoa(count)}, "_sort": {"family"}}
	bundle, err := c.searchPage(ctx, c.resolve(r4.TypePatient)+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	patients := make([]r4.Patient, 0, len(bundle.Entry))
	for _, e := range bundle.Entry {
		var p r4.Patient
		if err := json.Unmarshal(e.Resource, &p); err != nil || p.ResourceType != r4.TypePatient {
			continue
		}
		patients = append(patients, p)
	}
	return patients, nil
}

// SearchByPatient returns every resource of a type for a patient, following
// next links until they run out or MaxPages is reached. extra may add
// search parameters such as _include.
func (c *Client) SearchByPatient(ctx context.Context, resourceType, patientID string, extra url.Values) ([]json.RawMessage, error) {
	params := url.Values{}
	for k, v := range extra {
		params[k] = append([]string(nil), v...)
	}
	params.Set("patient", patientID)
	return c.Search(ctx, resourceType, params)
}

// Search runs a paged search and returns the raw entry resources
func (c *Client) Search(ctx context.Context, resourceType string, params url.Values) ([]json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "fhir_search",
		trace.WithAttributes(attribute.String("fhir.resource_type", resourceType)))
	defer span.End()

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	if q.Get("_count") == "" {
		q.Set("_count", strconv.Itoa(c.config.PageSize))
	}

	next := c.resolve(resourceType) + "?" + q.Encode()
	seen := make(map[string]bool)
	var out []json.RawMessage

	for page := 0; next != ""; page++ {
		if page >= c.config.MaxPages {
			c.logger.Warn("search page limit reached",
				zap.String("resource_type", resourceType),
				zap.Int("max_pages", c.config.MaxPages),
				zap.Int("resources", len(out)))
			break
		}
		if seen[next] {
			break
		}
		seen[next] = true

		bundle, err := c.searchPage(ctx, next)
		if err != nil {
			span.RecordError(err)
			return out, err
		}
		for _, e := range bundle.Entry {
			if len(e.Resource) == 0 {
				continue
			}
			if e.Search != nil && e.Search.Mode == "outcome" {
				continue
			}
			out = append(out, e.Resource)
		}
		next = c.followLink(bundle.NextLink())
	}

	span.SetAttributes(attribute.Int("fhir.results", len(out)))
	return out, nil
}

func (c *Client) searchPage(ctx context.Context, u string) (*r4.Bundle, error) {
	raw, err := c.do(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, err
	}
	var bundle r4.Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("decode search bundle: %w", err)
	}
	if bundle.ResourceType != r4.TypeBundle {
		return nil, fmt.Errorf("search returned %q, want Bundle", bundle.ResourceType)
	}
	return &bundle, nil
}

// followLink resolves relative next links against the base.
func (c *Client) followLink(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	dir := *c.base
	dir.Path += "/"
	return dir.ResolveReference(u).String()
}

// Create posts a resource and returns the server's representation
func (c *Client) Create(ctx context.Context, resourceType string, resource interface{}) (json.RawMessage, error) {
	return c.CreateIfNoneExist(ctx, resourceType, resource, "")
}

// CreateIfNoneExist posts a resource unless one matching the search query
// already exists, in which case the server answers with the match. An empty
// query is a plain create.
func (c *Client) CreateIfNoneExist(ctx context.Context, resourceType string, resource interface{}, query string) (json.RawMessage, error) {
	body, err := json.Marshal(resource)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", resourceType, err)
	}
	var header http.Header
	if query != "" {
		header = http.Header{"If-None-Exist": []string{query}}
	}
	return c.do(ctx, http.MethodPost, c.resolve(resourceType), body, header)
}

// PostBundle submits a transaction or batch bundle to the server base
func (c *Client) PostBundle(ctx context.Context, bundle json.RawMessage) (*r4.Bundle, error) {
	var head struct {
		ResourceType string `json:"resourceType"`
		Type         string `json:"type"`
	}
	if err := json.Unmarshal(bundle, &head); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if head.ResourceType != r4.TypeBundle || (head.Type != "transaction" && head.Type != "batch") {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotTransaction, head.ResourceType, head.Type)
	}

	raw, err := c.do(ctx, http.MethodPost, c.base.String(), bundle, nil)
	if err != nil {
		return nil, err
	}
	var resp r4.Bundle
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode transaction response: %w", err)
	}
	return &resp, nil
}

func (c *Client) resolve(path string) string {
	return c.base.String() + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, header http.Header) (json.RawMessage, error) {
	call := func(ctx context.Context) (json.RawMessage, error) {
		return c.roundTrip(ctx, method, u, body, header)
	}
	if c.breaker == nil {
		return call(ctx)
	}
	return circuitbreaker.Do(ctx, c.breaker, call)
}

func (c *Client) roundTrip(ctx context.Context, method, u string, body []byte, header http.Header) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", fhirJSON)
	if body != nil {
		req.Header.Set("Content-Type", fhirJSON)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fhir %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("fhir request",
		zap.String("method", method),
		zap.String("url", u),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Method: method, URL: u, StatusCode: resp.StatusCode, Body: string(data)}
		var outcome r4.OperationOutcome
		if json.Unmarshal(data, &outcome) == nil && outcome.ResourceType == r4.TypeOperationOutcome {
			se.Outcome = &outcome
		}
		return nil, se
	}

	return data, nil
}
