// Package fusion is a minimal Oracle Fusion Procurement REST client covering
// the suppliers resource.
package fusion

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
	"time"
)

const (
	suppliersPath        = "/fscmRestApi/resources/11.13.18.05/suppliers"
	maxResponseSizeBytes = 1 << 20
)

type Config struct {
	BaseURL  string        `split_words:"true" required:"true"`
	Username string        `split_words:"true" required:"true"`
	Password string        `split_words:"true" required:"true"`
	Timeout  time.Duration `split_words:"true" default:"30s"`
}

// Client talks to one Fusion pod with basic auth.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("fusion base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid fusion base url: %w", err)
	}
	if strings.TrimSpace(cfg.Username) == "" || cfg.Password == "" {
		return nil, errors.New("fusion credentials are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:  baseURL,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// CreateResult is the raw outcome of a supplier create call.
type CreateResult struct {
	StatusCode     int
	SupplierID     string
	SupplierNumber string
	Body           string
}

// Created reports whether Fusion accepted the record.
func (r CreateResult) Created() bool {
	return r.StatusCode == http.StatusCreated
}

// CreateSupplier posts one supplier payload. Non-2xx statuses are returned in
// the result, not as an error; errors mean the call itself did not complete.
func (c *Client) CreateSupplier(ctx context.Context, payload map[string]string) (CreateResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return CreateResult{}, fmt.Errorf("marshal supplier payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+suppliersPath, bytes.NewReader(body))
	if err != nil {
		return CreateResult{}, fmt.Errorf("build supplier request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CreateResult{}, fmt.Errorf("execute supplier request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return CreateResult{}, fmt.Errorf("read supplier response: %w", err)
	}

	result := CreateResult{
		StatusCode: resp.StatusCode,
		Body:       string(raw),
	}
	if result.Created() {
		var created struct {
			SupplierID     json.Number `json:"SupplierId"`
			SupplierNumber json.Number `json:"SupplierNumber"`
		}
		if err := json.Unmarshal(raw, &created); err != nil {
			return result, fmt.Errorf("decode supplier response: %w", err)
		}
		result.SupplierID = created.SupplierID.String()
		result.SupplierNumber = created.SupplierNumber.String()
	}
	return result, nil
}
