package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "text"
	fieldCreatedTS   = "created_ts"
)

// payloadIndexes are created with the collection so filters and ordering
// do not scan every point.
var payloadIndexes = []struct {
	field  string
	schema string
}{
	{domain.FieldStatus, "keyword"},
	{domain.FieldLoanType, "keyword"},
	{domain.FieldCustomerName, "text"},
	{domain.FieldAmount, "float"},
	{domain.FieldRiskScore, "float"},
	{fieldCreatedTS, "integer"},
}

type Client struct {
	baseURL    string
	collection string
	vectorDim  int
	httpClient *http.Client

	ensureMu sync.Mutex
	ensured  bool
}

// New builds a client for one collection. vectorDim enables the dense
// vector; zero leaves the collection with the sparse text vector only.
func New(baseURL, collection string, vectorDim int) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		vectorDim:  vectorDim,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

// EnsureCollection creates the collection and its payload indexes once per
// client. An existing collection is accepted as is.
func (c *Client) EnsureCollection(ctx context.Context) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensured {
		return nil
	}

	vectors := map[string]any{}
	if c.vectorDim > 0 {
		vectors[denseVectorName] = map[string]any{"size": c.vectorDim, "distance": "Cosine"}
	}
	body := map[string]any{
		"vectors":        vectors,
		"sparse_vectors": map[string]any{sparseVectorName: map[string]any{}},
	}
	status, err := c.do(ctx, http.MethodPut, c.collectionPath(""), body, nil)
	if err != nil && status != http.StatusConflict && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}

	for _, idx := range payloadIndexes {
		indexBody := map[string]any{"field_name": idx.field, "field_schema": idx.schema}
		if _, err := c.do(ctx, http.MethodPut, c.collectionPath("/index?wait=true"), indexBody, nil); err != nil {
			return fmt.Errorf("qdrant create payload index %s: %w", idx.field, err)
		}
	}
	c.ensured = true
	return nil
}

func (c *Client) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, suffix)
}

// do sends a JSON request and decodes the "result" envelope into out. The
// returned status is zero when the request never got a response.
func (c *Client) do(ctx context.Context, method, url string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, domain.WrapError(domain.ErrBackendUnavailable, "qdrant request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("qdrant status: %s", resp.Status)
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			err = fmt.Errorf("qdrant status: %s: %s", resp.Status, msg)
		}
		if resp.StatusCode >= 500 {
			err = domain.WrapError(domain.ErrBackendUnavailable, "qdrant request", err)
		}
		return resp.StatusCode, err
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode result: %w", err)
	}
	return resp.StatusCode, nil
}
