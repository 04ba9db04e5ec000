// Package analysis talks to the external compatibility-scoring service. The
// core only forwards requests and caches responses; it never scores anything
// itself.
package analysis

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// Client posts scoring requests over HTTP and caches results in the shared
// key-value store so repeated button taps reuse the verdict.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	kv       ports.KeyValueStore
	cacheTTL time.Duration
}

var _ ports.Analyzer = (*Client)(nil)

// NewClient creates a reusable HTTP client; kv may be nil to disable caching.
func NewClient(endpoint, apiKey string, kv ports.KeyValueStore, cacheTTL time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
		kv:       kv,
		cacheTTL: cacheTTL,
	}
}

// Score forwards the request and returns the collaborator's verdict.
func (c *Client) Score(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	key := cacheKey(req)

	if c.kv != nil {
		if raw, ok, err := c.kv.Get(ctx, key); err == nil && ok {
			var cached domain.AnalysisResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var result domain.AnalysisResult
	if err := c.post(ctx, "/score", req, &result); err != nil {
		return domain.AnalysisResult{}, err
	}

	if c.kv != nil {
		if raw, err := json.Marshal(result); err == nil {
			_ = c.kv.Set(ctx, key, raw, c.cacheTTL)
		}
	}
	return result, nil
}

func cacheKey(req domain.AnalysisRequest) string {
	h := sha256.New()
	h.Write([]byte(req.DocumentRef))
	h.Write([]byte{0})
	h.Write([]byte(req.CompanyProfile))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(req.Keywords, ",")))
	return "analysis:" + hex.EncodeToString(h.Sum(nil))
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
