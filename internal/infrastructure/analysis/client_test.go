package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"TenderWatch/internal/domain"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string][]byte{}}
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; exists {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestScoreForwardsRequestWithAuth(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotReq domain.AnalysisRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/score" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(domain.AnalysisResult{Score: 7.2, Level: "media", Explanation: "parcial"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key-1", nil, 0)
	result, err := c.Score(context.Background(), domain.AnalysisRequest{
		DocumentRef:    "sha",
		DocumentText:   "texto del documento",
		CompanyProfile: "constructora",
		Keywords:       []string{"obra"},
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.Score != 7.2 || result.Level != "media" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if gotAuth != "Bearer key-1" {
		t.Fatalf("missing bearer auth: %q", gotAuth)
	}
	if gotReq.CompanyProfile != "constructora" || gotReq.DocumentText == "" {
		t.Fatalf("request not forwarded: %+v", gotReq)
	}
}

func TestScoreCachesVerdict(t *testing.T) {
	t.Parallel()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(domain.AnalysisResult{Score: 9})
	}))
	defer server.Close()

	c := NewClient(server.URL, "", newMemoryStore(), time.Minute)
	req := domain.AnalysisRequest{DocumentRef: "sha", CompanyProfile: "p", Keywords: []string{"k"}}
	ctx := context.Background()

	if _, err := c.Score(ctx, req); err != nil {
		t.Fatalf("first score: %v", err)
	}
	result, err := c.Score(ctx, req)
	if err != nil {
		t.Fatalf("second score: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cached verdict, got %d upstream calls", calls)
	}
	if result.Score != 9 {
		t.Fatalf("cached result differs: %+v", result)
	}

	// A different profile is a different cache entry.
	other := req
	other.CompanyProfile = "otra"
	if _, err := c.Score(ctx, other); err != nil {
		t.Fatalf("third score: %v", err)
	}
	if calls != 2 {
		t.Fatalf("distinct request must reach upstream, got %d calls", calls)
	}
}

func TestScoreSurfacesUpstreamFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", nil, 0)
	if _, err := c.Score(context.Background(), domain.AnalysisRequest{}); err == nil {
		t.Fatalf("expected upstream failure to surface")
	}
}
