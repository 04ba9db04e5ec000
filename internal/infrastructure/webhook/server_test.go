package webhook

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
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

type fakeDocs struct {
	doc   *domain.StoredDocument
	err   error
	calls int
}

func (f *fakeDocs) EnsureLocal(context.Context, domain.AttachmentMeta, string) (*domain.StoredDocument, error) {
	f.calls++
	return f.doc, f.err
}

type fakeAnalyzer struct {
	result  domain.AnalysisResult
	err     error
	lastReq domain.AnalysisRequest
}

func (f *fakeAnalyzer) Score(_ context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	f.lastReq = req
	return f.result, f.err
}

type fakeChannel struct {
	mu       sync.Mutex
	sent     []domain.Message
	docPaths []string
}

func (f *fakeChannel) Kind() domain.ChannelKind { return domain.ChannelTelegram }

func (f *fakeChannel) Send(_ context.Context, msg domain.Message) domain.SendOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return domain.SendOutcome{Success: true}
}

func (f *fakeChannel) SendDocument(_ context.Context, _, path, _ string) domain.SendOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docPaths = append(f.docPaths, path)
	return domain.SendOutcome{Success: true}
}

type fakeSubscriber struct {
	recipient string
	profile   string
	keywords  []string
}

func (f fakeSubscriber) ID() string                  { return f.recipient }
func (f fakeSubscriber) RecipientID() string         { return f.recipient }
func (f fakeSubscriber) Channel() domain.ChannelKind { return domain.ChannelTelegram }
func (f fakeSubscriber) Keywords() []string          { return f.keywords }
func (f fakeSubscriber) NotifyAll() bool             { return false }
func (f fakeSubscriber) CompanyProfile() string      { return f.profile }

type fakeSubscriberRepo struct {
	subs []domain.Subscriber
}

func (f *fakeSubscriberRepo) ActiveSubscribers(context.Context) ([]domain.Subscriber, error) {
	return f.subs, nil
}

func callbackBody(chatID int64, data string) string {
	return fmt.Sprintf(`{"callback_query":{"id":"cb1","data":"%s","message":{"chat":{"id":%d}}}}`, data, chatID)
}

func postCallback(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func newTestServer(docs *fakeDocs, analyzer *fakeAnalyzer, channel *fakeChannel, subs []domain.Subscriber) *Server {
	return NewServer(
		newMemoryStore(),
		time.Minute,
		docs,
		analyzer,
		channel,
		&fakeSubscriberRepo{subs: subs},
		nil,
		nil,
	)
}

func localDoc(t *testing.T) *domain.StoredDocument {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("objeto del proceso"), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	return &domain.StoredDocument{ID: "rec", AttachmentID: 55, ItemID: "101", DisplayName: "TDR", Path: path}
}

func TestAnalyzeCallbackRepliesWithScore(t *testing.T) {
	t.Parallel()

	docs := &fakeDocs{doc: localDoc(t)}
	analyzer := &fakeAnalyzer{result: domain.AnalysisResult{Score: 8.5, Level: "alta", Explanation: "buen encaje"}}
	channel := &fakeChannel{}
	sub := fakeSubscriber{recipient: "12345", profile: "constructora vial", keywords: []string{"obra"}}
	srv := newTestServer(docs, analyzer, channel, []domain.Subscriber{sub})

	rec := postCallback(t, srv.Router(), callbackBody(12345, "analyze_101_55_tdr"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	if docs.calls != 1 {
		t.Fatalf("expected one document fetch, got %d", docs.calls)
	}
	if analyzer.lastReq.CompanyProfile != "constructora vial" {
		t.Fatalf("subscriber profile not forwarded: %+v", analyzer.lastReq)
	}
	if analyzer.lastReq.DocumentText == "" {
		t.Fatalf("extracted text not forwarded")
	}
	if len(channel.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(channel.sent))
	}
	reply := channel.sent[0]
	if reply.Recipient != "12345" {
		t.Fatalf("reply went to %s", reply.Recipient)
	}
	if !strings.Contains(reply.Text, "8.5") || !strings.Contains(reply.Text, "alta") {
		t.Fatalf("score missing from reply: %q", reply.Text)
	}
}

func TestDownloadCallbackDeliversDocument(t *testing.T) {
	t.Parallel()

	doc := localDoc(t)
	channel := &fakeChannel{}
	srv := newTestServer(&fakeDocs{doc: doc}, &fakeAnalyzer{}, channel, nil)

	rec := postCallback(t, srv.Router(), callbackBody(12345, "download_101_55_tdr"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if len(channel.docPaths) != 1 || channel.docPaths[0] != doc.Path {
		t.Fatalf("document not delivered: %v", channel.docPaths)
	}
}

func TestActionLockRejectsConcurrentDuplicate(t *testing.T) {
	t.Parallel()

	kv := newMemoryStore()
	channel := &fakeChannel{}
	srv := NewServer(kv, time.Minute, &fakeDocs{doc: localDoc(t)}, &fakeAnalyzer{}, channel, &fakeSubscriberRepo{}, nil, nil)

	// Simulate an in-flight action holding the lock.
	if _, err := kv.SetNX(context.Background(), "lock:12345:analyze", []byte("101"), time.Minute); err != nil {
		t.Fatalf("prime lock: %v", err)
	}

	rec := postCallback(t, srv.Router(), callbackBody(12345, "analyze_101_55_tdr"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if len(channel.sent) != 1 || !strings.Contains(channel.sent[0].Text, "en curso") {
		t.Fatalf("expected busy reply, got %+v", channel.sent)
	}
}

func TestActionLockReleasedAfterCompletion(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{}
	srv := newTestServer(&fakeDocs{doc: localDoc(t)}, &fakeAnalyzer{}, channel, nil)
	router := srv.Router()

	postCallback(t, router, callbackBody(12345, "download_101_55_tdr"))
	postCallback(t, router, callbackBody(12345, "download_101_55_tdr"))

	if len(channel.docPaths) != 2 {
		t.Fatalf("sequential actions must both run, got %d deliveries", len(channel.docPaths))
	}
}

func TestMalformedUpdatesAreAbsorbed(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{}
	srv := newTestServer(&fakeDocs{}, &fakeAnalyzer{}, channel, nil)
	router := srv.Router()

	if rec := postCallback(t, router, "{not json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("broken json: got %d", rec.Code)
	}
	if rec := postCallback(t, router, `{"message":{"text":"hola"}}`); rec.Code != http.StatusOK {
		t.Fatalf("non-callback update: got %d", rec.Code)
	}
	if rec := postCallback(t, router, callbackBody(1, "unknown_1_2_x")); rec.Code != http.StatusOK {
		t.Fatalf("unknown action: got %d", rec.Code)
	}
	if len(channel.sent) != 0 {
		t.Fatalf("absorbed updates must not produce replies: %+v", channel.sent)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeDocs{}, &fakeAnalyzer{}, &fakeChannel{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}
