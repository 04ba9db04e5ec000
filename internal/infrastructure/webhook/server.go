// Package webhook hosts the inbound HTTP surface: channel button callbacks,
// health and metrics.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"TenderWatch/internal/documents"
	"TenderWatch/internal/domain"
	"TenderWatch/internal/metrics"
	"TenderWatch/internal/notify"
	"TenderWatch/internal/ports"
)

// DocumentProvider guarantees a verified local copy of an attachment.
type DocumentProvider interface {
	EnsureLocal(ctx context.Context, meta domain.AttachmentMeta, itemID string) (*domain.StoredDocument, error)
}

// Server handles inbound callbacks. Expensive actions run under a short-TTL
// exclusive lock per (recipient, action), so a double-tap or webhook retry
// never duplicates an analysis or download.
type Server struct {
	kv          ports.KeyValueStore
	lockTTL     time.Duration
	docs        DocumentProvider
	analyzer    ports.Analyzer
	channel     ports.Channel
	subscribers ports.SubscriberRepository
	collector   *metrics.Collector
	logger      *slog.Logger
}

// NewServer wires the callback dependencies.
func NewServer(
	kv ports.KeyValueStore,
	lockTTL time.Duration,
	docs DocumentProvider,
	analyzer ports.Analyzer,
	channel ports.Channel,
	subscribers ports.SubscriberRepository,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = 90 * time.Second
	}
	return &Server{
		kv:          kv,
		lockTTL:     lockTTL,
		docs:        docs,
		analyzer:    analyzer,
		channel:     channel,
		subscribers: subscribers,
		collector:   collector,
		logger:      logger,
	}
}

// Router builds the chi router with all inbound routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhook/telegram", s.handleTelegram)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.collector != nil {
		r.Method(http.MethodGet, "/metrics", s.collector.Handler())
	}
	return r
}

// telegramUpdate carries the subset of the bot API update we consume.
type telegramUpdate struct {
	CallbackQuery *struct {
		ID      string `json:"id"`
		Data    string `json:"data"`
		Message *struct {
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"callback_query"`
}

// handleTelegram dispatches inline-button callbacks. The portal work happens
// inside the request; Telegram retries are absorbed by the action lock.
func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "malformed update", http.StatusBadRequest)
		return
	}
	// Updates without a button callback are acknowledged and ignored.
	if update.CallbackQuery == nil || update.CallbackQuery.Message == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	recipient := strconv.FormatInt(update.CallbackQuery.Message.Chat.ID, 10)
	token, err := notify.ParseToken(update.CallbackQuery.Data)
	if err != nil {
		s.logger.Warn("unusable callback token", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	s.handleAction(r.Context(), recipient, token)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAction(ctx context.Context, recipient string, token notify.Token) {
	lockKey := fmt.Sprintf("lock:%s:%s", recipient, token.Action)
	won, err := s.kv.SetNX(ctx, lockKey, []byte(token.ItemID), s.lockTTL)
	if err != nil {
		s.logger.Error("action lock failed", "error", err)
		return
	}
	if !won {
		s.reply(ctx, recipient, "Ya hay una operación en curso, espera un momento.")
		return
	}
	defer func() {
		if err := s.kv.Delete(ctx, lockKey); err != nil {
			s.logger.Warn("action lock release failed", "error", err)
		}
	}()

	switch token.Action {
	case notify.ActionAnalyze:
		s.analyze(ctx, recipient, token)
	case notify.ActionDownload:
		s.download(ctx, recipient, token)
	}
}

func (s *Server) analyze(ctx context.Context, recipient string, token notify.Token) {
	doc, err := s.ensureDocument(ctx, token)
	if err != nil {
		s.logger.Warn("analyze: document unavailable", slog.String("item", token.ItemID), "error", err)
		s.reply(ctx, recipient, "No se pudo obtener el documento para el análisis.")
		return
	}

	text, err := documents.ExtractText(doc)
	if err != nil {
		s.logger.Warn("analyze: extraction failed", slog.String("item", token.ItemID), "error", err)
		s.reply(ctx, recipient, "El documento no se pudo leer para el análisis.")
		return
	}

	profile, keywords := s.subscriberContext(ctx, recipient)
	result, err := s.analyzer.Score(ctx, domain.AnalysisRequest{
		DocumentRef:    doc.SHA256,
		DocumentText:   text,
		CompanyProfile: profile,
		Keywords:       keywords,
	})
	if err != nil {
		s.logger.Warn("analyze: scoring failed", slog.String("item", token.ItemID), "error", err)
		s.reply(ctx, recipient, "El servicio de análisis no está disponible, intenta más tarde.")
		return
	}

	s.reply(ctx, recipient, fmt.Sprintf(
		"Análisis de compatibilidad\nPuntaje: %.1f (%s)\n%s",
		result.Score, result.Level, result.Explanation,
	))
}

func (s *Server) download(ctx context.Context, recipient string, token notify.Token) {
	doc, err := s.ensureDocument(ctx, token)
	if err != nil {
		s.logger.Warn("download: document unavailable", slog.String("item", token.ItemID), "error", err)
		s.reply(ctx, recipient, "No se pudo descargar el documento.")
		return
	}

	outcome := s.channel.SendDocument(ctx, recipient, doc.Path, doc.DisplayName)
	if !outcome.Success {
		s.logger.Warn("download: delivery failed", slog.String("item", token.ItemID), slog.String("message", outcome.Message))
		s.reply(ctx, recipient, "No se pudo enviar el documento.")
	}
}

func (s *Server) ensureDocument(ctx context.Context, token notify.Token) (*domain.StoredDocument, error) {
	meta := domain.AttachmentMeta{AttachmentID: token.AttachmentID, Name: token.Slug}
	return s.docs.EnsureLocal(ctx, meta, token.ItemID)
}

// subscriberContext finds the profile and keywords registered for the
// recipient; missing subscribers degrade to an empty context.
func (s *Server) subscriberContext(ctx context.Context, recipient string) (string, []string) {
	subs, err := s.subscribers.ActiveSubscribers(ctx)
	if err != nil {
		s.logger.Warn("subscriber lookup failed", "error", err)
		return "", nil
	}
	for _, sub := range subs {
		if sub.RecipientID() == recipient {
			return sub.CompanyProfile(), sub.Keywords()
		}
	}
	return "", nil
}

func (s *Server) reply(ctx context.Context, recipient, text string) {
	outcome := s.channel.Send(ctx, domain.Message{Recipient: recipient, Text: text})
	if !outcome.Success {
		s.logger.Warn("callback reply failed", slog.String("message", outcome.Message))
	}
}
