package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

const maxObjectChars = 400

// Dispatcher builds channel-specific payloads, performs the send through the
// registered adapter and writes a SendRecord for every attempt.
type Dispatcher struct {
	registry  *Registry
	records   ports.SendRecordRepository
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
}

// NewDispatcher wires the channel registry and the audit repository.
func NewDispatcher(registry *Registry, records ports.SendRecordRepository, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:  registry,
		records:   records,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}
}

// Dispatch sends one notification and records the outcome. Failures never
// abort the caller: they come back in the outcome and the audit record.
// The returned error covers only audit persistence.
func (d *Dispatcher) Dispatch(ctx context.Context, sub domain.Subscriber, item domain.ListingItem, att domain.AttachmentMeta, matched []string) (domain.SendOutcome, error) {
	outcome := d.send(ctx, sub, item, att, matched)

	rec := domain.SendRecord{
		ItemID:          item.Identifier(),
		SubscriberID:    sub.ID(),
		Channel:         sub.Channel(),
		MatchedKeywords: matched,
		Message:         outcome.Message,
		SentAt:          time.Now(),
	}
	if outcome.Success {
		rec.Status = domain.SendStatusSent
	} else {
		rec.Status = domain.SendStatusFailed
	}

	if err := d.records.Record(ctx, rec); err != nil {
		return outcome, fmt.Errorf("record send outcome: %w", err)
	}

	if rec.Status == domain.SendStatusFailed {
		if failed, err := d.records.FailedSendsForItem(ctx, rec.ItemID); err == nil && failed > 1 {
			d.logger.Warn("item accumulating failed deliveries",
				slog.String("item", rec.ItemID),
				slog.Int("failed_sends", failed),
			)
		}
	}
	return outcome, nil
}

func (d *Dispatcher) send(ctx context.Context, sub domain.Subscriber, item domain.ListingItem, att domain.AttachmentMeta, matched []string) domain.SendOutcome {
	ch, err := d.registry.Resolve(sub.Channel())
	if err != nil {
		return domain.SendOutcome{Message: err.Error()}
	}

	msg := domain.Message{
		Recipient: sub.RecipientID(),
		Text:      d.buildText(item, matched),
	}
	if !att.IsSentinel() {
		itemID := item.Identifier()
		msg.Buttons = []domain.Button{
			{Label: "Analizar", Token: BuildToken(ActionAnalyze, itemID, att.AttachmentID, att.Name)},
			{Label: "Descargar", Token: BuildToken(ActionDownload, itemID, att.AttachmentID, att.Name)},
		}
	}

	outcome := ch.Send(ctx, msg)
	if !outcome.Success {
		d.logger.Warn("notification send failed",
			slog.String("subscriber", sub.ID()),
			slog.String("channel", string(sub.Channel())),
			slog.String("item", item.Identifier()),
			slog.String("message", outcome.Message),
		)
	}
	return outcome
}

// buildText renders the channel-independent notification body. Upstream text
// can carry HTML fragments; they are stripped before delivery.
func (d *Dispatcher) buildText(item domain.ListingItem, matched []string) string {
	object := d.sanitizer.Sanitize(item.Object)
	if runes := []rune(object); len(runes) > maxObjectChars {
		object = string(runes[:maxObjectChars]) + "…"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Nuevo proceso: %s\n", strings.TrimSpace(item.ProcessCode))
	fmt.Fprintf(&b, "Entidad: %s\n", d.sanitizer.Sanitize(item.EntityName))
	if item.Category != "" {
		fmt.Fprintf(&b, "Categoría: %s\n", d.sanitizer.Sanitize(item.Category))
	}
	if object != "" {
		fmt.Fprintf(&b, "Objeto: %s\n", object)
	}
	if item.QuotationEnd != "" {
		fmt.Fprintf(&b, "Cierre de cotización: %s\n", item.QuotationEnd)
	}
	if len(matched) > 0 {
		fmt.Fprintf(&b, "Palabras clave: %s\n", strings.Join(matched, ", "))
	}
	return b.String()
}
