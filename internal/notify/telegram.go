package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramChannel sends messages and documents via the Telegram bot API.
// The API is rate limited upstream, so sends pass through a local limiter.
type TelegramChannel struct {
	botToken string
	apiBase  string
	client   *http.Client
	limiter  *rate.Limiter
}

var _ ports.Channel = (*TelegramChannel)(nil)

// NewTelegramChannel registers the bot token; ratePerSecond bounds outbound
// calls (Telegram allows bursts but throttles sustained traffic).
func NewTelegramChannel(botToken string, ratePerSecond float64) *TelegramChannel {
	if ratePerSecond <= 0 {
		ratePerSecond = 0.5
	}
	return &TelegramChannel{
		botToken: botToken,
		apiBase:  telegramAPIBase,
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(ratePerSecond), 1),
	}
}

// SetAPIBase overrides the API host; used by tests.
func (t *TelegramChannel) SetAPIBase(base string) { t.apiBase = base }

// Kind implements ports.Channel.
func (t *TelegramChannel) Kind() domain.ChannelKind { return domain.ChannelTelegram }

// Send posts a message, attaching the buttons as an inline keyboard.
func (t *TelegramChannel) Send(ctx context.Context, msg domain.Message) domain.SendOutcome {
	if t.botToken == "" {
		return domain.SendOutcome{Message: "telegram channel misconfigured"}
	}

	form := url.Values{}
	form.Set("chat_id", msg.Recipient)
	form.Set("text", msg.Text)

	if len(msg.Buttons) > 0 {
		type inlineButton struct {
			Text         string `json:"text"`
			CallbackData string `json:"callback_data"`
		}
		row := make([]inlineButton, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			row = append(row, inlineButton{Text: b.Label, CallbackData: b.Token})
		}
		markup, err := json.Marshal(map[string]any{"inline_keyboard": [][]inlineButton{row}})
		if err == nil {
			form.Set("reply_markup", string(markup))
		}
	}

	return t.post(ctx, "sendMessage", form)
}

// SendDocument uploads a local file to the recipient.
func (t *TelegramChannel) SendDocument(ctx context.Context, recipient, path, caption string) domain.SendOutcome {
	if t.botToken == "" {
		return domain.SendOutcome{Message: "telegram channel misconfigured"}
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.SendOutcome{Message: fmt.Sprintf("open document: %v", err)}
	}
	defer file.Close()

	var body strings.Builder
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("chat_id", recipient)
	if caption != "" {
		_ = writer.WriteField("caption", caption)
	}
	part, err := writer.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return domain.SendOutcome{Message: fmt.Sprintf("build upload: %v", err)}
	}
	if _, err := io.Copy(part, file); err != nil {
		return domain.SendOutcome{Message: fmt.Sprintf("copy document: %v", err)}
	}
	if err := writer.Close(); err != nil {
		return domain.SendOutcome{Message: fmt.Sprintf("finish upload: %v", err)}
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return domain.SendOutcome{Message: err.Error()}
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendDocument", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body.String()))
	if err != nil {
		return domain.SendOutcome{Message: fmt.Sprintf("new request: %v", err)}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return t.execute(req)
}

func (t *TelegramChannel) post(ctx context.Context, method string, form url.Values) domain.SendOutcome {
	if err := t.limiter.Wait(ctx); err != nil {
		return domain.SendOutcome{Message: err.Error()}
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.SendOutcome{Message: fmt.Sprintf("new request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return t.execute(req)
}

func (t *TelegramChannel) execute(req *http.Request) domain.SendOutcome {
	resp, err := t.client.Do(req)
	if err != nil {
		return domain.SendOutcome{Message: fmt.Sprintf("do request: %v", err)}
	}
	defer resp.Body.Close()

	var apiResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return domain.SendOutcome{Message: fmt.Sprintf("decode response: %v", err)}
	}
	if !apiResp.OK {
		msg := apiResp.Description
		if msg == "" {
			msg = resp.Status
		}
		return domain.SendOutcome{Message: msg}
	}
	return domain.SendOutcome{Success: true, Message: "delivered"}
}
