// Package portal implements the authenticated client for the upstream
// procurement portal: login, transparent re-authentication, bounded retries
// with jittered backoff and the randomized pacing delay applied between
// scheduled polling runs.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"TenderWatch/internal/config"
	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

const sessionKey = "portal:session"

// session is the credential persisted between calls and processes.
type session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s session) usable() bool {
	return s.Token != "" && time.Until(s.ExpiresAt) > time.Minute
}

// Client talks to the portal. Safe for concurrent use: re-authentication is
// single-flight, so several callers hitting an expired credential trigger one
// login and share the new token.
type Client struct {
	cfg     config.PortalConfig
	http    *http.Client
	kv      ports.KeyValueStore
	logger  *slog.Logger
	observe func(statusCode int)

	authGroup singleflight.Group
}

var _ ports.PortalAPI = (*Client)(nil)

// NewClient wires an HTTP client; httpClient defaults from the config timeout.
func NewClient(cfg config.PortalConfig, kv ports.KeyValueStore, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout.Std()}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, kv: kv, logger: logger}
}

// Observe installs a hook that receives the HTTP status code of every portal
// response. Must be set before the client is shared between goroutines.
func (c *Client) Observe(fn func(statusCode int)) {
	c.observe = fn
}

// Pace sleeps a random interval inside the configured pacing window before a
// scheduled poll, to keep the access pattern irregular. force skips the delay
// for manual and test invocations; cancellation interrupts the sleep.
func (c *Client) Pace(ctx context.Context, minDelay, maxDelay time.Duration, force bool) error {
	if force || maxDelay <= 0 {
		return nil
	}
	if minDelay > maxDelay {
		minDelay = maxDelay
	}
	delay := minDelay
	if span := maxDelay - minDelay; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}

	c.logger.Debug("pacing before poll", slog.Duration("delay", delay))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Listing fetches one page of contracting processes for the year.
func (c *Client) Listing(ctx context.Context, year, page, pageSize int) ([]domain.ListingItem, domain.PageMeta, error) {
	params := url.Values{}
	params.Set("anio", strconv.Itoa(year))
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(pageSize))

	body, err := c.fetch(ctx, "/procesos", params)
	if err != nil {
		return nil, domain.PageMeta{}, err
	}

	var envelope struct {
		Data     []domain.ListingItem `json:"data"`
		Pageable domain.PageMeta      `json:"pageable"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, domain.PageMeta{}, fmt.Errorf("decode listing: %w", err)
	}
	return envelope.Data, envelope.Pageable, nil
}

// Attachments lists the files attached to one item.
func (c *Client) Attachments(ctx context.Context, itemID string) ([]ports.PortalAttachment, error) {
	body, err := c.fetch(ctx, "/procesos/"+url.PathEscape(itemID)+"/archivos", nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []ports.PortalAttachment `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return envelope.Data, nil
}

// Download retrieves the raw attachment bytes plus the upstream content type.
func (c *Client) Download(ctx context.Context, attachmentID int64) ([]byte, string, error) {
	var payload []byte
	var mime string
	err := c.withRetries(ctx, func(token string) error {
		req, err := c.newRequest(ctx, http.MethodGet,
			"/archivos/"+strconv.FormatInt(attachmentID, 10)+"/descarga", nil, token)
		if err != nil {
			return err
		}
		body, header, err := c.do(req)
		if err != nil {
			return err
		}
		payload = body
		mime = header.Get("Content-Type")
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return payload, mime, nil
}

// fetch performs an authenticated GET with the full retry policy.
func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var payload []byte
	err := c.withRetries(ctx, func(token string) error {
		req, err := c.newRequest(ctx, http.MethodGet, path, params, token)
		if err != nil {
			return err
		}
		body, _, err := c.do(req)
		if err != nil {
			return err
		}
		payload = body
		return nil
	})
	return payload, err
}

// withRetries runs call with a valid token, retrying transient failures with
// exponential backoff plus jitter. 401 triggers one single-flight re-auth and
// one retry; other 4xx responses surface immediately.
func (c *Client) withRetries(ctx context.Context, call func(token string) error) error {
	token, err := c.token(ctx, false)
	if err != nil {
		return err
	}

	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	reauthed := false
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return err
			}
		}

		lastErr = call(token)
		if lastErr == nil {
			return nil
		}

		switch {
		case IsUnauthorized(lastErr):
			if reauthed {
				return fmt.Errorf("still unauthorized after re-authentication: %w", lastErr)
			}
			reauthed = true
			token, err = c.token(ctx, true)
			if err != nil {
				return err
			}
			// One immediate retry with the fresh credential.
			attempt--
		case IsPermanent(lastErr):
			return lastErr
		case IsTransient(lastErr):
			c.logger.Warn("portal call failed, will retry",
				slog.Int("attempt", attempt+1),
				slog.String("error", lastErr.Error()),
			)
		default:
			return lastErr
		}
	}
	return fmt.Errorf("portal call exhausted %d attempts: %w", attempts, lastErr)
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	base := c.cfg.BackoffBase.Std()
	if base <= 0 {
		base = time.Second
	}
	delay := base << (attempt - 1)
	delay += time.Duration(rand.Int63n(int64(base)))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// token returns a usable bearer credential, re-authenticating when needed.
// refresh discards whatever is cached first.
func (c *Client) token(ctx context.Context, refresh bool) (string, error) {
	if !refresh {
		if sess, ok := c.loadSession(ctx); ok {
			return sess.Token, nil
		}
	}

	v, err, _ := c.authGroup.Do("login", func() (any, error) {
		// A concurrent caller may have refreshed while we waited.
		if !refresh {
			if sess, ok := c.loadSession(ctx); ok {
				return sess.Token, nil
			}
		}
		sess, err := c.login(ctx)
		if err != nil {
			return "", err
		}
		c.storeSession(ctx, sess)
		return sess.Token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) login(ctx context.Context) (session, error) {
	payload, err := json.Marshal(map[string]string{
		"usuario":    c.cfg.Username,
		"contrasena": c.cfg.Password,
	})
	if err != nil {
		return session{}, fmt.Errorf("marshal login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return session{}, fmt.Errorf("new login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, _, err := c.do(req)
	if err != nil {
		return session{}, fmt.Errorf("login: %w", err)
	}

	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expiracion"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return session{}, fmt.Errorf("decode login response: %w", err)
	}
	if resp.Token == "" {
		return session{}, fmt.Errorf("login returned empty token")
	}
	if resp.ExpiresIn <= 0 {
		resp.ExpiresIn = 3600
	}

	sess := session{Token: resp.Token, ExpiresAt: time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)}
	c.logger.Info("portal login succeeded", slog.Time("expires_at", sess.ExpiresAt))
	return sess, nil
}

func (c *Client) loadSession(ctx context.Context) (session, bool) {
	if c.kv == nil {
		return session{}, false
	}
	raw, ok, err := c.kv.Get(ctx, sessionKey)
	if err != nil || !ok {
		return session{}, false
	}
	var sess session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return session{}, false
	}
	if !sess.usable() {
		return session{}, false
	}
	return sess, true
}

func (c *Client) storeSession(ctx context.Context, sess session) {
	if c.kv == nil {
		return
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, sessionKey, raw, time.Until(sess.ExpiresAt)); err != nil {
		c.logger.Warn("cannot persist portal session", "error", err)
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, token string) (*http.Request, error) {
	target := c.cfg.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, http.Header, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if c.observe != nil {
		c.observe(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, nil, &StatusError{Code: resp.StatusCode, Body: snippet}
	}
	return body, resp.Header, nil
}
