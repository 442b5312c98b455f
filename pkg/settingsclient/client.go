// Package settingsclient keeps a client-side copy of the user's settings in sync
// with the settings HTTP API and applies it to a presentation document.
package settingsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

const (
	fetchPath  = "/api/settings"
	updatePath = "/api/settings/update"
	themePath  = "/api/settings/theme"

	themeKey           = "theme"
	sidebarPositionKey = "sidebar_position"
	sidebarSizeKey     = "sidebar_size"

	defaultTimeout = 10 * time.Second
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("settingsclient: operation not allowed in current state")
	// ErrRejected is returned when the server answers a mutation with success=false.
	ErrRejected = errors.New("settingsclient: update rejected")
)

// StatusError carries a non-2xx answer from the settings API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("settingsclient: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("settingsclient: status %d: %s", e.StatusCode, e.Message)
}

// Settings is a settings mapping as returned by the API.
type Settings map[string]any

// Clone returns a shallow copy of s.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// String returns the value of key rendered as a string.
func (s Settings) String(key string) string {
	return cast.ToString(s[key])
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithCookie attaches the session cookie to every request.
func WithCookie(cookie *http.Cookie) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// Client is the client-side settings cache.
//
// Mutations are serialized: an UpdateSetting or SetTheme call waits until the
// previous round trip has settled.
type Client struct {
	baseURL string
	doc     Document
	http    *http.Client
	cookie  *http.Cookie
	log     *slog.Logger

	// flight is held across every network round trip.
	flight sync.Mutex

	mu        sync.RWMutex
	state     State
	cache     Settings
	confirmed Settings
	listeners map[int]func(Settings)
	nextID    int
}

// New builds a Client in the Uninitialized state. Call Load to fetch settings.
func New(baseURL string, doc Document, opts ...Option) *Client {
	if doc == nil {
		doc = nopDocument{}
	}

	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		doc:       doc,
		http:      &http.Client{Timeout: defaultTimeout},
		log:       slog.Default(),
		state:     StateUninitialized,
		cache:     Settings{},
		confirmed: Settings{},
		listeners: make(map[int]func(Settings)),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Open builds a Client and performs the initial load.
func Open(ctx context.Context, baseURL string, doc Document, opts ...Option) (*Client, error) {
	c := New(baseURL, doc, opts...)
	if err := c.Load(ctx); err != nil {
		return c, err
	}
	return c, nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Settings returns a copy of the cached settings, including optimistic values.
func (c *Client) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Clone()
}

// OnChange registers a listener called with the full mapping after every apply.
//
// Listeners run on the goroutine that completed the round trip, after the client
// has settled in Applied and released its mutation lock, so a listener may call
// Load, UpdateSetting or SetTheme. Such a nested call completes before the outer
// call returns.
func (c *Client) OnChange(listener func(Settings)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Load fetches the full settings set, replaces the cache and applies it.
// On failure the client returns to the state it was in; no retry is scheduled.
func (c *Client) Load(ctx context.Context) error {
	c.flight.Lock()
	notify, err := c.load(ctx)
	c.flight.Unlock()

	notify()
	return err
}

// UpdateSetting writes key optimistically and sends it to the server.
// On success the cache is replaced with the server's full mapping; on any failure
// the key reverts to its last confirmed value.
func (c *Client) UpdateSetting(ctx context.Context, key string, value any) error {
	c.flight.Lock()
	notify, err := c.updateSetting(ctx, key, value)
	c.flight.Unlock()

	notify()
	return err
}

// SetTheme changes the theme through the theme endpoint with the same protocol as UpdateSetting.
// The theme endpoint answers with the theme only, so a confirmed change is followed by a
// fetch of the full mapping.
func (c *Client) SetTheme(ctx context.Context, theme string) error {
	c.flight.Lock()
	notify, err := c.setTheme(ctx, theme)
	c.flight.Unlock()

	notify()
	return err
}

func (c *Client) load(ctx context.Context) (func(), error) {
	previous, err := c.transition(StateLoading)
	if err != nil {
		return noop, err
	}

	settings, err := c.fetch(ctx)
	if err != nil {
		c.forceState(previous)
		c.log.WarnContext(ctx, "settings load failed", slog.Any("error", err))
		return noop, err
	}

	return c.apply(settings), nil
}

func (c *Client) updateSetting(ctx context.Context, key string, value any) (func(), error) {
	if err := c.beginUpdate(key, value); err != nil {
		return noop, err
	}

	form := url.Values{key: {cast.ToString(value)}}

	var body struct {
		Success  bool     `json:"success"`
		Updated  []string `json:"updated"`
		Settings Settings `json:"settings"`
	}
	if err := c.do(ctx, http.MethodPost, updatePath, form, uuid.NewString(), &body); err != nil {
		c.revert(ctx, key, err)
		return noop, err
	}
	if !body.Success || !contains(body.Updated, key) || body.Settings == nil {
		c.revert(ctx, key, ErrRejected)
		return noop, ErrRejected
	}

	return c.apply(body.Settings), nil
}

func (c *Client) setTheme(ctx context.Context, theme string) (func(), error) {
	if err := c.beginUpdate(themeKey, theme); err != nil {
		return noop, err
	}

	var body struct {
		Success bool   `json:"success"`
		Theme   string `json:"theme"`
	}
	if err := c.do(ctx, http.MethodPost, themePath, url.Values{themeKey: {theme}}, "", &body); err != nil {
		c.revert(ctx, themeKey, err)
		return noop, err
	}
	if !body.Success {
		c.revert(ctx, themeKey, ErrRejected)
		return noop, ErrRejected
	}

	settings, err := c.fetch(ctx)
	if err != nil {
		// the theme is persisted; keep the last confirmed mapping with the new theme
		c.log.WarnContext(ctx, "settings refresh after theme change failed", slog.Any("error", err))
		c.mu.RLock()
		settings = c.confirmed.Clone()
		c.mu.RUnlock()
	}
	settings[themeKey] = body.Theme

	return c.apply(settings), nil
}

func (c *Client) fetch(ctx context.Context) (Settings, error) {
	var body struct {
		Success  bool     `json:"success"`
		Settings Settings `json:"settings"`
	}
	if err := c.do(ctx, http.MethodGet, fetchPath, nil, "", &body); err != nil {
		return nil, err
	}
	if !body.Success || body.Settings == nil {
		return nil, ErrRejected
	}
	return body.Settings, nil
}

func (c *Client) beginUpdate(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !IsTransitionAllowed(c.state, StateUpdating) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, c.state, StateUpdating)
	}
	c.state = StateUpdating
	c.cache[key] = value
	return nil
}

func (c *Client) revert(ctx context.Context, key string, cause error) {
	c.mu.Lock()
	if prev, ok := c.confirmed[key]; ok {
		c.cache[key] = prev
	} else {
		delete(c.cache, key)
	}
	c.state = StateApplied
	c.mu.Unlock()

	c.log.WarnContext(ctx, "settings update reverted", slog.String("key", key), slog.Any("error", cause))
}

// apply replaces the cache and styles the document. The returned func notifies
// listeners and must be called once the mutation lock is released.
func (c *Client) apply(settings Settings) func() {
	c.mu.Lock()
	c.cache = settings.Clone()
	c.confirmed = settings.Clone()
	c.state = StateApplied
	listeners := make([]func(Settings), 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	if root := c.doc.Root(); root != nil {
		root.SetAttribute(AttrTheme, settings.String(themeKey))
	}
	if sidebar, ok := c.doc.Sidebar(); ok && sidebar != nil {
		sidebar.SetAttribute(AttrSidebarPosition, settings.String(sidebarPositionKey))
		sidebar.SetAttribute(AttrSidebarSize, settings.String(sidebarSizeKey))
	}

	return func() {
		for _, l := range listeners {
			l(settings.Clone())
		}
	}
}

func noop() {}

func (c *Client) transition(to State) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.state
	if !IsTransitionAllowed(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	c.state = to
	return from, nil
}

func (c *Client) forceState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-ID", uuid.NewString())
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return &StatusError{StatusCode: resp.StatusCode, Message: failure.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
