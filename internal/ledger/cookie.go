package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// CookieName is the voted-IDs cookie, a URL-encoded JSON array.
	CookieName = "pids"
	// ClientIDCookieName carries the stable per-browser client ID used to
	// key the server-side ledger backend.
	ClientIDCookieName = "cbid"
	// CookieMaxAge keeps ledger entries for roughly 100 days.
	CookieMaxAge = 100 * 24 * time.Hour
)

var errEmptyID = errors.New("ledger: empty prediction id")

// Client is one browser profile's view of the ledger for the duration of a
// request or session. The cookie backend stages its write here; the HTTP
// layer flushes it to the response with WriteCookies.
type Client struct {
	ID string // stable client ID from the cbid cookie

	rawCookie   string // incoming pids cookie value, "" if absent
	hasCookie   bool
	staged      string // outgoing pids cookie value
	stagedDirty bool
	newClientID bool
}

// ClientFromRequest builds a Client from the request's cookies, minting a
// client ID when the browser does not have one yet.
func ClientFromRequest(r *http.Request) *Client {
	c := &Client{}
	if ck, err := r.Cookie(ClientIDCookieName); err == nil && ck.Value != "" {
		c.ID = ck.Value
	} else {
		c.ID = uuid.New().String()
		c.newClientID = true
	}
	if ck, err := r.Cookie(CookieName); err == nil {
		c.rawCookie = ck.Value
		c.hasCookie = true
	}
	return c
}

// NewClient builds a Client for non-HTTP callers (tests, session fakes).
func NewClient(id string) *Client {
	return &Client{ID: id}
}

// PendingCookies returns and clears the cookies staged on the client: the
// updated pids list and, for first-time visitors, the client ID. Callers that
// cannot use WriteCookies (WebSocket handshakes) serialize these themselves.
func (c *Client) PendingCookies() []*http.Cookie {
	var cookies []*http.Cookie
	if c.newClientID {
		cookies = append(cookies, &http.Cookie{
			Name:     ClientIDCookieName,
			Value:    c.ID,
			Path:     "/",
			MaxAge:   int(CookieMaxAge / time.Second),
			SameSite: http.SameSiteLaxMode,
		})
		c.newClientID = false
	}
	if c.stagedDirty {
		cookies = append(cookies, &http.Cookie{
			Name:     CookieName,
			Value:    c.staged,
			Path:     "/",
			MaxAge:   int(CookieMaxAge / time.Second),
			SameSite: http.SameSiteLaxMode,
		})
		c.stagedDirty = false
	}
	return cookies
}

// WriteCookies sets any cookies the ledger staged during the request.
func (c *Client) WriteCookies(w http.ResponseWriter) {
	for _, ck := range c.PendingCookies() {
		http.SetCookie(w, ck)
	}
}

// CookieBackend stores the voted-ID list in the pids cookie itself. It is
// stateless: reads decode the request's cookie, writes stage the new value on
// the Client for the response.
type CookieBackend struct{}

func NewCookieBackend() *CookieBackend { return &CookieBackend{} }

func (b *CookieBackend) Name() string { return "cookie" }

func (b *CookieBackend) Load(_ context.Context, c *Client) ([]string, bool) {
	// A write staged earlier in the same request wins over the stale
	// request cookie.
	raw := c.rawCookie
	has := c.hasCookie
	if c.staged != "" {
		raw = c.staged
		has = true
	}
	if !has {
		return nil, false
	}

	ids, err := decodeCookieValue(raw)
	if err != nil {
		// Garbage in the cookie means no prior votes, not a failure.
		log.Warn().Err(err).Msg("ledger: unparseable pids cookie, treating as empty")
		return nil, false
	}
	return ids, true
}

func (b *CookieBackend) Save(_ context.Context, c *Client, ids []string) error {
	value, err := encodeCookieValue(ids)
	if err != nil {
		return err
	}
	c.staged = value
	c.stagedDirty = true
	return nil
}

func decodeCookieValue(value string) ([]string, error) {
	unescaped, err := url.QueryUnescape(value)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(unescaped), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func encodeCookieValue(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return url.QueryEscape(string(data)), nil
}
