// Package subsonic is a minimal client for the Subsonic REST API,
// covering the calls the playback core needs: stream URL resolution,
// scrobbling, starring and a few track fetches.
package subsonic

import (
	"context"
	"crypto/md5" //nolint:gosec // subsonic token auth is defined over md5
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gulldan/subsonic-player-sub000/internal/errmsg"
)

const apiVersion = "1.16.1"

// StatusError is an error reported by the server, either as a failed
// subsonic-response or as a bare HTTP status. It carries its errmsg
// classification so the loader can surface the right message.
type StatusError struct {
	Code       int // subsonic error code, 0 if none
	Message    string
	HTTPStatus int
}

func (e *StatusError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.HTTPStatus, e.Message)
}

// ErrorKind maps the server response onto the error taxonomy.
// Subsonic codes 40 (wrong credentials), 41 (token auth unsupported)
// and 50 (not authorized) are authentication failures; HTTP 429 is a
// rate limit; everything else is generic.
func (e *StatusError) ErrorKind() errmsg.Kind {
	switch {
	case e.HTTPStatus == http.StatusTooManyRequests:
		return errmsg.KindRateLimit
	case strings.Contains(strings.ToLower(e.Message), "rate limit"):
		return errmsg.KindRateLimit
	case e.Code == 40 || e.Code == 41 || e.Code == 50:
		return errmsg.KindAuth
	case e.HTTPStatus == http.StatusUnauthorized || e.HTTPStatus == http.StatusForbidden:
		return errmsg.KindAuth
	default:
		return errmsg.KindGeneric
	}
}

var _ errmsg.Classifier = (*StatusError)(nil)

// Client talks to one Subsonic-compatible server.
type Client struct {
	baseURL    string
	username   string
	password   string
	clientName string
	httpc      *http.Client
	limiter    *rate.Limiter
	newSalt    func() string
}

// New creates a client for the given server. baseURL is the server
// root, without the /rest suffix.
func New(baseURL, username, password, clientName string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		password:   password,
		clientName: clientName,
		httpc:      &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		newSalt: func() string {
			return uuid.NewString()[:8]
		},
	}
}

// authParams returns the common query parameters including a fresh
// salted token (t = md5(password + salt)).
func (c *Client) authParams() url.Values {
	salt := c.newSalt()
	sum := md5.Sum([]byte(c.password + salt)) //nolint:gosec // protocol requirement
	v := url.Values{}
	v.Set("u", c.username)
	v.Set("t", hex.EncodeToString(sum[:]))
	v.Set("s", salt)
	v.Set("v", apiVersion)
	v.Set("c", c.clientName)
	v.Set("f", "json")
	return v
}

func (c *Client) endpoint(method string, params url.Values) string {
	return fmt.Sprintf("%s/rest/%s?%s", c.baseURL, method, params.Encode())
}

func (c *Client) get(ctx context.Context, method string, params url.Values) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := c.authParams()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(method, q), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %w", method, &StatusError{
			HTTPStatus: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		})
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if env.Response.Status != "ok" {
		apiErr := &StatusError{HTTPStatus: resp.StatusCode}
		if env.Response.Error != nil {
			apiErr.Code = env.Response.Error.Code
			apiErr.Message = env.Response.Error.Message
		}
		return nil, fmt.Errorf("%s: %w", method, apiErr)
	}
	return &env, nil
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "ping", nil)
	return err
}

// GetSong fetches a single track by id.
func (c *Client) GetSong(ctx context.Context, id string) (*Song, error) {
	params := url.Values{}
	params.Set("id", id)
	env, err := c.get(ctx, "getSong", params)
	if err != nil {
		return nil, err
	}
	if env.Response.Song == nil {
		return nil, fmt.Errorf("getSong: empty response for %s", id)
	}
	return env.Response.Song, nil
}

// GetRandomSongs fetches up to size random tracks from the catalog.
func (c *Client) GetRandomSongs(ctx context.Context, size int) ([]Song, error) {
	params := url.Values{}
	params.Set("size", strconv.Itoa(size))
	env, err := c.get(ctx, "getRandomSongs", params)
	if err != nil {
		return nil, err
	}
	if env.Response.RandomSongs == nil {
		return nil, nil
	}
	return env.Response.RandomSongs.Song, nil
}

// Scrobble submits a play to the server. Called once per track when
// half of it has been heard.
func (c *Client) Scrobble(ctx context.Context, id string) error {
	params := url.Values{}
	params.Set("id", id)
	params.Set("submission", "true")
	_, err := c.get(ctx, "scrobble", params)
	return err
}

// NowPlaying notifies the server that the track started playing.
func (c *Client) NowPlaying(ctx context.Context, id string) error {
	params := url.Values{}
	params.Set("id", id)
	params.Set("submission", "false")
	_, err := c.get(ctx, "scrobble", params)
	return err
}

// Star marks a track as favorite.
func (c *Client) Star(ctx context.Context, id string) error {
	params := url.Values{}
	params.Set("id", id)
	_, err := c.get(ctx, "star", params)
	return err
}

// Unstar removes the favorite mark from a track.
func (c *Client) Unstar(ctx context.Context, id string) error {
	params := url.Values{}
	params.Set("id", id)
	_, err := c.get(ctx, "unstar", params)
	return err
}

// StreamURL returns the authenticated stream URL for a track. The URL
// embeds a fresh salted token, so it is valid on its own.
func (c *Client) StreamURL(id string) string {
	q := c.authParams()
	q.Set("id", id)
	return c.endpoint("stream", q)
}

// CoverArtURL returns the authenticated cover art URL, scaled to size
// pixels when size > 0.
func (c *Client) CoverArtURL(id string, size int) string {
	q := c.authParams()
	q.Set("id", id)
	if size > 0 {
		q.Set("size", strconv.Itoa(size))
	}
	return c.endpoint("getCoverArt", q)
}
