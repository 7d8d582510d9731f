// Package weather answers the weather voice command with the one-line
// format of wttr.in.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/earshot/internal/command"
	"github.com/MrWong99/earshot/pkg/types"
)

const (
	defaultBaseURL  = "https://wttr.in"
	defaultLocation = "Astana"
	defaultTimeout  = 5 * time.Second

	// maxBody bounds the response; format=3 is a single short line.
	maxBody = 4 << 10
)

// ErrEmpty is returned when the service answers with no text.
var ErrEmpty = errors.New("weather: empty response")

// ruTerms localizes the condition words of the wttr.in one-liner.
var ruTerms = strings.NewReplacer(
	"Feels like", "Ощущается как",
	"Partly cloudy", "Переменная облачность",
	"Clear", "Ясно",
	"Sunny", "Солнечно",
	"Cloudy", "Облачно",
	"Overcast", "Пасмурно",
	"Rain", "Дождь",
	"Snow", "Снег",
	"Mist", "Туман",
	"Wind", "Ветер",
)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another wttr.in-compatible server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithDefaultLocation is used when the command names no place.
func WithDefaultLocation(loc string) Option {
	return func(c *Client) { c.location = loc }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client implements [command.Querier] for [command.ActionWeather].
type Client struct {
	baseURL  string
	location string
	http     *http.Client
}

var _ command.Querier = (*Client)(nil)

// New returns a Client with a 5 s request timeout.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:  defaultBaseURL,
		location: defaultLocation,
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Query fetches the weather for req.Arg, or the default location when it
// is empty, and returns a localized sentence.
func (c *Client) Query(ctx context.Context, req command.ActionRequest) (string, error) {
	if req.Action != command.ActionWeather {
		return "", fmt.Errorf("weather: unsupported action %q", req.Action)
	}

	loc := location(req.Arg)
	if loc == "" {
		loc = c.location
	}
	line, err := c.fetch(ctx, loc)
	if err != nil {
		return "", err
	}
	if req.Locale == types.LocaleRU {
		return "Погода: " + ruTerms.Replace(line), nil
	}
	return "Weather: " + line, nil
}

func (c *Client) fetch(ctx context.Context, loc string) (string, error) {
	u := c.baseURL + "/" + url.PathEscape(loc) + "?format=3"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("weather: build request: %w", err)
	}
	req.Header.Set("User-Agent", "curl/8") // wttr.in serves plain text to curl

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather: get %s: %w", loc, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather: get %s: status %d", loc, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("weather: read body: %w", err)
	}
	line := strings.TrimSpace(strings.ToValidUTF8(string(body), ""))
	if line == "" {
		return "", ErrEmpty
	}
	return line, nil
}

// location trims a leading preposition ("in London", "в Москве").
func location(arg string) string {
	arg = strings.TrimSpace(arg)
	for _, p := range []string{"in ", "for ", "в ", "во "} {
		if rest, ok := strings.CutPrefix(strings.ToLower(arg), p); ok {
			return strings.TrimSpace(arg[len(arg)-len(rest):])
		}
	}
	return arg
}
