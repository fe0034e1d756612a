// Package onenote reads notebooks from Microsoft Graph and turns every page
// into a rag.Document labelled "Notebook: X, Section: Y, Page: Z".
//
// Authentication is a pre-issued bearer token (MS_ACCESS_TOKEN). Acquiring
// or refreshing tokens is left to the caller.
package onenote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/54b3r/notesai-go/internal/rag"
)

// DefaultBaseURL is the Graph OneNote root for the signed-in user.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0/me/onenote"

// Config holds the Graph client settings.
type Config struct {
	// AccessToken is the Graph bearer token. Required.
	AccessToken string

	// BaseURL overrides the OneNote API root. Defaults to DefaultBaseURL.
	BaseURL string

	// RequestsPerSecond caps the request rate to stay under Graph
	// throttling. Defaults to 4.
	RequestsPerSecond float64

	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration

	// HTTPClient is the base client wrapped with the bearer token.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client fetches OneNote content. It implements rag.DocumentSource.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
	log     *slog.Logger
}

// StatusError is a non-200 Graph response.
type StatusError struct {
	// Code is the HTTP status code.
	Code int
	// Body is the start of the response body.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graph request failed: %d - %s", e.Code, e.Body)
}

// New constructs a Client. A missing token is rag.ErrConfiguration.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, fmt.Errorf("onenote: %w: MS_ACCESS_TOKEN is not set", rag.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = cfg.Timeout

	return &Client{
		http:    hc,
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:     cfg.Logger,
	}, nil
}

type notebook struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type section struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type page struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// listResponse is one page of a Graph collection.
type listResponse[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// FetchDocuments walks every notebook, section and page and returns one
// document per page. A listing failure aborts the walk; a page whose
// content cannot be read is logged and skipped.
func (c *Client) FetchDocuments(ctx context.Context) ([]rag.Document, error) {
	notebooks, err := list[notebook](ctx, c, c.base+"/notebooks")
	if err != nil {
		return nil, fmt.Errorf("onenote: list notebooks: %w", err)
	}

	var docs []rag.Document
	skipped := 0
	for _, nb := range notebooks {
		nbName := orDefault(nb.DisplayName, "Unnamed Notebook")

		sections, err := list[section](ctx, c, c.base+"/notebooks/"+url.PathEscape(nb.ID)+"/sections")
		if err != nil {
			return nil, fmt.Errorf("onenote: list sections of %q: %w", nbName, err)
		}

		for _, sec := range sections {
			secName := orDefault(sec.DisplayName, "Unnamed Section")

			pages, err := list[page](ctx, c, c.base+"/sections/"+url.PathEscape(sec.ID)+"/pages")
			if err != nil {
				return nil, fmt.Errorf("onenote: list pages of %q: %w", secName, err)
			}

			for _, pg := range pages {
				title := orDefault(pg.Title, "Unnamed Page")
				text, err := c.pageText(ctx, pg.ID)
				if err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					skipped++
					c.log.Warn("onenote: skipping page",
						slog.String("notebook", nbName),
						slog.String("section", secName),
						slog.String("page", title),
						slog.Any("error", err),
					)
					continue
				}
				docs = append(docs, rag.Document{
					Content: text,
					Source:  rag.FormatSource(nbName, secName, title),
				})
				c.log.Debug("onenote: fetched page",
					slog.String("notebook", nbName),
					slog.String("section", secName),
					slog.String("page", title),
				)
			}
		}
	}

	c.log.Info("onenote: fetch complete",
		slog.Int("notebooks", len(notebooks)),
		slog.Int("pages", len(docs)),
		slog.Int("skipped", skipped),
	)
	return docs, nil
}

// pageText downloads a page's HTML and reduces it to text.
func (c *Client) pageText(ctx context.Context, id string) (string, error) {
	body, err := c.get(ctx, c.base+"/pages/"+url.PathEscape(id)+"/content", "text/html")
	if err != nil {
		return "", err
	}
	defer body.Close()
	return HTMLToText(body)
}

// list fetches every item of a Graph collection, following @odata.nextLink.
func list[T any](ctx context.Context, c *Client, endpoint string) ([]T, error) {
	var out []T
	next := endpoint
	for next != "" {
		body, err := c.get(ctx, next, "application/json")
		if err != nil {
			return nil, err
		}
		var resp listResponse[T]
		err = json.NewDecoder(body).Decode(&resp)
		body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", next, err)
		}
		out = append(out, resp.Value...)
		next = resp.NextLink
	}
	return out, nil
}

// get issues a rate-limited GET and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, endpoint, accept string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return resp.Body, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
