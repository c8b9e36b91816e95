// Package tmdb is the HTTP client for the external movie catalog API.
// Every request passes through the shared rate limiter before it leaves
// the process, and response failures are mapped onto the module's error
// taxonomy so the retry policy can classify them.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	sagepick "github.com/saiteja-velpula/sagepick.core"
	"github.com/saiteja-velpula/sagepick.core/catalog"
	"github.com/saiteja-velpula/sagepick.core/ratelimit"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks to the catalog API. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	limiter *ratelimit.Limiter
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client. limiter paces every request; all clients in a
// process must share one limiter or the budget is multiplied.
func New(baseURL, token string, limiter *ratelimit.Limiter, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		limiter: limiter,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListPage is one page of a movie list endpoint.
type ListPage struct {
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	Results    []ListItem `json:"results"`
}

// ListItem is one movie reference on a list page.
type ListItem struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// ChangesPage is one page of the changes feed.
type ChangesPage struct {
	Page       int          `json:"page"`
	TotalPages int          `json:"total_pages"`
	Results    []ChangeItem `json:"results"`
}

// ChangeItem is one changed movie reference.
type ChangeItem struct {
	ID int64 `json:"id"`
}

// DiscoverMovies returns one page of the discover feed, ordered by title
// so successive runs walk a stable sequence.
func (c *Client) DiscoverMovies(ctx context.Context, page int) (*ListPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("sort_by", "title.asc")
	var out ListPage
	if err := c.get(ctx, "/discover/movie", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MovieChanges returns one page of the daily movie changes feed.
func (c *Client) MovieChanges(ctx context.Context, page int) (*ChangesPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	var out ChangesPage
	if err := c.get(ctx, "/movie/changes", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// categoryPaths maps each derived category to its API endpoint.
var categoryPaths = map[catalog.Category]string{
	catalog.CategoryTrending:   "/trending/movie/week",
	catalog.CategoryPopular:    "/movie/popular",
	catalog.CategoryTopRated:   "/movie/top_rated",
	catalog.CategoryUpcoming:   "/movie/upcoming",
	catalog.CategoryNowPlaying: "/movie/now_playing",
}

// CategoryMovies returns one page of the list backing a derived category.
func (c *Client) CategoryMovies(ctx context.Context, category catalog.Category, page int) (*ListPage, error) {
	path, ok := categoryPaths[category]
	if !ok {
		return nil, fmt.Errorf("%w: unknown category %q", sagepick.ErrPermanent, category)
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	var out ListPage
	if err := c.get(ctx, path, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// movieDetails is the wire shape of the details endpoint.
type movieDetails struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	OriginalLanguage string  `json:"original_language"`
	Runtime          int     `json:"runtime"`
	Status           string  `json:"status"`
	Adult            bool    `json:"adult"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int64   `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	Budget           int64   `json:"budget"`
	Revenue          int64   `json:"revenue"`
	Genres           []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
}

// Movie fetches full details for one movie and maps them to the catalog
// domain type, stamped with the fetch time. Keywords are a separate
// endpoint; see MovieKeywords.
func (c *Client) Movie(ctx context.Context, tmdbID int64) (*catalog.Movie, error) {
	var d movieDetails
	if err := c.get(ctx, "/movie/"+strconv.FormatInt(tmdbID, 10), nil, &d); err != nil {
		return nil, err
	}

	m := &catalog.Movie{
		TMDBID:           d.ID,
		Title:            d.Title,
		OriginalTitle:    d.OriginalTitle,
		Overview:         d.Overview,
		OriginalLanguage: d.OriginalLanguage,
		Runtime:          d.Runtime,
		Status:           d.Status,
		Adult:            d.Adult,
		VoteAverage:      d.VoteAverage,
		VoteCount:        d.VoteCount,
		Popularity:       d.Popularity,
		Budget:           d.Budget,
		Revenue:          d.Revenue,
		FetchedAt:        time.Now().UTC(),
	}
	if d.ReleaseDate != "" {
		if t, err := time.Parse("2006-01-02", d.ReleaseDate); err == nil {
			m.ReleaseDate = t
		}
	}
	for _, g := range d.Genres {
		m.Genres = append(m.Genres, catalog.Genre{TMDBID: g.ID, Name: g.Name})
	}
	return m, nil
}

// MovieKeywords fetches the keyword attachments for one movie.
func (c *Client) MovieKeywords(ctx context.Context, tmdbID int64) ([]catalog.Keyword, error) {
	var out struct {
		Keywords []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"keywords"`
	}
	if err := c.get(ctx, "/movie/"+strconv.FormatInt(tmdbID, 10)+"/keywords", nil, &out); err != nil {
		return nil, err
	}
	ks := make([]catalog.Keyword, 0, len(out.Keywords))
	for _, k := range out.Keywords {
		ks = append(ks, catalog.Keyword{TMDBID: k.ID, Name: k.Name})
	}
	return ks, nil
}

// get performs one paced GET and decodes the JSON response into v.
func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter wait: %v", sagepick.ErrTransient, err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", sagepick.ErrPermanent, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", sagepick.ErrTransient, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		// Server-side enforcement was stricter than our pacing: suspend
		// everyone for the cooldown, not just this caller.
		c.limiter.Pause(retryAfter)
		c.logger.Warn("catalog api rate limited",
			slog.String("path", path),
			slog.Duration("retry_after", retryAfter),
		)
		return &sagepick.RateLimitError{RetryAfter: retryAfter}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s: status %d", sagepick.ErrTransient, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %s: status %d", sagepick.ErrPermanent, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		// A truncated body usually means the connection dropped mid-read.
		return fmt.Errorf("%w: %s: decode response: %v", sagepick.ErrTransient, path, err)
	}
	return nil
}

// parseRetryAfter reads a Retry-After header in either the
// delta-seconds or the HTTP-date form.
func parseRetryAfter(h string, now time.Time) time.Duration {
	if h == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(h); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return time.Second
}
