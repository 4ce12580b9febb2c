package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"movie-discovery-service/internal/models"
)

// HTTPDoer is the subset of *http.Client the TMDB client needs.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is the TMDB API client. It performs a single logical request per
// call, classifies failures and retries transient ones with exponential
// backoff. It holds no cache state; remembering results is the caller's job.
type Client struct {
	apiKey  string
	baseURL string
	http    HTTPDoer
	retry   RetryPolicy
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(d HTTPDoer) Option {
	return func(c *Client) {
		if d != nil {
			c.http = d
		}
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithoutBreaker disables the circuit breaker (used in tests).
func WithoutBreaker() Option {
	return func(c *Client) {
		c.breaker = nil
	}
}

// NewClient creates a new TMDB API client.
func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		retry:   DefaultRetryPolicy,
		breaker: newBreaker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newBreaker trips after 5 consecutive retryable failures and probes again
// after 30 seconds. Non-retryable failures (4xx, decode) never trip it.
func newBreaker() *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "tmdb",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// ---- TMDB Response Types (internal, not exposed to consumers) ----

// Genre is a genre from TMDB detail responses.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MovieDetail is the detailed movie info from TMDB.
type MovieDetail struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	Genres           []Genre `json:"genres"`
	OriginalLanguage string  `json:"original_language"`
	Adult            bool    `json:"adult"`
	Runtime          int     `json:"runtime"`
}

// Movie flattens the detail into the list-endpoint movie shape so it can be
// cached alongside list results.
func (d MovieDetail) Movie() models.Movie {
	genreIDs := make([]int, 0, len(d.Genres))
	for _, g := range d.Genres {
		genreIDs = append(genreIDs, g.ID)
	}
	return models.Movie{
		ID:               d.ID,
		Title:            d.Title,
		Overview:         d.Overview,
		ReleaseDate:      d.ReleaseDate,
		VoteAverage:      d.VoteAverage,
		VoteCount:        d.VoteCount,
		Popularity:       d.Popularity,
		PosterPath:       d.PosterPath,
		BackdropPath:     d.BackdropPath,
		GenreIDs:         genreIDs,
		OriginalLanguage: d.OriginalLanguage,
		Adult:            d.Adult,
	}
}

// Video is a trailer/teaser entry from TMDB.
type Video struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
	Site string `json:"site"`
	Type string `json:"type"`
}

// VideoResponse is the /movie/{id}/videos response.
type VideoResponse struct {
	ID      int     `json:"id"`
	Results []Video `json:"results"`
}

// CastMember is one cast credit.
type CastMember struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Character string `json:"character"`
	Order     int    `json:"order"`
}

// CrewMember is one crew credit.
type CrewMember struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Job  string `json:"job"`
}

// Credits is the /movie/{id}/credits response.
type Credits struct {
	ID   int          `json:"id"`
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// Person is the /person/{id} response.
type Person struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Biography    string  `json:"biography"`
	Birthday     string  `json:"birthday"`
	ProfilePath  string  `json:"profile_path"`
	Popularity   float64 `json:"popularity"`
	KnownForDept string  `json:"known_for_department"`
}

// ---- Client Methods ----

// Trending fetches the daily trending movies page.
func (c *Client) Trending(ctx context.Context, page int) (*models.PageResult, error) {
	return getJSON[models.PageResult](ctx, c, "/trending/movie/day", pageQuery(page))
}

// Popular fetches the popular movies page.
func (c *Client) Popular(ctx context.Context, page int) (*models.PageResult, error) {
	return getJSON[models.PageResult](ctx, c, "/movie/popular", pageQuery(page))
}

// TopRated fetches the top-rated movies page.
func (c *Client) TopRated(ctx context.Context, page int) (*models.PageResult, error) {
	return getJSON[models.PageResult](ctx, c, "/movie/top_rated", pageQuery(page))
}

// NowPlaying fetches the now-playing movies page.
func (c *Client) NowPlaying(ctx context.Context, page int) (*models.PageResult, error) {
	return getJSON[models.PageResult](ctx, c, "/movie/now_playing", pageQuery(page))
}

// Upcoming fetches the upcoming movies page.
func (c *Client) Upcoming(ctx context.Context, page int) (*models.PageResult, error) {
	return getJSON[models.PageResult](ctx, c, "/movie/upcoming", pageQuery(page))
}

// Discover fetches a discover page sorted by popularity.
func (c *Client) Discover(ctx context.Context, page int) (*models.PageResult, error) {
	q := pageQuery(page)
	q.Set("sort_by", "popularity.desc")
	q.Set("include_adult", "false")
	return getJSON[models.PageResult](ctx, c, "/discover/movie", q)
}

// Search performs a movie title search.
func (c *Client) Search(ctx context.Context, query string, page int) (*models.PageResult, error) {
	if query == "" {
		return nil, &Error{Kind: KindInvalidRequest, Message: "empty search query"}
	}
	q := pageQuery(page)
	q.Set("query", query)
	return getJSON[models.PageResult](ctx, c, "/search/movie", q)
}

// MovieDetail fetches detailed info for a single movie.
func (c *Client) MovieDetail(ctx context.Context, id int) (*MovieDetail, error) {
	return getJSON[MovieDetail](ctx, c, "/movie/"+strconv.Itoa(id), nil)
}

// Videos fetches trailers and teasers for a movie.
func (c *Client) Videos(ctx context.Context, id int) (*VideoResponse, error) {
	return getJSON[VideoResponse](ctx, c, "/movie/"+strconv.Itoa(id)+"/videos", nil)
}

// Credits fetches cast and crew for a movie.
func (c *Client) Credits(ctx context.Context, id int) (*Credits, error) {
	return getJSON[Credits](ctx, c, "/movie/"+strconv.Itoa(id)+"/credits", nil)
}

// Person fetches a person by id.
func (c *Client) Person(ctx context.Context, id int) (*Person, error) {
	return getJSON[Person](ctx, c, "/person/"+strconv.Itoa(id), nil)
}

func pageQuery(page int) url.Values {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	return q
}

// getJSON performs a GET against path with retry, returning the decoded
// response body.
func getJSON[T any](ctx context.Context, c *Client, path string, query url.Values) (*T, error) {
	if c.apiKey == "" {
		return nil, &Error{Kind: KindUnauthorized, Message: "missing TMDB API key"}
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Message: "bad request URL", Err: err}
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	return doWithRetry(ctx, c.retry, func(ctx context.Context) (*T, error) {
		slog.Debug("fetching TMDB", "path", path)

		resp, err := c.doGet(ctx, u.String())
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var result T
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, &Error{Kind: KindDecode, Message: "failed to decode " + path + " response", Err: err}
		}
		return &result, nil
	})
}

// doGet performs one attempt through the circuit breaker and classifies the
// outcome. A 2xx response is returned with its body still open.
func (c *Client) doGet(ctx context.Context, rawURL string) (*http.Response, error) {
	attempt := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, &Error{Kind: KindInvalidRequest, Message: "building request", Err: err}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &Error{Kind: KindTransport, Message: "HTTP request failed", Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, classifyStatus(resp.StatusCode, string(body))
		}
		return resp, nil
	}

	if c.breaker == nil {
		return attempt()
	}
	resp, err := c.breaker.Execute(attempt)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("circuit breaker %s", c.breaker.State()), Err: err}
	}
	return resp, err
}
