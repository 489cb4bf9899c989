// Package tmdb fetches show, season and episode metadata from the TMDB
// API and flattens it into episode records for ingest.
package tmdb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/epiqlabs/epiq/internal/domain/dataset"
	"github.com/epiqlabs/epiq/pkg/metrics"
)

// Default client configuration constants. TMDB tolerates short bursts
// of around forty requests, so the limiter allows that burst and then
// settles at a steady request rate.
const (
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = rate.Limit(4)
	defaultRateBurst = 40
)

// Show is one TMDB TV search match.
type Show struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	FirstAirDate string  `json:"first_air_date"`
	Popularity   float64 `json:"popularity"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int64   `json:"vote_count"`
}

// searchResponse models the paginated TMDB search payload.
type searchResponse struct {
	Page         int    `json:"page"`
	Results      []Show `json:"results"`
	TotalResults int    `json:"total_results"`
}

// SeasonRef is one season entry in a show's detail payload.
type SeasonRef struct {
	SeasonNumber int `json:"season_number"`
	EpisodeCount int `json:"episode_count"`
}

// ShowDetails is the TMDB show payload with its season list.
type ShowDetails struct {
	ID      int64       `json:"id"`
	Name    string      `json:"name"`
	Seasons []SeasonRef `json:"seasons"`
}

// Episode is one TMDB episode entry inside a season payload.
type Episode struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Overview      string  `json:"overview"`
	SeasonNumber  int     `json:"season_number"`
	EpisodeNumber int     `json:"episode_number"`
	AirDate       string  `json:"air_date"`
	Runtime       int     `json:"runtime"`
	VoteAverage   float64 `json:"vote_average"`
	VoteCount     int64   `json:"vote_count"`
}

// SeasonDetails is the full TMDB season payload, episodes included.
type SeasonDetails struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	SeasonNumber int       `json:"season_number"`
	Episodes     []Episode `json:"episodes"`
}

// Fetcher defines the TMDB operations the service and CLI depend on.
type Fetcher interface {
	SearchShow(ctx context.Context, query string) (*Show, error)
	GetShowDetails(ctx context.Context, showID int64) (*ShowDetails, error)
	GetSeasonDetails(ctx context.Context, showID int64, seasonNumber int) (*SeasonDetails, error)
	FetchEpisodes(ctx context.Context, query string) (*ShowDetails, []dataset.Record, error)
}

// Client talks to the TMDB API. Safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Fetcher = (*Client)(nil)

// New creates a TMDB client.
func New(apiKey, baseURL, language string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   strings.TrimSpace(language),
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(defaultRateLimit, defaultRateBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SearchShow looks a show up by name. The first result wins; TMDB
// orders matches by relevance.
func (c *Client) SearchShow(ctx context.Context, query string) (*Show, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrBadRequest)
	}

	params := url.Values{}
	params.Set("query", query)

	var payload searchResponse
	if err := c.get(ctx, "/search/tv", params, &payload); err != nil {
		return nil, err
	}
	if len(payload.Results) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrShowNotFound, query)
	}
	return &payload.Results[0], nil
}

// GetShowDetails fetches a show's metadata including its season list.
func (c *Client) GetShowDetails(ctx context.Context, showID int64) (*ShowDetails, error) {
	if showID <= 0 {
		return nil, fmt.Errorf("%w: show id %d", ErrBadRequest, showID)
	}

	var payload ShowDetails
	if err := c.get(ctx, fmt.Sprintf("/tv/%d", showID), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetSeasonDetails fetches one season's full metadata, episodes included.
func (c *Client) GetSeasonDetails(ctx context.Context, showID int64, seasonNumber int) (*SeasonDetails, error) {
	if showID <= 0 {
		return nil, fmt.Errorf("%w: show id %d", ErrBadRequest, showID)
	}
	if seasonNumber <= 0 {
		return nil, fmt.Errorf("%w: season %d", ErrBadRequest, seasonNumber)
	}

	var payload SeasonDetails
	if err := c.get(ctx, fmt.Sprintf("/tv/%d/season/%d", showID, seasonNumber), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchEpisodes resolves a show by name and pulls every regular season's
// episodes, flattened into dataset records. Specials (season 0) are
// skipped. Episodes without any votes come back unobserved so the model
// treats them as unaired rather than as rated zero.
func (c *Client) FetchEpisodes(ctx context.Context, query string) (*ShowDetails, []dataset.Record, error) {
	show, err := c.SearchShow(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	details, err := c.GetShowDetails(ctx, show.ID)
	if err != nil {
		return nil, nil, err
	}

	var records []dataset.Record
	for _, ref := range details.Seasons {
		if ref.SeasonNumber <= 0 {
			continue
		}
		season, err := c.GetSeasonDetails(ctx, details.ID, ref.SeasonNumber)
		if err != nil {
			return nil, nil, fmt.Errorf("season %d: %w", ref.SeasonNumber, err)
		}
		for _, ep := range season.Episodes {
			records = append(records, recordFromEpisode(ep))
		}
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: show %q has no regular episodes", ErrShowNotFound, details.Name)
	}
	return details, records, nil
}

// recordFromEpisode maps a TMDB episode onto a dataset row.
func recordFromEpisode(ep Episode) dataset.Record {
	rec := dataset.Record{
		Season:   ep.SeasonNumber,
		Episode:  ep.EpisodeNumber,
		Rating:   ep.VoteAverage,
		Observed: ep.VoteCount > 0,
		Votes:    ep.VoteCount,
		Extra:    map[string]string{},
	}
	if ep.Name != "" {
		rec.Extra["title"] = ep.Name
	}
	if ep.AirDate != "" {
		rec.Extra["air_date"] = ep.AirDate
	}
	if ep.Runtime > 0 {
		rec.Extra["runtime"] = strconv.Itoa(ep.Runtime)
	}
	if len(rec.Extra) == 0 {
		rec.Extra = nil
	}
	return rec
}

// get performs one rate-limited API call and decodes the JSON body.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse tmdb url: %w", err)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	metrics.RecordTMDBRequestDuration(path, float64(latency.Milliseconds()))
	if err != nil {
		metrics.RecordTMDBRequest(path, "error")
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	metrics.RecordTMDBRequest(path, strconv.Itoa(resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d (latency=%v)", ErrUpstream, path, resp.StatusCode, latency)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tmdb response: %w", err)
	}
	return nil
}
