package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sudokodus/sudokodus/internal/schema"
)

var _ Client = (*HTTPClient)(nil)

const (
	puzzlesTable    = "puzzles"
	gameStatesTable = "game_states"
	challengesTable = "daily_challenges"
)

// HTTPClient talks to the backend's REST layer over HTTPS.
//
// Construct with New. A client built from an empty URL or key reports
// IsAvailable() == false and fails every call with ErrUnavailable, which
// mirrors a backend SDK that failed to initialize.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *log.Logger
}

// Options configures the HTTP client.
type Options struct {
	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration

	// Logger for request diagnostics. Nil means a default stderr logger.
	Logger *log.Logger
}

// New creates a backend client for the given project URL and API key.
func New(baseURL, apiKey string, opts *Options) *HTTPClient {
	if opts == nil {
		opts = &Options{}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// IsAvailable implements Client.
func (c *HTTPClient) IsAvailable() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// do performs one REST request against table with the given filters.
// A non-nil body is sent as JSON; a non-nil out receives the decoded
// response.
func (c *HTTPClient) do(ctx context.Context, method, table string, query url.Values,
	body any, out any, prefer string) error {

	if !c.IsAvailable() {
		return ErrUnavailable
	}

	u := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned status %d: %s", method, table, resp.StatusCode,
			strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", table, err)
		}
	}

	return nil
}

// FetchPuzzles implements Client.
func (c *HTTPClient) FetchPuzzles(ctx context.Context, q PuzzleQuery) ([]schema.Puzzle, error) {
	query := url.Values{}
	query.Set("select", "*")
	if q.Difficulty != "" {
		query.Set("difficulty", "eq."+string(q.Difficulty))
	}
	if len(q.Exclude) > 0 {
		query.Set("puzzle_string", "not.in.("+strings.Join(q.Exclude, ",")+")")
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var rows []wirePuzzle
	if err := c.do(ctx, http.MethodGet, puzzlesTable, query, nil, &rows, ""); err != nil {
		return nil, err
	}

	out := make([]schema.Puzzle, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toPuzzle())
	}
	return out, nil
}

// FetchPuzzle implements Client.
func (c *HTTPClient) FetchPuzzle(ctx context.Context, puzzleString string) (*schema.Puzzle, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("puzzle_string", "eq."+puzzleString)
	query.Set("limit", "1")

	var rows []wirePuzzle
	if err := c.do(ctx, http.MethodGet, puzzlesTable, query, nil, &rows, ""); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	p := rows[0].toPuzzle()
	return &p, nil
}

// FetchDailyChallenges implements Client.
func (c *HTTPClient) FetchDailyChallenges(ctx context.Context, date string) ([]*schema.DailyChallenge, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("date", "eq."+date)

	var rows []*schema.DailyChallenge
	if err := c.do(ctx, http.MethodGet, challengesTable, query, nil, &rows, ""); err != nil {
		return nil, err
	}
	return rows, nil
}

// FetchGameStatesSince implements Client.
func (c *HTTPClient) FetchGameStatesSince(ctx context.Context, userID string, since time.Time) ([]*schema.GameState, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("user_id", "eq."+userID)
	query.Set("updated_at", "gt."+since.UTC().Format(time.RFC3339))

	var rows []wireGameState
	if err := c.do(ctx, http.MethodGet, gameStatesTable, query, nil, &rows, ""); err != nil {
		return nil, err
	}

	out := make([]*schema.GameState, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toGameState())
	}
	return out, nil
}

// GameStateExists implements Client.
func (c *HTTPClient) GameStateExists(ctx context.Context, id string) (bool, error) {
	query := url.Values{}
	query.Set("select", "id")
	query.Set("id", "eq."+id)
	query.Set("limit", "1")

	var rows []struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, gameStatesTable, query, nil, &rows, ""); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// InsertGameState implements Client.
func (c *HTTPClient) InsertGameState(ctx context.Context, g *schema.GameState) error {
	w, err := toWireGameState(g)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, gameStatesTable, nil, []*wireGameState{w}, nil,
		"return=minimal")
}

// UpdateGameState implements Client.
func (c *HTTPClient) UpdateGameState(ctx context.Context, g *schema.GameState) error {
	w, err := toWireGameState(g)
	if err != nil {
		return err
	}

	query := url.Values{}
	query.Set("id", "eq."+g.ID)
	return c.do(ctx, http.MethodPatch, gameStatesTable, query, w, nil, "return=minimal")
}
