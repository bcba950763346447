// Package oddsfeed fetches bookmaker odds and final scores from The Odds API
// and normalizes them into canonical game records. It never touches the store.
package oddsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/scrumdog/cheddar-logic/internal/sports"
	"github.com/scrumdog/cheddar-logic/internal/telemetry"
)

const (
	requestTimeout = 30 * time.Second
	pacingDelay    = 250 * time.Millisecond
)

// Client talks to The Odds API v4.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu      sync.Mutex
	lastReq time.Time
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// event mirrors the provider's odds response shape.
type event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	CommenceTime string      `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []bookmaker `json:"bookmakers"`
}

type bookmaker struct {
	Key     string   `json:"key"`
	Markets []market `json:"markets"`
}

type market struct {
	Key      string    `json:"key"`
	Outcomes []outcome `json:"outcomes"`
}

type outcome struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

// FetchOdds pulls upcoming events for one sport and normalizes them. Games
// outside [now-1h, now+horizon] are dropped by the horizon filter; records
// missing required provider fields are dropped and counted.
func (c *Client) FetchOdds(ctx context.Context, sport sports.Sport, horizonHours int) (*FetchResult, error) {
	start := time.Now()
	defer func() { telemetry.Metrics.OddsFetchLatency.Record(time.Since(start)) }()

	sportKey := sport.OddsAPIKey()
	if sportKey == "" {
		return nil, fmt.Errorf("no odds api sport key for %q", sport)
	}

	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("regions", "us")
	q.Set("markets", "h2h,spreads,totals")
	q.Set("oddsFormat", "american")
	endpoint := fmt.Sprintf("%s/v4/sports/%s/odds?%s", c.baseURL, sportKey, q.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch odds %s: %w", sport, err)
	}

	var events []event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("parse odds %s: %w", sport, err)
	}

	result := Normalize(events, sport, time.Now().UTC(), horizonHours)
	telemetry.Infof("oddsfeed: %s fetched %d events, kept %d (skipped %d missing fields)",
		sport, result.RawCount, len(result.Games), result.SkippedMissingFields)
	return result, nil
}

// scoreEvent mirrors the provider's scores response shape.
type scoreEvent struct {
	ID           string `json:"id"`
	CommenceTime string `json:"commence_time"`
	Completed    bool   `json:"completed"`
	HomeTeam     string `json:"home_team"`
	AwayTeam     string `json:"away_team"`
	Scores       []struct {
		Name  string `json:"name"`
		Score string `json:"score"`
	} `json:"scores"`
}

// FinalScore is a completed event from the provider scoreboard.
type FinalScore struct {
	ProviderGameID string
	HomeTeam       string
	AwayTeam       string
	HomeScore      int
	AwayScore      int
	Completed      bool
	Cancelled      bool
}

// FetchScores pulls the scoreboard for one sport, looking back daysFrom days.
// Only events present in the response are returned; absence is not an error.
func (c *Client) FetchScores(ctx context.Context, sport sports.Sport, daysFrom int) ([]FinalScore, error) {
	sportKey := sport.OddsAPIKey()
	if sportKey == "" {
		return nil, fmt.Errorf("no odds api sport key for %q", sport)
	}
	if daysFrom < 1 {
		daysFrom = 1
	}
	if daysFrom > 3 {
		daysFrom = 3 // provider maximum
	}

	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("daysFrom", fmt.Sprintf("%d", daysFrom))
	endpoint := fmt.Sprintf("%s/v4/sports/%s/scores?%s", c.baseURL, sportKey, q.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch scores %s: %w", sport, err)
	}

	var events []scoreEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("parse scores %s: %w", sport, err)
	}

	out := make([]FinalScore, 0, len(events))
	for _, ev := range events {
		fs := FinalScore{
			ProviderGameID: ev.ID,
			HomeTeam:       ev.HomeTeam,
			AwayTeam:       ev.AwayTeam,
			Completed:      ev.Completed,
		}
		if !ev.Completed {
			continue
		}
		found := 0
		for _, sc := range ev.Scores {
			n, err := parseScore(sc.Score)
			if err != nil {
				continue
			}
			switch sc.Name {
			case ev.HomeTeam:
				fs.HomeScore = n
				found++
			case ev.AwayTeam:
				fs.AwayScore = n
				found++
			}
		}
		if found < 2 {
			telemetry.Warnf("oddsfeed: %s event %s completed without both scores", sport, ev.ID)
			continue
		}
		out = append(out, fs)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	c.pace()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.Metrics.OddsFetchErrors.Inc()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		telemetry.Metrics.OddsFetchErrors.Inc()
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// pace enforces a small inter-request delay to bound provider QPS.
func (c *Client) pace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lastReq.IsZero() {
		if elapsed := time.Since(c.lastReq); elapsed < pacingDelay {
			time.Sleep(pacingDelay - elapsed)
		}
	}
	c.lastReq = time.Now()
}

func parseScore(v string) (int, error) {
	var n int
	_, err := fmt.Sscanf(v, "%d", &n)
	return n, err
}
