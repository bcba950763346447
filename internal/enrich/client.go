// Package enrich fetches recent-form team metrics from a public stats source.
// Every failure path degrades to a neutral record so a stats outage never
// blocks the model jobs.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/scrumdog/cheddar-logic/internal/telemetry"
)

const (
	requestTimeout = 10 * time.Second
	pacingDelay    = 200 * time.Millisecond
	recentGames    = 5
)

// Metrics is the recent-form profile for one team. Pointer fields are nil on
// the neutral fallback.
type Metrics struct {
	AvgPoints        *float64
	AvgPointsAllowed *float64
	NetRating        *float64
	RestDays         *int
	Form             string // last-5 W/L string, "Unknown" on fallback
	Pace             *float64
	Rank             *int
	Record           string
}

// Neutral is the fallback returned for unknown teams or provider failures.
func Neutral() Metrics {
	return Metrics{Form: "Unknown"}
}

// Client fetches team metrics with a small inter-call pacing delay.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	lastReq time.Time
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type scheduleGame struct {
	Date      string `json:"date"`
	HomeID    int    `json:"home_team_id"`
	AwayID    int    `json:"away_team_id"`
	HomeScore int    `json:"home_score"`
	AwayScore int    `json:"away_score"`
	Status    string `json:"status"`
}

type scheduleResponse struct {
	Data []scheduleGame `json:"data"`
}

type teamInfoResponse struct {
	Data struct {
		Rank   *int    `json:"rank"`
		Record string  `json:"record"`
		Pace   *float64 `json:"pace"`
	} `json:"data"`
}

// TeamMetrics returns recent-form metrics for (teamName, sport). Any failure,
// unknown team, or empty schedule yields the neutral record.
func (c *Client) TeamMetrics(ctx context.Context, teamName, sport string) Metrics {
	teamID := lookupTeamID(teamName, sport)
	if teamID == 0 {
		telemetry.Debugf("enrich: unknown team %q (%s)", teamName, sport)
		telemetry.Metrics.EnrichFallbacks.Inc()
		return Neutral()
	}

	sched, err := c.fetchSchedule(ctx, sport, teamID)
	if err != nil || len(sched) == 0 {
		if err != nil {
			telemetry.Warnf("enrich: schedule fetch %q (%s): %v", teamName, sport, err)
		}
		telemetry.Metrics.EnrichFallbacks.Inc()
		return Neutral()
	}

	m := metricsFromSchedule(sched, teamID, time.Now().UTC())

	info, err := c.fetchTeamInfo(ctx, sport, teamID)
	if err != nil {
		telemetry.Debugf("enrich: team info %q (%s): %v", teamName, sport, err)
	} else {
		m.Rank = info.Data.Rank
		m.Record = info.Data.Record
		if sport != "nhl" { // pace proxy is null for hockey
			m.Pace = info.Data.Pace
		}
	}
	return m
}

// metricsFromSchedule derives the form metrics from a bounded recent window
// of finished games.
func metricsFromSchedule(sched []scheduleGame, teamID int, now time.Time) Metrics {
	var finished []scheduleGame
	for _, g := range sched {
		if strings.EqualFold(g.Status, "final") {
			finished = append(finished, g)
		}
	}
	if len(finished) == 0 {
		return Neutral()
	}
	if len(finished) > recentGames {
		finished = finished[len(finished)-recentGames:]
	}

	var ptsFor, ptsAgainst float64
	var form strings.Builder
	for _, g := range finished {
		var us, them int
		if g.HomeID == teamID {
			us, them = g.HomeScore, g.AwayScore
		} else {
			us, them = g.AwayScore, g.HomeScore
		}
		ptsFor += float64(us)
		ptsAgainst += float64(them)
		if us > them {
			form.WriteByte('W')
		} else {
			form.WriteByte('L')
		}
	}

	n := float64(len(finished))
	avgFor := ptsFor / n
	avgAgainst := ptsAgainst / n
	net := avgFor - avgAgainst

	m := Metrics{
		AvgPoints:        &avgFor,
		AvgPointsAllowed: &avgAgainst,
		NetRating:        &net,
		Form:             form.String(),
	}

	// Rest days from the last finished game's date.
	if last := finished[len(finished)-1]; last.Date != "" {
		if d, err := time.Parse("2006-01-02", last.Date); err == nil {
			rest := int(now.Sub(d).Hours() / 24)
			if rest >= 0 {
				m.RestDays = &rest
			}
		}
	}
	return m
}

func (c *Client) fetchSchedule(ctx context.Context, sport string, teamID int) ([]scheduleGame, error) {
	endpoint := fmt.Sprintf("%s/v1/%s/teams/%d/games?per_page=%d", c.baseURL, sport, teamID, recentGames*3)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var resp scheduleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	return resp.Data, nil
}

func (c *Client) fetchTeamInfo(ctx context.Context, sport string, teamID int) (*teamInfoResponse, error) {
	endpoint := fmt.Sprintf("%s/v1/%s/teams/%d", c.baseURL, sport, teamID)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var resp teamInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse team info: %w", err)
	}
	return &resp, nil
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
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

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
