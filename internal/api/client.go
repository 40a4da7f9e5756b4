// Package api wraps the analyzer service's REST resources. Calls are
// context-aware, rate limited and never panic the caller; a failed call is
// an error to log or surface, nothing more.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"volumewatch/config"
	"volumewatch/logger"
	"volumewatch/models"
)

// Client issues request/response calls against the backend's /api resources.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
}

func NewClient(cfg config.BackendConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize),
		log:     logger.GetLogger(),
	}
}

// do executes one JSON request. Mutations rely on the HTTP status alone; no
// structured error body is consumed.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request %s %s returned status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// Watchlist fetches the full tracked-pair list.
func (c *Client) Watchlist(ctx context.Context) ([]models.WatchlistItem, error) {
	var resp struct {
		Pairs []models.WatchlistItem `json:"pairs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/watchlist", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Pairs, nil
}

// AddWatchlistItem adds a symbol to the watchlist.
func (c *Client) AddWatchlistItem(ctx context.Context, symbol string) error {
	body := map[string]string{"symbol": symbol}
	return c.do(ctx, http.MethodPost, "/api/watchlist", body, nil)
}

// UpdateWatchlistItem replaces one watchlist entry.
func (c *Client) UpdateWatchlistItem(ctx context.Context, item models.WatchlistItem) error {
	body := map[string]interface{}{
		"id":        item.ID,
		"symbol":    item.Symbol,
		"is_active": item.IsActive,
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/watchlist/%d", item.ID), body, nil)
}

// DeleteWatchlistItem removes one watchlist entry.
func (c *Client) DeleteWatchlistItem(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/watchlist/%d", id), nil, nil)
}

// AlertGroups fetches the server-grouped alert list.
func (c *Client) AlertGroups(ctx context.Context) ([]models.AlertGroup, error) {
	var resp struct {
		AlertGroups []models.AlertGroup `json:"alert_groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/alerts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.AlertGroups, nil
}

// AlertDetails fetches the constituent alerts of one group.
func (c *Client) AlertDetails(ctx context.Context, groupID int64) ([]models.Alert, error) {
	var resp struct {
		Alerts []models.Alert `json:"alerts"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/alerts/%d/details", groupID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Alerts, nil
}

// DeleteAlertGroup removes one alert group.
func (c *Client) DeleteAlertGroup(ctx context.Context, groupID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/alerts/%d", groupID), nil, nil)
}

// ClearAlerts removes every alert group.
func (c *Client) ClearAlerts(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/alerts", nil, nil)
}

// Settings fetches the analyzer configuration.
func (c *Client) Settings(ctx context.Context) (models.Settings, error) {
	var settings models.Settings
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &settings); err != nil {
		return models.Settings{}, err
	}
	return settings, nil
}

// SaveSettings persists the analyzer configuration wholesale.
func (c *Client) SaveSettings(ctx context.Context, settings models.Settings) error {
	return c.do(ctx, http.MethodPost, "/api/settings", settings, nil)
}

// Stats fetches the analyzer's counter snapshot.
func (c *Client) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &stats); err != nil {
		return models.Stats{}, err
	}
	return stats, nil
}
