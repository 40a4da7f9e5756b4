package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"volumewatch/config"
	"volumewatch/models"
)

func testBackendConfig(url string) config.BackendConfig {
	return config.BackendConfig{
		BaseURL: url,
		Timeout: 5 * time.Second,
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond: 100,
			BurstSize:         100,
		},
	}
}

func TestWatchlist(t *testing.T) {
	var gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/watchlist" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotRequestID = r.Header.Get("X-Request-ID")
		fmt.Fprint(w, `{"pairs":[{"id":1,"symbol":"BTCUSDT","is_active":true,"price_drop_percentage":12.5}]}`)
	}))
	defer server.Close()

	client := NewClient(testBackendConfig(server.URL))
	items, err := client.Watchlist(context.Background())
	if err != nil {
		t.Fatalf("Watchlist failed: %v", err)
	}
	if len(items) != 1 || items[0].Symbol != "BTCUSDT" || !items[0].IsActive {
		t.Fatalf("unexpected watchlist: %+v", items)
	}
	if gotRequestID == "" {
		t.Error("request correlation header missing")
	}
}

func TestAddWatchlistItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/watchlist" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["symbol"] != "SOLUSDT" {
			t.Errorf("unexpected body: %v", body)
		}
		fmt.Fprint(w, `{"status":"success"}`)
	}))
	defer server.Close()

	client := NewClient(testBackendConfig(server.URL))
	if err := client.AddWatchlistItem(context.Background(), "SOLUSDT"); err != nil {
		t.Fatalf("AddWatchlistItem failed: %v", err)
	}
}

func TestUpdateWatchlistItemPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/watchlist/7" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprint(w, `{"status":"success"}`)
	}))
	defer server.Close()

	client := NewClient(testBackendConfig(server.URL))
	item := models.WatchlistItem{ID: 7, Symbol: "BTCUSDT", IsActive: false}
	if err := client.UpdateWatchlistItem(context.Background(), item); err != nil {
		t.Fatalf("UpdateWatchlistItem failed: %v", err)
	}
}

func TestAlertGroupsAndDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/alerts":
			fmt.Fprint(w, `{"alert_groups":[{"id":42,"symbol":"BTCUSDT","alert_count":3,"is_active":true}]}`)
		case "/api/alerts/42/details":
			fmt.Fprint(w, `{"alerts":[{"id":1,"group_id":42,"symbol":"BTCUSDT","volume_ratio":2.5}]}`)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(testBackendConfig(server.URL))

	groups, err := client.AlertGroups(context.Background())
	if err != nil {
		t.Fatalf("AlertGroups failed: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != 42 || groups[0].AlertCount != 3 {
		t.Fatalf("unexpected groups: %+v", groups)
	}

	alerts, err := client.AlertDetails(context.Background(), 42)
	if err != nil {
		t.Fatalf("AlertDetails failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].GroupID != 42 {
		t.Fatalf("unexpected details: %+v", alerts)
	}
}

func TestDeleteAndClearAlerts(t *testing.T) {
	var deleted, cleared bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method: %s", r.Method)
		}
		switch r.URL.Path {
		case "/api/alerts/42":
			deleted = true
		case "/api/alerts":
			cleared = true
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"status":"success"}`)
	}))
	defer server.Close()

	client := NewClient(testBackendConfig(server.URL))
	if err := client.DeleteAlertGroup(context.Background(), 42); err != nil {
		t.Fatalf("DeleteAlertGroup failed: %v", err)
	}
	if err := client.ClearAlerts(context.Background()); err != nil {
		t.Fatalf("ClearAlerts failed: %v", err)
	}
	if !deleted || !cleared {
		t.Fatalf("backend not called: deleted=%v cleared=%v", deleted, cleared)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `{"volume_analyzer":{"volume_multiplier":2.0,"alert_grouping_minutes":5},"price_filter":{"price_drop_percentage":10.0},"telegram":{"enabled":true}}`)
		case http.MethodPost:
			var settings models.Settings
			if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
				t.Errorf("decode settings: %v", err)
			}
			if settings.VolumeAnalyzer.VolumeMultiplier != 3.0 {
				t.Errorf("unexpected settings payload: %+v", settings)
			}
			fmt.Fprint(w, `{"status":"success"}`)
		}
	}))
	defer server.Close()

	client := NewClient(testBackendConfig(server.URL))

	settings, err := client.Settings(context.Background())
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if !settings.Telegram.Enabled || settings.VolumeAnalyzer.AlertGroupingMinutes != 5 {
		t.Fatalf("unexpected settings: %+v", settings)
	}

	settings.VolumeAnalyzer.VolumeMultiplier = 3.0
	if err := client.SaveSettings(context.Background(), settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
}

func TestStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"total_candles":100,"long_candles":40,"alerts_count":7,"pairs_count":12}`)
	}))
	defer server.Close()

	client := NewClient(testBackendConfig(server.URL))
	stats, err := client.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalCandles != 100 || stats.PairsCount != 12 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestErrorStatusSurfacesAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"boom"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(testBackendConfig(server.URL))
	if _, err := client.Watchlist(context.Background()); err == nil {
		t.Fatal("expected error for 500 response")
	}
	if err := client.DeleteAlertGroup(context.Background(), 1); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
