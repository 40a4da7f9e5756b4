package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"volumewatch/config"
	"volumewatch/internal/notify"
	"volumewatch/internal/state"
	"volumewatch/models"
)

var upgrader = websocket.Upgrader{}

type fakeRefresher struct {
	calls int64
}

func (f *fakeRefresher) RefreshWatchlist(ctx context.Context) error {
	atomic.AddInt64(&f.calls, 1)
	return nil
}

func streamConfig(baseURL string) *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{BaseURL: baseURL},
		Stream: config.StreamConfig{
			ReconnectDelay:   20 * time.Millisecond,
			HandshakeTimeout: time.Second,
			MaxMessageSize:   1 << 20,
		},
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestClientAppliesFrames(t *testing.T) {
	frames := []string{
		`{"type":"connection_status","status":"connected","pairs_count":12}`,
		`{"type":"kline_update","symbol":"BTCUSDT","data":{"start":1700000000000,"end":1700000060000,"open":"100","high":"115","low":"99","close":"110","volume":"2000"},"timestamp":"2023-11-14T22:13:20","alert":{"symbol":"BTCUSDT","alert_type":"volume_spike","price":110,"volume_ratio":3.0,"is_grouped":false,"timestamp":"2023-11-14T22:13:20"}}`,
		`{"type":"settings_updated","data":{"volume_analyzer":{"volume_multiplier":4.0},"price_filter":{},"telegram":{"enabled":true}}}`,
		`{"type":"watchlist_updated","action":"added","symbol":"SOLUSDT"}`,
		`{"type":"pong"}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, frame := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(frame))
		}
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	store := state.NewStore(50, 100)
	refresher := &fakeRefresher{}
	client := NewClient(streamConfig(server.URL), store, refresher, notify.NewLogNotifier(false, store))

	ctx, cancel := context.WithCancel(context.Background())
	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, func() bool {
		return store.PairsCount() == 12 &&
			len(store.Ticks()) == 1 &&
			len(store.Groups()) == 1 &&
			atomic.LoadInt64(&refresher.calls) >= 1
	}, "frames to be applied")

	if !store.Connected() {
		t.Error("connected flag not set")
	}
	if settings, ok := store.Settings(); !ok || settings.VolumeAnalyzer.VolumeMultiplier != 4.0 {
		t.Errorf("settings frame not applied: %+v ok=%v", settings, ok)
	}
	if stats := store.Stats(); stats.TotalCandles != 1 || stats.AlertsCount != 1 {
		t.Errorf("counters not updated: %+v", stats)
	}

	cancel()
	client.Stop()
}

func TestClientDeletesAndClearsGroups(t *testing.T) {
	frames := []string{
		`{"type":"alert_deleted","group_id":42}`,
		`{"type":"alerts_cleared"}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, frame := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(frame))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	store := state.NewStore(50, 100)
	store.ReplaceGroups([]models.AlertGroup{
		{ID: 42, Symbol: "BTCUSDT", IsActive: true},
		{ID: 43, Symbol: "ETHUSDT", IsActive: true},
	})
	store.ToggleExpanded(42)
	store.SetGroupDetails(42, []models.Alert{{Symbol: "BTCUSDT"}})

	client := NewClient(streamConfig(server.URL), store, &fakeRefresher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, func() bool { return len(store.Groups()) == 0 }, "groups to be cleared")

	if store.IsExpanded(42) {
		t.Error("expansion state survived the clear")
	}
	if _, ok := store.GroupDetails(42); ok {
		t.Error("detail cache survived the clear")
	}

	cancel()
	client.Stop()
}

func TestClientToleratesMalformedFrames(t *testing.T) {
	frames := []string{
		`this is not json`,
		`{"no_type_tag":true}`,
		`{"type":"kline_update","symbol":123}`,
		`{"type":"connection_status","status":"connected","pairs_count":7}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, frame := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(frame))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	store := state.NewStore(50, 100)
	client := NewClient(streamConfig(server.URL), store, &fakeRefresher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// the good frame after the bad ones still gets through
	waitFor(t, func() bool { return store.PairsCount() == 7 }, "valid frame after malformed ones")

	if len(store.Ticks()) != 0 {
		t.Errorf("malformed kline frame must not create state: %+v", store.Ticks())
	}

	cancel()
	client.Stop()
}

func TestClientReconnectsAfterDisconnect(t *testing.T) {
	var connections int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt64(&connections, 1)
		conn.Close()
	}))
	defer server.Close()

	store := state.NewStore(50, 100)
	client := NewClient(streamConfig(server.URL), store, &fakeRefresher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, func() bool { return atomic.LoadInt64(&connections) >= 3 }, "repeated reconnects")

	if store.Connected() {
		t.Error("connected flag should be false after server-side close")
	}

	cancel()
	client.Stop()
}

func TestClientStopCancelsReconnect(t *testing.T) {
	var connections int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt64(&connections, 1)
		conn.Close()
	}))
	defer server.Close()

	store := state.NewStore(50, 100)
	cfg := streamConfig(server.URL)
	cfg.Stream.ReconnectDelay = 50 * time.Millisecond
	client := NewClient(cfg, store, &fakeRefresher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, func() bool { return atomic.LoadInt64(&connections) >= 1 }, "first connection")

	cancel()
	client.Stop()

	settled := atomic.LoadInt64(&connections)
	time.Sleep(200 * time.Millisecond)
	if got := atomic.LoadInt64(&connections); got != settled {
		t.Errorf("reconnects continued after Stop: %d -> %d", settled, got)
	}
}

func TestClientRejectsDoubleStart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := NewClient(streamConfig(server.URL), state.NewStore(50, 100), &fakeRefresher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := client.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}

	cancel()
	client.Stop()
}
