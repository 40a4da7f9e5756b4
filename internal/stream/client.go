// Package stream maintains the push channel to the analyzer service. One
// connection, one reader goroutine; on any failure the client waits the
// configured delay and dials again until its context is cancelled.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"volumewatch/config"
	"volumewatch/internal/metrics"
	"volumewatch/internal/notify"
	"volumewatch/internal/state"
	"volumewatch/logger"
	"volumewatch/models"
)

// WatchlistRefresher re-fetches the watchlist resource when the channel
// signals a server-side change.
type WatchlistRefresher interface {
	RefreshWatchlist(ctx context.Context) error
}

// Client owns the websocket connection and applies inbound frames to the
// store. Frames are dispatched sequentially in arrival order; a malformed
// frame is counted and skipped without touching the state.
type Client struct {
	config    *config.Config
	store     *state.Store
	refresher WatchlistRefresher
	notifier  notify.Notifier

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewClient(cfg *config.Config, store *state.Store, refresher WatchlistRefresher, notifier notify.Notifier) *Client {
	return &Client{
		config:    cfg,
		store:     store,
		refresher: refresher,
		notifier:  notifier,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
	}
}

// Start launches the connection loop. If the channel drops it will be
// re-established automatically until the context is cancelled.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("stream client already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	wsURL := c.config.Backend.WebSocketURL()
	if wsURL == "" {
		return fmt.Errorf("cannot derive push channel url from backend base url")
	}

	log := c.log.WithComponent("stream").WithFields(logger.Fields{"url": wsURL})
	log.Info("starting push channel client")
	c.wg.Add(1)
	go c.run(wsURL)
	log.Info("push channel client started successfully")
	return nil
}

// Stop waits for the connection loop to observe context cancellation.
func (c *Client) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.log.WithComponent("stream").Info("stopping push channel client")
	c.wg.Wait()
	c.log.WithComponent("stream").Info("push channel client stopped")
}

// run handles the websocket lifecycle, reconnection and frame dispatch.
func (c *Client) run(wsURL string) {
	defer c.wg.Done()
	log := c.log.WithComponent("stream").WithFields(logger.Fields{"worker": "push_channel"})

	for {
		if c.ctx.Err() != nil {
			return
		}

		dialer := websocket.Dialer{HandshakeTimeout: c.config.Stream.HandshakeTimeout}
		conn, _, err := dialer.DialContext(c.ctx, wsURL, nil)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("failed to connect push channel, retrying")
			metrics.IncrementReconnect()
			select {
			case <-time.After(c.config.Stream.ReconnectDelay):
				continue
			case <-c.ctx.Done():
				return
			}
		}

		if c.config.Stream.MaxMessageSize > 0 {
			conn.SetReadLimit(c.config.Stream.MaxMessageSize)
		}

		c.store.SetConnected(true)
		log.Info("push channel connected")

		// unblock the read when the context is cancelled
		done := make(chan struct{})
		go func() {
			select {
			case <-done:
			case <-c.ctx.Done():
				conn.Close()
			}
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				close(done)
				conn.Close()
				c.store.SetConnected(false)
				if c.ctx.Err() != nil {
					return
				}
				log.WithError(err).Warn("push channel read error, reconnecting")
				break
			}
			c.handleFrame(raw)
		}

		metrics.IncrementReconnect()
		select {
		case <-time.After(c.config.Stream.ReconnectDelay):
		case <-c.ctx.Done():
			return
		}
	}
}

// handleFrame decodes one inbound frame and applies it to the store. Errors
// never propagate: a bad frame is logged and dropped, the connection lives on.
func (c *Client) handleFrame(raw []byte) {
	log := c.log.WithComponent("stream")

	frameType, err := models.DecodeEnvelope(raw)
	if err != nil {
		log.WithError(err).Warn("dropping malformed frame")
		metrics.IncrementParseError()
		return
	}
	metrics.IncrementFrame(string(frameType))

	switch frameType {
	case models.FrameConnectionStatus:
		var frame models.ConnectionStatusFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.dropFrame(frameType, err)
			return
		}
		c.store.SetPairsCount(frame.PairsCount)
		log.WithFields(logger.Fields{"status": frame.Status, "pairs_count": frame.PairsCount}).Debug("backend connection status")

	case models.FrameKlineUpdate:
		var frame models.KlineUpdateFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.dropFrame(frameType, err)
			return
		}
		if frame.Symbol == "" {
			c.dropFrame(frameType, fmt.Errorf("kline update without symbol"))
			return
		}
		c.store.ApplyTick(models.LiveTick{
			Symbol:    frame.Symbol,
			Data:      frame.Data,
			Timestamp: frame.Timestamp,
		})
		if frame.Alert != nil {
			alert := *frame.Alert
			if alert.Symbol == "" {
				alert.Symbol = frame.Symbol
			}
			c.store.ApplyAlert(alert)
			metrics.IncrementAlert(alert.IsGrouped)
			if c.notifier != nil {
				c.notifier.Notify(alert)
			}
		}

	case models.FrameWatchlistUpdated:
		var frame models.WatchlistUpdatedFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.dropFrame(frameType, err)
			return
		}
		if err := c.refresher.RefreshWatchlist(c.ctx); err != nil {
			log.WithError(err).WithFields(logger.Fields{"action": frame.Action}).Warn("failed to refresh watchlist after push update")
		}

	case models.FrameAlertDeleted:
		var frame models.AlertDeletedFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.dropFrame(frameType, err)
			return
		}
		c.store.RemoveGroup(frame.GroupID)

	case models.FrameAlertsCleared:
		c.store.ClearGroups()

	case models.FrameSettingsUpdated:
		var frame models.SettingsUpdatedFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.dropFrame(frameType, err)
			return
		}
		c.store.SetSettings(frame.Data)

	case models.FramePong:
		// keepalive response, nothing to apply

	default:
		log.WithFields(logger.Fields{"frame_type": frameType}).Debug("ignoring unknown frame type")
	}
}

func (c *Client) dropFrame(frameType models.FrameType, err error) {
	c.log.WithComponent("stream").WithError(err).WithFields(logger.Fields{"frame_type": frameType}).Warn("dropping malformed frame")
	metrics.IncrementParseError()
}
