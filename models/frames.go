package models

import (
	"encoding/json"
	"fmt"
)

// FrameType tags a push channel envelope. The set is closed; frames with an
// unlisted type are ignored by the stream client.
type FrameType string

const (
	FrameConnectionStatus FrameType = "connection_status"
	FrameKlineUpdate      FrameType = "kline_update"
	FrameWatchlistUpdated FrameType = "watchlist_updated"
	FrameAlertDeleted     FrameType = "alert_deleted"
	FrameAlertsCleared    FrameType = "alerts_cleared"
	FrameSettingsUpdated  FrameType = "settings_updated"
	FramePong             FrameType = "pong"
)

// Envelope carries only the type tag of an inbound frame. The payload is
// decoded a second time into the concrete frame struct once the tag is known.
type Envelope struct {
	Type FrameType `json:"type"`
}

// ConnectionStatusFrame reports the backend's own upstream subscription state.
type ConnectionStatusFrame struct {
	Type       FrameType `json:"type"`
	Status     string    `json:"status"`
	PairsCount int       `json:"pairs_count"`
}

// KlineUpdateFrame carries one OHLCV update for a symbol, optionally with an
// embedded volume alert detected for that candle.
type KlineUpdateFrame struct {
	Type      FrameType `json:"type"`
	Symbol    string    `json:"symbol"`
	Data      Kline     `json:"data"`
	Timestamp Timestamp `json:"timestamp"`
	Alert     *Alert    `json:"alert,omitempty"`
}

// WatchlistUpdatedFrame signals that the server-side watchlist changed. The
// client re-fetches the whole resource rather than merging the action payload.
type WatchlistUpdatedFrame struct {
	Type   FrameType `json:"type"`
	Action string    `json:"action"`
	Symbol string    `json:"symbol,omitempty"`
}

// AlertDeletedFrame signals that one alert group was removed on the server.
type AlertDeletedFrame struct {
	Type    FrameType `json:"type"`
	GroupID int64     `json:"group_id"`
}

// SettingsUpdatedFrame carries the full settings object after a save.
type SettingsUpdatedFrame struct {
	Type FrameType `json:"type"`
	Data Settings  `json:"data"`
}

// DecodeEnvelope extracts the type tag from a raw frame.
func DecodeEnvelope(raw []byte) (FrameType, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("failed to decode frame envelope: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("frame has no type tag")
	}
	return env.Type, nil
}
