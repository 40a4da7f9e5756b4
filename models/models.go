package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Timestamp tolerates the backend's timezone-less ISO timestamps. A value
// that fails every layout decodes as the zero time instead of an error so one
// bad field never rejects a whole record.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.Time.Format(time.RFC3339Nano) + `"`), nil
}

// Kline is one OHLCV candle as the backend transmits it: numeric fields are
// decimal strings, start/end are millisecond timestamps.
type Kline struct {
	Start  int64  `json:"start"`
	End    int64  `json:"end"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// IsLong reports whether the candle closed above its open. Unparsable values
// count as not long.
func (k Kline) IsLong() bool {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return false
	}
	close, err := decimal.NewFromString(k.Close)
	if err != nil {
		return false
	}
	return close.GreaterThan(open)
}

// QuoteVolume returns the candle's traded volume in quote currency
// (volume * close).
func (k Kline) QuoteVolume() (decimal.Decimal, error) {
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return decimal.Zero, err
	}
	close, err := decimal.NewFromString(k.Close)
	if err != nil {
		return decimal.Zero, err
	}
	return volume.Mul(close), nil
}

// LiveTick is the latest candle seen for one symbol.
type LiveTick struct {
	Symbol    string    `json:"symbol"`
	Data      Kline     `json:"data"`
	Timestamp Timestamp `json:"timestamp"`
}

// Alert marks a candle whose quote volume exceeded the configured multiple of
// its recent average. IsGrouped reports whether the server folded it into an
// existing group instead of opening a new one.
type Alert struct {
	ID                int64     `json:"id,omitempty"`
	GroupID           int64     `json:"group_id,omitempty"`
	Symbol            string    `json:"symbol"`
	AlertType         string    `json:"alert_type"`
	Price             float64   `json:"price"`
	VolumeRatio       float64   `json:"volume_ratio"`
	CurrentVolumeUSDT float64   `json:"current_volume_usdt"`
	AverageVolumeUSDT float64   `json:"average_volume_usdt"`
	Message           string    `json:"message"`
	IsGrouped         bool      `json:"is_grouped,omitempty"`
	GroupCount        int       `json:"group_count,omitempty"`
	Timestamp         Timestamp `json:"timestamp"`
	CreatedAt         Timestamp `json:"created_at,omitempty"`
}

// AlertGroup is the server-side aggregation of consecutive alerts for one
// symbol within the grouping window.
type AlertGroup struct {
	ID             int64     `json:"id"`
	Symbol         string    `json:"symbol"`
	AlertType      string    `json:"alert_type"`
	FirstAlertTime Timestamp `json:"first_alert_time"`
	LastAlertTime  Timestamp `json:"last_alert_time"`
	AlertCount     int       `json:"alert_count"`
	MaxVolumeRatio float64   `json:"max_volume_ratio"`
	MaxPrice       float64   `json:"max_price"`
	MaxVolumeUSDT  float64   `json:"max_volume_usdt"`
	IsActive       bool      `json:"is_active"`
}

// WatchlistItem is one tracked pair selected by the price-drop filter.
type WatchlistItem struct {
	ID                  int64     `json:"id"`
	Symbol              string    `json:"symbol"`
	IsActive            bool      `json:"is_active"`
	PriceDropPercentage float64   `json:"price_drop_percentage"`
	CurrentPrice        float64   `json:"current_price"`
	HistoricalPrice     float64   `json:"historical_price"`
	CreatedAt           Timestamp `json:"created_at"`
	UpdatedAt           Timestamp `json:"updated_at"`
}

// Settings mirrors the analyzer configuration, loaded once at startup and
// overwritten wholesale on save. Telegram credentials stay backend-side; only
// the enabled flag is reflected here.
type Settings struct {
	VolumeAnalyzer VolumeAnalyzerSettings `json:"volume_analyzer"`
	PriceFilter    PriceFilterSettings    `json:"price_filter"`
	Telegram       TelegramSettings       `json:"telegram"`
}

type VolumeAnalyzerSettings struct {
	AnalysisHours        int     `json:"analysis_hours"`
	OffsetMinutes        int     `json:"offset_minutes"`
	VolumeMultiplier     float64 `json:"volume_multiplier"`
	MinVolumeUSDT        float64 `json:"min_volume_usdt"`
	AlertGroupingMinutes int     `json:"alert_grouping_minutes"`
}

type PriceFilterSettings struct {
	PriceCheckIntervalMinutes int     `json:"price_check_interval_minutes"`
	PriceHistoryDays          int     `json:"price_history_days"`
	PriceDropPercentage       float64 `json:"price_drop_percentage"`
}

type TelegramSettings struct {
	Enabled bool `json:"enabled"`
}

// Stats is the analyzer's scalar counter snapshot.
type Stats struct {
	TotalCandles int64  `json:"total_candles"`
	LongCandles  int64  `json:"long_candles"`
	AlertsCount  int64  `json:"alerts_count"`
	PairsCount   int    `json:"pairs_count"`
	LastUpdate   string `json:"last_update,omitempty"`
}
