// Package notify surfaces first-occurrence alerts outside the dashboard.
// Follow-up alerts folded into an existing group are deliberately quiet so a
// busy symbol does not flood the operator.
package notify

import (
	"fmt"

	"volumewatch/logger"
	"volumewatch/models"
)

// Notifier receives alerts the stream client considers noteworthy.
type Notifier interface {
	Notify(alert models.Alert)
}

// SettingsSource exposes the mirrored analyzer settings. The telegram enabled
// flag is consulted on every notification so a settings save or a
// settings_updated frame takes effect immediately.
type SettingsSource interface {
	Settings() (models.Settings, bool)
}

// LogNotifier writes notifications through the structured log. It is the
// headless stand-in for a desktop popup: one line per new alert group,
// nothing for grouped follow-ups, and silence when notifications are switched
// off locally or disabled in the mirrored settings.
type LogNotifier struct {
	enabled  bool
	settings SettingsSource
	log      *logger.Log
}

func NewLogNotifier(enabled bool, settings SettingsSource) *LogNotifier {
	return &LogNotifier{
		enabled:  enabled,
		settings: settings,
		log:      logger.GetLogger(),
	}
}

func (n *LogNotifier) Notify(alert models.Alert) {
	if !n.enabled || alert.IsGrouped {
		return
	}
	if n.settings != nil {
		if settings, ok := n.settings.Settings(); ok && !settings.Telegram.Enabled {
			return
		}
	}

	message := alert.Message
	if message == "" {
		message = fmt.Sprintf("volume spike on %s: %.1fx average", alert.Symbol, alert.VolumeRatio)
	}

	n.log.WithComponent("notify").WithFields(logger.Fields{
		"symbol":       alert.Symbol,
		"alert_type":   alert.AlertType,
		"volume_ratio": alert.VolumeRatio,
		"price":        alert.Price,
	}).Info(message)
}
