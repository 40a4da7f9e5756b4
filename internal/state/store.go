// Package state holds the client's mirror of the analyzer service: the
// latest tick per symbol, the alert group list, the watchlist, settings and
// running stats. Everything here is rebuilt from the network on startup;
// nothing is durable.
package state

import (
	"sort"
	"sync"

	"volumewatch/models"
)

const (
	defaultTickLimit  = 50
	defaultGroupLimit = 100
)

// Store retains a bounded snapshot of the analyzer state. It is safe for
// concurrent use: the stream client writes while the dashboard reads.
type Store struct {
	mu sync.RWMutex

	tickLimit  int
	groupLimit int

	connected  bool
	pairsCount int

	ticks map[string]models.LiveTick

	groups   []models.AlertGroup
	expanded map[int64]struct{}
	details  map[int64][]models.Alert

	watchlist []models.WatchlistItem
	editing   *models.WatchlistItem

	settings    models.Settings
	hasSettings bool

	stats models.Stats
}

func NewStore(tickLimit, groupLimit int) *Store {
	if tickLimit <= 0 {
		tickLimit = defaultTickLimit
	}
	if groupLimit <= 0 {
		groupLimit = defaultGroupLimit
	}
	return &Store{
		tickLimit:  tickLimit,
		groupLimit: groupLimit,
		ticks:      make(map[string]models.LiveTick),
		expanded:   make(map[int64]struct{}),
		details:    make(map[int64][]models.Alert),
	}
}

// SetConnected records the push channel state.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// SetPairsCount records the tracked-pair count reported by the backend.
func (s *Store) SetPairsCount(count int) {
	s.mu.Lock()
	s.pairsCount = count
	s.stats.PairsCount = count
	s.mu.Unlock()
}

func (s *Store) PairsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pairsCount
}

// ApplyTick upserts the latest candle for the tick's symbol and updates the
// candle counters. The map keeps at most one entry per symbol and is pruned
// to the configured limit, oldest first.
func (s *Store) ApplyTick(tick models.LiveTick) {
	if tick.Symbol == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks[tick.Symbol] = tick

	s.stats.TotalCandles++
	if tick.Data.IsLong() {
		s.stats.LongCandles++
	}

	if len(s.ticks) <= s.tickLimit {
		return
	}

	ordered := s.sortedTicksLocked()
	for _, stale := range ordered[s.tickLimit:] {
		delete(s.ticks, stale.Symbol)
	}
}

// Ticks returns the retained ticks ordered by timestamp descending.
func (s *Store) Ticks() []models.LiveTick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedTicksLocked()
}

func (s *Store) sortedTicksLocked() []models.LiveTick {
	out := make([]models.LiveTick, 0, len(s.ticks))
	for _, tick := range s.ticks {
		out = append(out, tick)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Timestamp.Time, out[j].Timestamp.Time
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		if out[i].Data.Start != out[j].Data.Start {
			return out[i].Data.Start > out[j].Data.Start
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// ApplyAlert folds a push-embedded alert into the group list. The server has
// already made the grouping decision: a grouped alert updates the open group
// for its symbol in place, a first-occurrence alert opens a new group at the
// head of the list. Groups opened from push events carry a zero id until the
// next full refetch assigns the server's one.
func (s *Store) ApplyAlert(alert models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.AlertsCount++

	if alert.IsGrouped {
		for i := range s.groups {
			if s.groups[i].Symbol != alert.Symbol || !s.groups[i].IsActive {
				continue
			}
			group := s.groups[i]
			group.LastAlertTime = alert.Timestamp
			if alert.GroupCount > group.AlertCount {
				group.AlertCount = alert.GroupCount
			} else {
				group.AlertCount++
			}
			if alert.VolumeRatio > group.MaxVolumeRatio {
				group.MaxVolumeRatio = alert.VolumeRatio
			}
			if alert.Price > group.MaxPrice {
				group.MaxPrice = alert.Price
			}
			if alert.CurrentVolumeUSDT > group.MaxVolumeUSDT {
				group.MaxVolumeUSDT = alert.CurrentVolumeUSDT
			}
			// keep most-recent-first ordering
			copy(s.groups[1:i+1], s.groups[:i])
			s.groups[0] = group
			return
		}
		// no open group to fold into; fall through and open one
	}

	group := models.AlertGroup{
		Symbol:         alert.Symbol,
		AlertType:      alert.AlertType,
		FirstAlertTime: alert.Timestamp,
		LastAlertTime:  alert.Timestamp,
		AlertCount:     1,
		MaxVolumeRatio: alert.VolumeRatio,
		MaxPrice:       alert.Price,
		MaxVolumeUSDT:  alert.CurrentVolumeUSDT,
		IsActive:       true,
	}
	if alert.GroupCount > 1 {
		group.AlertCount = alert.GroupCount
	}

	s.groups = append([]models.AlertGroup{group}, s.groups...)
	if len(s.groups) > s.groupLimit {
		s.groups = s.groups[:s.groupLimit]
	}
}

// ReplaceGroups installs the server's group list, most recent first.
func (s *Store) ReplaceGroups(groups []models.AlertGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.groups = append([]models.AlertGroup(nil), groups...)
	if len(s.groups) > s.groupLimit {
		s.groups = s.groups[:s.groupLimit]
	}
}

func (s *Store) Groups() []models.AlertGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.AlertGroup, len(s.groups))
	copy(out, s.groups)
	return out
}

// RemoveGroup deletes a group from the ordered list, the expanded set and
// the detail cache.
func (s *Store) RemoveGroup(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.groups {
		if s.groups[i].ID == id {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			break
		}
	}
	delete(s.expanded, id)
	delete(s.details, id)
}

// ClearGroups drops every group along with all expansion and detail state.
func (s *Store) ClearGroups() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.groups = nil
	s.expanded = make(map[int64]struct{})
	s.details = make(map[int64][]models.Alert)
}

// ToggleExpanded flips the expansion state of a group. needsFetch reports
// whether the caller should load the detail list: true only on the first
// expansion of an id whose details are not cached yet.
func (s *Store) ToggleExpanded(id int64) (expanded, needsFetch bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expanded[id]; ok {
		delete(s.expanded, id)
		return false, false
	}
	s.expanded[id] = struct{}{}
	_, cached := s.details[id]
	return true, !cached
}

func (s *Store) IsExpanded(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.expanded[id]
	return ok
}

// SetGroupDetails caches the constituent alerts for a group.
func (s *Store) SetGroupDetails(id int64, alerts []models.Alert) {
	s.mu.Lock()
	s.details[id] = append([]models.Alert(nil), alerts...)
	s.mu.Unlock()
}

func (s *Store) GroupDetails(id int64) ([]models.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts, ok := s.details[id]
	if !ok {
		return nil, false
	}
	out := make([]models.Alert, len(alerts))
	copy(out, alerts)
	return out, true
}

// ReplaceWatchlist installs a fresh watchlist snapshot. Push updates trigger
// a full refetch, so there is no incremental merge path.
func (s *Store) ReplaceWatchlist(items []models.WatchlistItem) {
	s.mu.Lock()
	s.watchlist = append([]models.WatchlistItem(nil), items...)
	s.mu.Unlock()
}

func (s *Store) Watchlist() []models.WatchlistItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.WatchlistItem, len(s.watchlist))
	copy(out, s.watchlist)
	return out
}

// BeginEdit marks one watchlist item as under edit. Starting an edit
// replaces any previous one; at most one item is editable at a time.
func (s *Store) BeginEdit(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.watchlist {
		if s.watchlist[i].ID == id {
			item := s.watchlist[i]
			s.editing = &item
			return true
		}
	}
	return false
}

func (s *Store) Editing() (models.WatchlistItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.editing == nil {
		return models.WatchlistItem{}, false
	}
	return *s.editing, true
}

// ClearEdit drops the edit state. Called after a confirmed save or a cancel.
func (s *Store) ClearEdit() {
	s.mu.Lock()
	s.editing = nil
	s.mu.Unlock()
}

// SetSettings overwrites the mirrored settings wholesale.
func (s *Store) SetSettings(settings models.Settings) {
	s.mu.Lock()
	s.settings = settings
	s.hasSettings = true
	s.mu.Unlock()
}

func (s *Store) Settings() (models.Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, s.hasSettings
}

// MergeServerStats replaces the counters with the server's authoritative
// snapshot. Live ticks keep incrementing on top of it until the next refresh.
func (s *Store) MergeServerStats(stats models.Stats) {
	s.mu.Lock()
	if stats.PairsCount == 0 {
		stats.PairsCount = s.pairsCount
	} else {
		s.pairsCount = stats.PairsCount
	}
	s.stats = stats
	s.mu.Unlock()
}

func (s *Store) Stats() models.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
