package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"volumewatch/internal/state"
	"volumewatch/logger"
)

// Refresher performs the initial batch load of every REST resource into the
// store and keeps the stats snapshot fresh afterwards. The initial fetches
// run concurrently and tolerate any interleaving of their completions.
type Refresher struct {
	client   *Client
	store    *state.Store
	interval time.Duration

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewRefresher(client *Client, store *state.Store, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Refresher{
		client:   client,
		store:    store,
		interval: interval,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start kicks off the initial load and the periodic stats refresh.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("refresher")
	log.Info("starting initial resource load")

	loaders := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"watchlist", r.refreshWatchlist},
		{"alerts", r.refreshAlertGroups},
		{"settings", r.refreshSettings},
		{"stats", r.refreshStats},
	}
	for _, loader := range loaders {
		r.wg.Add(1)
		go func(name string, fn func(context.Context) error) {
			defer r.wg.Done()
			if err := fn(ctx); err != nil {
				log.WithError(err).WithFields(logger.Fields{"resource": name}).Warn("initial load failed")
			}
		}(loader.name, loader.fn)
	}

	r.wg.Add(1)
	go r.statsWorker()

	log.Info("refresher started successfully")
	return nil
}

// Stop waits for the workers to observe context cancellation.
func (r *Refresher) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("refresher").Info("stopping refresher")
	r.wg.Wait()
	r.log.WithComponent("refresher").Info("refresher stopped")
}

func (r *Refresher) statsWorker() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log := r.log.WithComponent("refresher").WithFields(logger.Fields{"worker": "stats"})

	for {
		select {
		case <-r.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-ticker.C:
			if err := r.refreshStats(r.ctx); err != nil {
				log.WithError(err).Warn("failed to refresh stats")
			}
		}
	}
}

// RefreshWatchlist re-fetches the watchlist and replaces the stored copy.
// Called for the initial load and again on every watchlist_updated frame.
func (r *Refresher) RefreshWatchlist(ctx context.Context) error {
	return r.refreshWatchlist(ctx)
}

func (r *Refresher) refreshWatchlist(ctx context.Context) error {
	items, err := r.client.Watchlist(ctx)
	if err != nil {
		return err
	}
	r.store.ReplaceWatchlist(items)
	return nil
}

func (r *Refresher) refreshAlertGroups(ctx context.Context) error {
	groups, err := r.client.AlertGroups(ctx)
	if err != nil {
		return err
	}
	r.store.ReplaceGroups(groups)
	return nil
}

func (r *Refresher) refreshSettings(ctx context.Context) error {
	settings, err := r.client.Settings(ctx)
	if err != nil {
		return err
	}
	r.store.SetSettings(settings)
	return nil
}

func (r *Refresher) refreshStats(ctx context.Context) error {
	stats, err := r.client.Stats(ctx)
	if err != nil {
		return err
	}
	r.store.MergeServerStats(stats)
	return nil
}
