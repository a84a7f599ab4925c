package grants

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/charlesng35/scopegrant/pkg/logger"
	"github.com/charlesng35/scopegrant/pkg/metrics"
)

const defaultJanitorSchedule = "@every 5m"

// Janitor periodically purges expired grant rows. Expired rows are already
// invisible to checks; the sweep only reclaims storage.
type Janitor struct {
	store    *Store
	cron     *cron.Cron
	schedule string
	log      *zap.Logger
}

// NewJanitor constructs a janitor with the given cron schedule expression.
// An empty schedule uses the default five minute sweep.
func NewJanitor(store *Store, schedule string) (*Janitor, error) {
	if store == nil {
		return nil, errors.New("grants: store is required")
	}
	if schedule == "" {
		schedule = defaultJanitorSchedule
	}

	return &Janitor{
		store:    store,
		cron:     cron.New(),
		schedule: schedule,
		log:      logger.WithModule("grants.janitor"),
	}, nil
}

// Start registers the sweep and begins the schedule.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		j.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.log.Info("expiry janitor started", zap.String("schedule", j.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
	j.log.Info("expiry janitor stopped")
}

// Sweep deletes lapsed rows once. Exposed for on-demand purges.
func (j *Janitor) Sweep(ctx context.Context) {
	purged, err := j.store.DeleteExpired(ctx)
	if err != nil {
		j.log.Error("expired grant sweep failed", zap.Error(err))
		return
	}
	if purged > 0 {
		metrics.ExpiredGrantsPurged.Add(float64(purged))
		j.log.Info("purged expired grants", zap.Int64("count", purged))
	}
}
