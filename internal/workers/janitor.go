package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/situation-monitor/internal/database"
	"github.com/benvon/situation-monitor/internal/queue"
)

// DefaultJanitorInterval is how often stale analyses are purged.
const DefaultJanitorInterval = time.Hour

type analysisPurger struct {
	store database.UserAnalysisAdmin
	now   func() time.Time
}

func (p analysisPurger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	n, err := p.store.PurgeOlderThan(ctx, p.now().Add(-retention))
	return int(n), err
}

// NewJanitor returns a collector that deletes user_analysis rows not updated
// within retention.
func NewJanitor(store database.UserAnalysisAdmin, interval, retention time.Duration, log *zap.Logger) *queue.GarbageCollector {
	return queue.NewGarbageCollector("analyses", analysisPurger{store: store, now: time.Now}, interval, retention, log)
}
