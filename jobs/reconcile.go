package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/altamar-retail/altamar-retail/internal/clients"
	"github.com/altamar-retail/altamar-retail/internal/inventory"
	"github.com/altamar-retail/altamar-retail/internal/shared"
)

// ReconcileReportKey is the redis key holding the last reconciliation report.
const ReconcileReportKey = "reconcile:last"

// ReconcileReport is the persisted outcome of one reconciliation pass.
type ReconcileReport struct {
	RanAt     time.Time              `json:"ran_at"`
	Clean     bool                   `json:"clean"`
	Inventory []inventory.Divergence `json:"inventory"`
	Clients   []clients.Divergence   `json:"clients"`
}

// Reconciler refolds both ledgers against their projections and stores the
// resulting report for the HTTP surface.
type Reconciler struct {
	inventory *inventory.Service
	clients   *clients.Service
	redis     *redis.Client
	logger    *slog.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(inv *inventory.Service, cl *clients.Service, rdb *redis.Client, logger *slog.Logger) *Reconciler {
	return &Reconciler{inventory: inv, clients: cl, redis: rdb, logger: logger}
}

// HandleReconcileTask processes TaskReconcile tasks.
func (rc *Reconciler) HandleReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	report, err := rc.Run(ctx)
	if err != nil {
		return err
	}
	if !report.Clean {
		rc.logger.Warn("reconciliation found divergences",
			slog.Int("inventory", len(report.Inventory)),
			slog.Int("clients", len(report.Clients)))
	}
	return nil
}

// Run executes both reconciliation passes and persists the report. A
// divergence is reported, not returned as an error; only infrastructure
// failures abort the pass.
func (rc *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	report := ReconcileReport{RanAt: time.Now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		divs, err := rc.inventory.Reconcile(gctx)
		if err != nil && !errors.Is(err, shared.ErrProjectionDivergence) {
			return err
		}
		report.Inventory = divs
		return nil
	})
	g.Go(func() error {
		divs, err := rc.clients.Reconcile(gctx)
		if err != nil && !errors.Is(err, shared.ErrProjectionDivergence) {
			return err
		}
		report.Clients = divs
		return nil
	})
	if err := g.Wait(); err != nil {
		return ReconcileReport{}, err
	}
	report.Clean = len(report.Inventory) == 0 && len(report.Clients) == 0

	if rc.redis != nil {
		body, err := json.Marshal(report)
		if err != nil {
			return ReconcileReport{}, err
		}
		if err := rc.redis.Set(ctx, ReconcileReportKey, body, 0).Err(); err != nil {
			rc.logger.Warn("store reconcile report", slog.Any("error", err))
		}
	}
	return report, nil
}

// CleanupRunner prunes expired idempotency keys.
type CleanupRunner struct {
	store  *shared.IdempotencyStore
	logger *slog.Logger
}

// NewCleanupRunner constructs a CleanupRunner.
func NewCleanupRunner(store *shared.IdempotencyStore, logger *slog.Logger) *CleanupRunner {
	return &CleanupRunner{store: store, logger: logger}
}

// HandleCleanupTask processes TaskIdempotencyCleanup tasks.
func (cr *CleanupRunner) HandleCleanupTask(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if err := cr.store.Cleanup(ctx, retention); err != nil {
		return err
	}
	cr.logger.Info("idempotency keys pruned", slog.Duration("retention", retention))
	return nil
}
