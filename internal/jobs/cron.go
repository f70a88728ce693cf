package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/nexushq/nexus/internal/config"
	"github.com/nexushq/nexus/internal/domain"
	"github.com/nexushq/nexus/internal/provision"
)

type orphanRepo interface {
	TryAdvisoryLock(ctx context.Context, key int64) (bool, error)
	AdvisoryUnlock(ctx context.Context, key int64) error
	ListOrphanedOrganizations(ctx context.Context, terminalStep string, cutoff time.Time) ([]domain.Organization, error)
}

type Cron struct {
	cfg  config.Config
	log  zerolog.Logger
	repo orphanRepo
	c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, r orphanRepo) *Cron {
	loc, _ := time.LoadLocation(cfg.TZ)
	c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	cr := &Cron{cfg: cfg, log: log, repo: r, c: c}
	_, _ = c.AddFunc(cfg.SweepCron, cr.sweep)
	return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

// sweep reports organizations whose provisioning never reached the
// terminal step. The saga is not resumable, so this only surfaces them
// for operators; nothing is mutated.
func (cr *Cron) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	const lockKey int64 = 731004
	ok, err := cr.repo.TryAdvisoryLock(ctx, lockKey)
	if err != nil {
		cr.log.Error().Err(err).Msg("sweep: lock error")
		return
	}
	if !ok {
		cr.log.Info().Msg("sweep: already running elsewhere")
		return
	}
	defer func() { _ = cr.repo.AdvisoryUnlock(context.Background(), lockKey) }()

	cutoff := time.Now().Add(-cr.cfg.OrphanCutoff)
	orgs, err := cr.repo.ListOrphanedOrganizations(ctx, provision.StepComplete, cutoff)
	if err != nil {
		cr.log.Error().Err(err).Msg("sweep: query failed")
		return
	}
	for _, org := range orgs {
		cr.log.Warn().Str("org_id", org.ID).Str("slug", org.Slug).Time("created_at", org.CreatedAt).Msg("sweep: provisioning never completed")
	}
	if len(orgs) == 0 {
		cr.log.Info().Msg("sweep: no orphaned organizations")
	}
}
