package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/nexushq/nexus/internal/config"
	"github.com/nexushq/nexus/internal/domain"
)

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(ctx2); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}
	return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
	db  *DB
	log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
	return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
	if !ok && err == nil {
		return errors.New("advisory unlock returned false")
	}
	return err
}

func (r *Repository) InsertOrganization(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	const q = `
        INSERT INTO organizations(name, slug, template, is_demo)
        VALUES($1,$2,$3,$4)
        RETURNING id, created_at`
	row := r.db.Pool.QueryRow(ctx, q, org.Name, org.Slug, org.Template, org.IsDemo)
	if err := row.Scan(&org.ID, &org.CreatedAt); err != nil {
		return domain.Organization{}, err
	}
	return org, nil
}

func (r *Repository) InsertMembership(ctx context.Context, m domain.Membership) error {
	const q = `INSERT INTO organization_memberships(organization_id, user_id, role) VALUES($1,$2,$3)`
	_, err := r.db.Pool.Exec(ctx, q, m.OrganizationID, m.UserID, m.Role)
	return err
}

func (r *Repository) InsertProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	const q = `
        INSERT INTO projects(organization_id, name, key, description, ticket_counter)
        VALUES($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	row := r.db.Pool.QueryRow(ctx, q, p.OrganizationID, p.Name, p.Key, p.Description, p.TicketCounter)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (r *Repository) InsertSprint(ctx context.Context, sp domain.Sprint) (domain.Sprint, error) {
	const q = `
        INSERT INTO sprints(organization_id, project_id, name, status, start_date, end_date, goal)
        VALUES($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	row := r.db.Pool.QueryRow(ctx, q, sp.OrganizationID, sp.ProjectID, sp.Name, sp.Status, sp.StartDate, sp.EndDate, sp.Goal)
	if err := row.Scan(&sp.ID, &sp.CreatedAt); err != nil {
		return domain.Sprint{}, err
	}
	return sp, nil
}

func (r *Repository) InsertTickets(ctx context.Context, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const q = `
        INSERT INTO tickets(organization_id, project_id, sprint_id, key, title, description,
            type, priority, status, labels, reporter_id, ai_generated)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	for _, t := range tickets {
		batch.Queue(q, t.OrganizationID, t.ProjectID, t.SprintID, t.Key, t.Title, t.Description,
			t.Type, t.Priority, t.Status, t.Labels, t.ReporterID, t.AIGenerated)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range tickets {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) SetProjectTicketCounter(ctx context.Context, projectID string, n int) error {
	const q = `UPDATE projects SET ticket_counter=$2 WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, projectID, n)
	return err
}

func (r *Repository) InsertInvite(ctx context.Context, inv domain.Invite) (domain.Invite, error) {
	const q = `
        INSERT INTO organization_invites(organization_id, email, role, invited_by, status, token)
        VALUES($1,$2,$3,$4,$5,$6)
        RETURNING id`
	row := r.db.Pool.QueryRow(ctx, q, inv.OrganizationID, inv.Email, inv.Role, inv.InvitedBy, inv.Status, inv.Token)
	if err := row.Scan(&inv.ID); err != nil {
		return domain.Invite{}, err
	}
	return inv, nil
}

func (r *Repository) InsertRecommendations(ctx context.Context, orgID string, recs []string) error {
	const q = `INSERT INTO org_ai_recommendations(organization_id, recommendations) VALUES($1,$2)`
	_, err := r.db.Pool.Exec(ctx, q, orgID, recs)
	return err
}

func (r *Repository) InsertProvisioningStep(ctx context.Context, step domain.ProvisioningStep) error {
	const q = `INSERT INTO org_provisioning_steps(organization_id, step, status, created_at) VALUES($1,$2,$3,$4)`
	_, err := r.db.Pool.Exec(ctx, q, step.OrganizationID, step.Step, step.Status, step.CreatedAt)
	return err
}

func (r *Repository) ListProvisioningSteps(ctx context.Context, orgID string) ([]domain.ProvisioningStep, error) {
	const q = `SELECT organization_id, step, status, created_at FROM org_provisioning_steps WHERE organization_id=$1 ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ProvisioningStep
	for rows.Next() {
		var s domain.ProvisioningStep
		if err := rows.Scan(&s.OrganizationID, &s.Step, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListOrphanedOrganizations returns organizations created before the
// cutoff whose step log never reached the terminal marker. The saga is
// not resumable; these need operator attention.
func (r *Repository) ListOrphanedOrganizations(ctx context.Context, terminalStep string, cutoff time.Time) ([]domain.Organization, error) {
	const q = `
        SELECT o.id, o.name, o.slug, o.template, o.is_demo, o.created_at
        FROM organizations o
        WHERE o.created_at < $2
          AND NOT EXISTS (
            SELECT 1 FROM org_provisioning_steps s
            WHERE s.organization_id = o.id AND s.step = $1)`
	rows, err := r.db.Pool.Query(ctx, q, terminalStep, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Organization
	for rows.Next() {
		var o domain.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.Template, &o.IsDemo, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
