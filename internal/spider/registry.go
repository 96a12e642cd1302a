// Package spider persists named ingestion jobs and runs them against
// the subject ingestor, streaming lifecycle events to attached clients.
package spider

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"animehub/pkg/models"
)

var (
	// ErrJobNotFound means no job row matched the given name.
	ErrJobNotFound = errors.New("spider: job not found")
	// ErrBadTransition means the job exists but its current status
	// does not permit the requested change.
	ErrBadTransition = errors.New("spider: status does not allow transition")
	// ErrDuplicateName means a job with that name already exists.
	ErrDuplicateName = errors.New("spider: job name already taken")
)

// Registry is the repository over the Spider table.
type Registry struct {
	DB *sql.DB
}

func NewRegistry(db *sql.DB) *Registry {
	return &Registry{DB: db}
}

// Create inserts a new active job. The subject id list is stored as a
// JSON array so the original request can always be replayed verbatim.
func (r *Registry) Create(ctx context.Context, name string, subjectIDs []string, downloadToLocal bool) (*models.Spider, error) {
	idsJSON, err := json.Marshal(subjectIDs)
	if err != nil {
		return nil, fmt.Errorf("encode subject ids: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO Spider (name, request_id_para, download_to_local, status)
		VALUES (?, ?, ?, 'active')
		ON CONFLICT (name) DO NOTHING
	`, name, string(idsJSON), boolToInt(downloadToLocal))
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert job rows: %w", err)
	}
	if n == 0 {
		return nil, ErrDuplicateName
	}

	return r.Get(ctx, name)
}

// Get loads one job by name.
func (r *Registry) Get(ctx context.Context, name string) (*models.Spider, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT spider_id, name, request_id_para, download_to_local, status
		FROM Spider
		WHERE name = ?
	`, name)

	var (
		s        models.Spider
		idsJSON  string
		download int
	)
	if err := row.Scan(&s.ID, &s.Name, &idsJSON, &download, &s.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	s.DownloadToLocal = download != 0

	if err := json.Unmarshal([]byte(idsJSON), &s.SubjectIDs); err != nil {
		return nil, fmt.Errorf("decode subject ids for %q: %w", name, err)
	}
	return &s, nil
}

// IDList returns the subject ids the named job was created with.
func (r *Registry) IDList(ctx context.Context, name string) ([]string, error) {
	job, err := r.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return job.SubjectIDs, nil
}

// JobPage is one page of the job listing.
type JobPage struct {
	Total int             `json:"total"`
	Items []models.Spider `json:"items"`
}

// List returns jobs ordered by id, paginated. page is 1-based.
func (r *Registry) List(ctx context.Context, page, perPage int) (*JobPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var total int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM Spider`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT spider_id, name, request_id_para, download_to_local, status
		FROM Spider
		ORDER BY spider_id
		LIMIT ? OFFSET ?
	`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]models.Spider, 0, perPage)
	for rows.Next() {
		var (
			s        models.Spider
			idsJSON  string
			download int
		)
		if err := rows.Scan(&s.ID, &s.Name, &idsJSON, &download, &s.Status); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		s.DownloadToLocal = download != 0
		if err := json.Unmarshal([]byte(idsJSON), &s.SubjectIDs); err != nil {
			return nil, fmt.Errorf("decode subject ids for %q: %w", s.Name, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	return &JobPage{Total: total, Items: out}, nil
}

// Pause moves an active job to inactive.
func (r *Registry) Pause(ctx context.Context, name string) error {
	return r.transition(ctx, name, models.SpiderInactive, models.SpiderActive)
}

// Resume moves an inactive job back to active.
func (r *Registry) Resume(ctx context.Context, name string) error {
	return r.transition(ctx, name, models.SpiderActive, models.SpiderInactive)
}

// Expire marks an active or inactive job as expired. Expired is
// terminal: the row stays only until the next sweep.
func (r *Registry) Expire(ctx context.Context, name string) error {
	return r.transition(ctx, name, models.SpiderExpired,
		models.SpiderActive, models.SpiderInactive)
}

func (r *Registry) transition(ctx context.Context, name string, to models.SpiderStatus, from ...models.SpiderStatus) error {
	args := []any{to, name}
	placeholders := ""
	for i, f := range from {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, f)
	}

	res, err := r.DB.ExecContext(ctx,
		`UPDATE Spider SET status = ? WHERE name = ? AND status IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job status rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	// distinguish a missing job from a guarded transition
	if _, err := r.Get(ctx, name); err != nil {
		return err
	}
	return ErrBadTransition
}

// SweepExpired hard-deletes every expired job and reports how many
// rows went away.
func (r *Registry) SweepExpired(ctx context.Context) (int, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM Spider WHERE status = 'expired'`)
	if err != nil {
		return 0, fmt.Errorf("sweep expired jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows: %w", err)
	}
	return int(n), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
