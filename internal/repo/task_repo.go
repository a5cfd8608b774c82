package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	dom "tasktracker/internal/domain"
	"tasktracker/internal/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `id, title, description, status::text, user_id, version, created_at, updated_at`

type PGTaskRepo struct {
	db *pgxpool.Pool
}

func NewPGTaskRepo(db *pgxpool.Pool) *PGTaskRepo {
	return &PGTaskRepo{db: db}
}

func scanTask(row pgx.Row) (dom.Task, error) {
	var t dom.Task
	var status string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.OwnerID, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	t.Status = dom.Status(status)
	return t, nil
}

func (r *PGTaskRepo) Create(ctx context.Context, t dom.Task) (dom.Task, error) {
	query := `
		INSERT INTO tasks (title, description, status, user_id)
		VALUES ($1, $2, $3::text::task_status, $4)
		RETURNING ` + taskColumns
	out, err := scanTask(r.db.QueryRow(ctx, query, t.Title, t.Description, string(t.Status), t.OwnerID))
	if utils.IsPGForeignKeyViolation(err) {
		return dom.Task{}, ErrUnknownOwner
	}
	return out, err
}

func (r *PGTaskRepo) GetByID(ctx context.Context, id int64) (dom.Task, error) {
	return scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

func (r *PGTaskRepo) List(ctx context.Context, f dom.TaskFilter) ([]dom.Task, error) {
	var (
		conds []string
		args  []any
	)
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d::text::task_status", len(args)))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, likePattern(q))
		conds = append(conds, fmt.Sprintf("(title ILIKE $%[1]d OR description ILIKE $%[1]d)", len(args)))
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []dom.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (r *PGTaskRepo) Update(ctx context.Context, t dom.Task) (dom.Task, error) {
	query := `
		UPDATE tasks
		SET title = $3, description = $4, status = $5::text::task_status,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING ` + taskColumns
	out, err := scanTask(r.db.QueryRow(ctx, query, t.ID, t.Version, t.Title, t.Description, string(t.Status)))
	if errors.Is(err, ErrNotFound) {
		return dom.Task{}, ErrStale
	}
	return out, err
}

func (r *PGTaskRepo) Delete(ctx context.Context, id, version int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

func (r *PGTaskRepo) DeleteByOwners(ctx context.Context, ownerIDs []string) (int64, error) {
	if len(ownerIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE user_id = ANY($1)`, ownerIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// likePattern wraps q for ILIKE, escaping the wildcard characters.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}
