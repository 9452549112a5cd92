// Package audit stores the command audit trail: one row per resolved
// intent, recording what was asked, by whom and how it ended.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/command"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// recordTimeout bounds one insert made by the Recorder adapter.
	recordTimeout = 5 * time.Second

	// timeLayout is fixed width so TEXT ordering matches time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrUnresolved is returned by Record for a result that is not final.
var ErrUnresolved = errors.New("audit: command not resolved")

// Entry is one audit trail row.
type Entry struct {
	ID              string          `json:"id"`
	Kind            command.Kind    `json:"kind"`
	Status          command.Status  `json:"status"`
	Source          string          `json:"source,omitempty"`
	Request         json.RawMessage `json:"request"`
	Reason          string          `json:"reason,omitempty"`
	SnapshotVersion uint64          `json:"snapshot_version,omitempty"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	ResolvedAt      time.Time       `json:"resolved_at"`
	DurationMS      int64           `json:"duration_ms"`
}

// EntryFromResult converts a resolved command result into an audit row.
func EntryFromResult(res command.Result) (Entry, error) {
	if !res.Resolved() {
		return Entry{}, fmt.Errorf("%w: %s is %s", ErrUnresolved, res.ID, res.Status)
	}
	req, err := json.Marshal(res.Request)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding request for %s: %w", res.ID, err)
	}
	e := Entry{
		ID:          res.ID,
		Kind:        res.Kind,
		Status:      res.Status,
		Source:      res.Source,
		Request:     req,
		Reason:      res.Reason,
		SubmittedAt: res.SubmittedAt.UTC(),
		ResolvedAt:  res.ResolvedAt.UTC(),
		DurationMS:  res.Duration().Milliseconds(),
	}
	if res.Snapshot != nil {
		e.SnapshotVersion = res.Snapshot.Version
	}
	return e, nil
}

// Filter controls which entries List returns.
type Filter struct {
	Kind   command.Kind   // optional
	Status command.Status // optional
	Source string         // optional
	Since  time.Time      // optional: submitted at or after
	Limit  int            // default 50, max 200
	Offset int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the audit trail operations.
type Repository interface {
	Create(ctx context.Context, e Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository keeps the audit trail in the command_audit table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e. Recording the same command twice is an error.
func (r *SQLiteRepository) Create(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("inserting audit entry: empty id")
	}
	var version any
	if e.SnapshotVersion > 0 {
		version = int64(e.SnapshotVersion) //nolint:gosec // versions stay far below MaxInt64
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_audit
		   (id, kind, status, source, request, reason, snapshot_version, submitted_at, resolved_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), string(e.Status),
		nullableString(e.Source), string(e.Request), nullableString(e.Reason),
		version,
		e.SubmittedAt.UTC().Format(timeLayout),
		e.ResolvedAt.UTC().Format(timeLayout),
		e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry %s: %w", e.ID, err)
	}
	return nil
}

// Record converts res and stores it.
func (r *SQLiteRepository) Record(ctx context.Context, res command.Result) error {
	e, err := EntryFromResult(res)
	if err != nil {
		return err
	}
	return r.Create(ctx, e)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, most recently submitted first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "submitted_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM command_audit " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := `SELECT id, kind, status, source, request, reason, snapshot_version,
	                 submitted_at, resolved_at, duration_ms
	          FROM command_audit ` + where + ` ORDER BY submitted_at DESC, id LIMIT ? OFFSET ?` //nolint:gosec // as above
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                     Entry
		kind, status, request string
		source, reason        sql.NullString
		version               sql.NullInt64
		submitted, resolved   string
	)
	if err := rows.Scan(&e.ID, &kind, &status, &source, &request, &reason, &version,
		&submitted, &resolved, &e.DurationMS); err != nil {
		return Entry{}, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.Kind = command.Kind(kind)
	e.Status = command.Status(status)
	e.Source = source.String
	e.Reason = reason.String
	e.Request = json.RawMessage(request)
	if version.Valid && version.Int64 > 0 {
		e.SnapshotVersion = uint64(version.Int64)
	}

	var err error
	if e.SubmittedAt, err = time.Parse(timeLayout, submitted); err != nil {
		return Entry{}, fmt.Errorf("parsing submitted_at %q: %w", submitted, err)
	}
	if e.ResolvedAt, err = time.Parse(timeLayout, resolved); err != nil {
		return Entry{}, fmt.Errorf("parsing resolved_at %q: %w", resolved, err)
	}
	return e, nil
}

// Prune deletes entries submitted before the cutoff and returns how many
// were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM command_audit WHERE submitted_at < ?",
		before.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning audit entries: %w", err)
	}
	return n, nil
}
