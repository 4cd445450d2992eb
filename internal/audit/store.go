package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Entry is one audit record to be written.
type Entry struct {
	ActorKind    ActorKind
	ActorUserID  *string
	Action       string
	ResourceType string
	ResourceID   *string
	Method       string
	Path         string
	Route        *string
	Status       int
	IP           *string
	UserAgent    *string
	RequestID    *string
	Metadata     []byte
}

// Log is a stored audit record.
type Log struct {
	ID           uuid.UUID       `json:"id"`
	ActorKind    string          `json:"actor_kind"`
	ActorUserID  *string         `json:"actor_user_id,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *string         `json:"resource_id,omitempty"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	Route        *string         `json:"route,omitempty"`
	Status       int             `json:"status"`
	IP           *string         `json:"ip,omitempty"`
	UserAgent    *string         `json:"user_agent,omitempty"`
	RequestID    *string         `json:"request_id,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// DB is the subset of pgxpool.Pool used by PGStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps audit records in the audit_logs table.
type PGStore struct {
	DB DB
}

const insertAuditLog = `
INSERT INTO audit_logs (
    id, actor_kind, actor_user_id, action, resource_type, resource_id,
    method, path, route, status, ip, user_agent, request_id, metadata
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// Insert writes e with a freshly generated id.
func (s PGStore) Insert(ctx context.Context, e Entry) error {
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = e.Metadata
	}
	_, err := s.DB.Exec(ctx, insertAuditLog,
		uuid.New(),
		string(e.ActorKind),
		text(e.ActorUserID),
		e.Action,
		e.ResourceType,
		text(e.ResourceID),
		e.Method,
		e.Path,
		text(e.Route),
		int32(e.Status),
		text(e.IP),
		text(e.UserAgent),
		text(e.RequestID),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Filter narrows an audit query. Zero fields match everything; Until is exclusive.
type Filter struct {
	ActorUserID  string
	ResourceType string
	ResourceID   string
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// where renders the filter as a WHERE clause with positional args.
func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ActorUserID != "" {
		add("actor_user_id = $%d", f.ActorUserID)
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at < $%d", f.Until)
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// List returns matching records newest first plus the total match count.
func (s PGStore) List(ctx context.Context, f Filter) ([]Log, int, error) {
	where, filterArgs := f.where()
	args := append(slices.Clip(filterArgs), int32(f.Limit), int32(f.Offset))
	sql := `SELECT id, actor_kind, actor_user_id, action, resource_type, resource_id,
       method, path, route, status, ip, user_agent, request_id, metadata, created_at,
       count(*) OVER () AS total
FROM audit_logs ` + where + fmt.Sprintf(`
ORDER BY created_at DESC, id DESC
LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var (
		out   = []Log{}
		total int64
	)
	for rows.Next() {
		var (
			l                                  Log
			actorUserID, resourceID, route, ip pgtype.Text
			userAgent, requestID               pgtype.Text
			status                             int32
			createdAt                          pgtype.Timestamptz
		)
		if err := rows.Scan(&l.ID, &l.ActorKind, &actorUserID, &l.Action, &l.ResourceType, &resourceID,
			&l.Method, &l.Path, &route, &status, &ip, &userAgent, &requestID, &l.Metadata, &createdAt, &total); err != nil {
			return nil, 0, fmt.Errorf("scan audit log: %w", err)
		}
		l.ActorUserID = ptr(actorUserID)
		l.ResourceID = ptr(resourceID)
		l.Route = ptr(route)
		l.IP = ptr(ip)
		l.UserAgent = ptr(userAgent)
		l.RequestID = ptr(requestID)
		l.Status = int(status)
		l.CreatedAt = createdAt.Time
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit logs: %w", err)
	}
	rows.Close()
	// The window count is lost when the page is past the last match.
	if len(out) == 0 && f.Offset > 0 {
		if err := s.DB.QueryRow(ctx, "SELECT count(*) FROM audit_logs "+where, filterArgs...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count audit logs: %w", err)
		}
	}
	return out, int(total), nil
}

func text(value *string) pgtype.Text {
	if value == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *value, Valid: true}
}

func ptr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}
