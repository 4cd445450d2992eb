package user

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

// Roles an account may hold.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Backend is the part of the backend client used for accounts.
type Backend interface {
	ListUsers(ctx context.Context, f upstream.UserFilter) ([]upstream.User, error)
	GetUser(ctx context.Context, id string) (upstream.User, error)
	UpdateUserRole(ctx context.Context, id, role string) (upstream.User, error)
	DeleteUser(ctx context.Context, id string) error
	Me(ctx context.Context) (upstream.User, error)
}

// Profile is the public account payload.
type Profile struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func toProfile(u upstream.User) Profile {
	p := Profile{
		ID:    u.ID.String(),
		Name:  u.Name,
		Email: u.Email,
		Role:  strings.ToLower(strings.TrimSpace(u.Role)),
	}
	if p.Role == "" {
		p.Role = RoleCustomer
	}
	if !u.CreatedAt.IsZero() {
		created := u.CreatedAt.Time
		p.CreatedAt = &created
	}
	return p
}

// Filter narrows the account list.
type Filter struct {
	Query string
	Role  string
}

// Service orchestrates account administration.
type Service struct {
	backend Backend
	logger  zerolog.Logger
}

// NewService constructs a new account service.
func NewService(backend Backend, logger zerolog.Logger) *Service {
	return &Service{backend: backend, logger: logger}
}

// List returns a page of accounts matching f.
func (s *Service) List(ctx context.Context, f Filter, page, perPage int) ([]Profile, common.Pagination, error) {
	role := strings.ToLower(strings.TrimSpace(f.Role))
	if role != "" && !validRole(role) {
		return nil, common.Pagination{}, common.ValidationError(map[string]string{"role": "oneof"})
	}
	query := strings.TrimSpace(f.Query)
	rows, err := s.backend.ListUsers(ctx, upstream.UserFilter{Query: query, Role: role})
	if err != nil {
		return nil, common.Pagination{}, fmt.Errorf("list users: %w", err)
	}
	needle := strings.ToLower(query)
	matched := make([]Profile, 0, len(rows))
	for _, row := range rows {
		p := toProfile(row)
		if role != "" && p.Role != role {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) && !strings.Contains(strings.ToLower(p.Email), needle) {
			continue
		}
		matched = append(matched, p)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return strings.ToLower(matched[i].Email) < strings.ToLower(matched[j].Email)
	})
	items, meta := common.Paginate(matched, page, perPage)
	return items, meta, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	u, err := s.backend.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return Profile{}, common.NotFound("user not found")
		}
		return Profile{}, fmt.Errorf("get user: %w", err)
	}
	return toProfile(u), nil
}

// UpdateRole changes the role of an account. Admins cannot demote themselves.
func (s *Service) UpdateRole(ctx context.Context, actorID, id, role string) (Profile, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !validRole(role) {
		return Profile{}, common.ValidationError(map[string]string{"role": "oneof"})
	}
	if actorID != "" && actorID == id && role != RoleAdmin {
		return Profile{}, common.NewAppError("FORBIDDEN", "admins cannot demote themselves", http.StatusForbidden, nil)
	}
	u, err := s.backend.UpdateUserRole(ctx, id, role)
	if err != nil {
		return Profile{}, fmt.Errorf("update role: %w", err)
	}
	s.logger.Info().Str("user_id", id).Str("role", role).Str("actor", actorID).Msg("user_role_changed")
	p := toProfile(u)
	if p.ID == "" {
		p.ID = id
	}
	p.Role = role
	return p, nil
}

// Delete removes an account. Admins cannot delete themselves.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if actorID != "" && actorID == id {
		return common.NewAppError("FORBIDDEN", "admins cannot delete themselves", http.StatusForbidden, nil)
	}
	if err := s.backend.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.Info().Str("user_id", id).Str("actor", actorID).Msg("user_deleted")
	return nil
}

// Me returns the caller's profile as the backend knows it.
func (s *Service) Me(ctx context.Context) (Profile, error) {
	u, err := s.backend.Me(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return toProfile(u), nil
}

func validRole(role string) bool {
	return role == RoleCustomer || role == RoleAdmin
}
