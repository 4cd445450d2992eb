package content

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-apparel/internal/cache"
	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

var pageSlug = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// Backend is the part of the backend client that stores page content.
type Backend interface {
	ListContent(ctx context.Context, page string) ([]upstream.PageContent, error)
	CreateContent(ctx context.Context, in upstream.ContentInput) (upstream.PageContent, error)
	UpdateContent(ctx context.Context, id string, in upstream.ContentInput) (upstream.PageContent, error)
	DeleteContent(ctx context.Context, id string) error
}

// Section is one block of a storefront page.
type Section struct {
	ID       string `json:"id"`
	Page     string `json:"page"`
	Section  string `json:"section"`
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Position int    `json:"position"`
}

func toSection(row upstream.PageContent) Section {
	return Section{
		ID:       row.ID.String(),
		Page:     strings.ToLower(strings.TrimSpace(row.Page)),
		Section:  row.Section,
		Title:    row.Title,
		Body:     row.Body,
		ImageURL: row.ImageURL,
		Position: row.Position,
	}
}

// Form is the admin payload for a section.
type Form struct {
	Page     string `json:"page" validate:"required,max=64"`
	Section  string `json:"section" validate:"required,max=64"`
	Title    string `json:"title" validate:"max=200"`
	Body     string `json:"body" validate:"max=20000"`
	ImageURL string `json:"imageUrl,omitempty" validate:"omitempty,url"`
	Position int    `json:"position" validate:"gte=0,lte=1000"`
}

func (f Form) check() error {
	if err := common.Validate(f); err != nil {
		return err
	}
	if !pageSlug.MatchString(normalizePage(f.Page)) {
		return common.ValidationError(map[string]string{"page": "slug"})
	}
	return nil
}

func (f Form) input() upstream.ContentInput {
	return upstream.ContentInput{
		Page:     normalizePage(f.Page),
		Section:  strings.TrimSpace(f.Section),
		Title:    strings.TrimSpace(f.Title),
		Body:     f.Body,
		ImageURL: f.ImageURL,
		Position: f.Position,
	}
}

// Service serves storefront pages and their administration.
type Service struct {
	backend Backend
	cache   *cache.Cache
	logger  zerolog.Logger
}

// NewService constructs a Service. A nil cache disables caching.
func NewService(backend Backend, c *cache.Cache, logger zerolog.Logger) (*Service, error) {
	if backend == nil {
		return nil, errors.New("content: backend is required")
	}
	return &Service{backend: backend, cache: c.Named("content"), logger: logger}, nil
}

func pageKey(page string) string { return cache.Key("content", page, "v1") }

func normalizePage(page string) string { return strings.ToLower(strings.TrimSpace(page)) }

// Page returns the sections of a page ordered by position.
func (s *Service) Page(ctx context.Context, page string) ([]Section, error) {
	page = normalizePage(page)
	if !pageSlug.MatchString(page) {
		return nil, common.BadRequest("invalid page")
	}
	var cached []Section
	if ok, err := s.cache.GetJSON(ctx, pageKey(page), &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.backend.ListContent(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	out := make([]Section, 0, len(rows))
	for _, row := range rows {
		sec := toSection(row)
		if sec.Page != page {
			continue
		}
		out = append(out, sec)
	}
	sortSections(out)
	if err := s.cache.SetJSON(ctx, pageKey(page), out); err != nil {
		s.logger.Warn().Err(err).Str("page", page).Msg("content_cache_set_failed")
	}
	return out, nil
}

// List returns every section, optionally for a single page, without caching.
func (s *Service) List(ctx context.Context, page string) ([]Section, error) {
	page = normalizePage(page)
	rows, err := s.backend.ListContent(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	out := make([]Section, 0, len(rows))
	for _, row := range rows {
		sec := toSection(row)
		if page != "" && sec.Page != page {
			continue
		}
		out = append(out, sec)
	}
	sortSections(out)
	return out, nil
}

// Create validates and stores a new section.
func (s *Service) Create(ctx context.Context, f Form) (Section, error) {
	if err := f.check(); err != nil {
		return Section{}, err
	}
	row, err := s.backend.CreateContent(ctx, f.input())
	if err != nil {
		return Section{}, fmt.Errorf("create content: %w", err)
	}
	s.invalidate(ctx, normalizePage(f.Page))
	return toSection(row), nil
}

// Update validates and replaces a section. Both the old and new page are invalidated.
func (s *Service) Update(ctx context.Context, id string, f Form) (Section, error) {
	if err := f.check(); err != nil {
		return Section{}, err
	}
	before := s.pageOf(ctx, id)
	row, err := s.backend.UpdateContent(ctx, id, f.input())
	if err != nil {
		return Section{}, fmt.Errorf("update content: %w", err)
	}
	s.invalidate(ctx, before, normalizePage(f.Page))
	return toSection(row), nil
}

// Delete removes a section.
func (s *Service) Delete(ctx context.Context, id string) error {
	before := s.pageOf(ctx, id)
	if err := s.backend.DeleteContent(ctx, id); err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	s.invalidate(ctx, before)
	return nil
}

func (s *Service) pageOf(ctx context.Context, id string) string {
	rows, err := s.backend.ListContent(ctx, "")
	if err != nil {
		s.logger.Debug().Err(err).Str("id", id).Msg("content_page_lookup_failed")
		return ""
	}
	for _, row := range rows {
		if row.ID.String() == id {
			return normalizePage(row.Page)
		}
	}
	return ""
}

func (s *Service) invalidate(ctx context.Context, pages ...string) {
	keys := make([]string, 0, len(pages))
	for _, p := range pages {
		if p != "" {
			keys = append(keys, pageKey(p))
		}
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn().Err(err).Strs("keys", keys).Msg("content_cache_invalidate_failed")
	}
}

func sortSections(out []Section) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Section < out[j].Section
	})
}
