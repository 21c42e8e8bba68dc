package service

import (
	"context"
	"strings"

	"github.com/schoolworks/maintenance-desk/internal/auth"
	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/repository"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

// DefaultCategories seeds a fresh install.
var DefaultCategories = []domain.Category{
	{Name: "Electrical", Description: "Lighting, sockets and power"},
	{Name: "Plumbing", Description: "Leaks, taps, toilets and drains"},
	{Name: "Heating", Description: "Radiators, boilers and ventilation"},
	{Name: "Furniture", Description: "Desks, chairs and fittings"},
	{Name: "IT & AV", Description: "Projectors, screens and cabling"},
	{Name: "Grounds", Description: "Playgrounds, fields and paths"},
}

// DefaultLocations seeds a fresh install.
var DefaultLocations = []domain.Location{
	{Name: "Main Building", Description: "Reception, offices and hall"},
	{Name: "Science Block", Description: "Laboratories and prep rooms"},
	{Name: "Sports Hall", Description: "Hall, changing rooms and stores"},
	{Name: "Library", Description: "Library and study areas"},
	{Name: "Grounds", Description: "External areas"},
}

// CatalogService manages categories and locations.
type CatalogService struct {
	catalog repository.CatalogRepository
}

// NewCatalogService constructs the service.
func NewCatalogService(catalog repository.CatalogRepository) *CatalogService {
	return &CatalogService{catalog: catalog}
}

// ListCategories returns every category.
func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	out, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return nil, apperrors.NewTransientIO("list categories", err)
	}
	return out, nil
}

// ListLocations returns every location.
func (s *CatalogService) ListLocations(ctx context.Context) ([]domain.Location, error) {
	out, err := s.catalog.ListLocations(ctx)
	if err != nil {
		return nil, apperrors.NewTransientIO("list locations", err)
	}
	return out, nil
}

// CreateCategory adds a category.
func (s *CatalogService) CreateCategory(ctx context.Context, actor *domain.Actor, name, description string) (*domain.Category, error) {
	if actor == nil || !auth.IsFullAdmin(actor.Role) {
		return nil, apperrors.NewForbidden("admin role required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", map[string]any{"name": "required"})
	}
	category := &domain.Category{Name: name, Description: strings.TrimSpace(description)}
	if err := s.catalog.CreateCategory(ctx, category); err != nil {
		return nil, apperrors.NewTransientIO("create category", err)
	}
	return category, nil
}

// CreateLocation adds a location.
func (s *CatalogService) CreateLocation(ctx context.Context, actor *domain.Actor, name, description string) (*domain.Location, error) {
	if actor == nil || !auth.IsFullAdmin(actor.Role) {
		return nil, apperrors.NewForbidden("admin role required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", map[string]any{"name": "required"})
	}
	location := &domain.Location{Name: name, Description: strings.TrimSpace(description)}
	if err := s.catalog.CreateLocation(ctx, location); err != nil {
		return nil, apperrors.NewTransientIO("create location", err)
	}
	return location, nil
}

// Names resolves display names for a ticket's category and location. Unknown
// or missing ids resolve to "".
func (s *CatalogService) Names(ctx context.Context, categoryID, locationID *string) (string, string) {
	var category, location string
	if categoryID != nil {
		if list, err := s.catalog.ListCategories(ctx); err == nil {
			for _, c := range list {
				if c.ID == *categoryID {
					category = c.Name
					break
				}
			}
		}
	}
	if locationID != nil {
		if list, err := s.catalog.ListLocations(ctx); err == nil {
			for _, l := range list {
				if l.ID == *locationID {
					location = l.Name
					break
				}
			}
		}
	}
	return category, location
}

// Seed inserts the default reference data when a table is empty. It reports
// how many rows were added.
func (s *CatalogService) Seed(ctx context.Context) (int, error) {
	added := 0
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return 0, err
	}
	if len(categories) == 0 {
		for _, c := range DefaultCategories {
			c := c
			if err := s.catalog.CreateCategory(ctx, &c); err != nil {
				return added, err
			}
			added++
		}
	}
	locations, err := s.catalog.ListLocations(ctx)
	if err != nil {
		return added, err
	}
	if len(locations) == 0 {
		for _, l := range DefaultLocations {
			l := l
			if err := s.catalog.CreateLocation(ctx, &l); err != nil {
				return added, err
			}
			added++
		}
	}
	return added, nil
}

// Validate checks that referenced category and location ids exist.
func (s *CatalogService) Validate(ctx context.Context, categoryID, locationID *string) error {
	if categoryID != nil {
		list, err := s.catalog.ListCategories(ctx)
		if err != nil {
			return apperrors.NewTransientIO("list categories", err)
		}
		found := false
		for _, c := range list {
			if c.ID == *categoryID {
				found = true
				break
			}
		}
		if !found {
			return apperrors.NewNotFound("category", map[string]any{"id": *categoryID})
		}
	}
	if locationID != nil {
		list, err := s.catalog.ListLocations(ctx)
		if err != nil {
			return apperrors.NewTransientIO("list locations", err)
		}
		found := false
		for _, l := range list {
			if l.ID == *locationID {
				found = true
				break
			}
		}
		if !found {
			return apperrors.NewNotFound("location", map[string]any{"id": *locationID})
		}
	}
	return nil
}
