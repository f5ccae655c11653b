package services

import (
	"context"
	"fmt"
	"mime/multipart"

	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
	"github.com/arqon/siteapi/internal/ports"
)

// Upload subdirectories under /images/
const (
	projectImageDir = ""
	articleImageDir = "articles"
)

// ProjectService handles project-related operations
type ProjectService struct {
	projectRepo ports.ProjectRepository
	images      ports.ImageStore
	logger      *logger.Logger
}

// NewProjectService creates a new project service
func NewProjectService(projectRepo ports.ProjectRepository, images ports.ImageStore, logger *logger.Logger) *ProjectService {
	return &ProjectService{
		projectRepo: projectRepo,
		images:      images,
		logger:      logger,
	}
}

// CreateProject creates a new project. An uploaded image takes precedence
// over req.ImageURL; one of the two is required.
func (s *ProjectService) CreateProject(ctx context.Context, req ports.CreateProjectRequest, image *multipart.FileHeader) (*entities.Project, error) {
	imageURL := req.ImageURL
	if image != nil {
		url, err := s.images.Save(image, projectImageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to store project image: %w", err)
		}
		imageURL = url
	}
	if imageURL == "" {
		return nil, entities.ErrMissingImage
	}

	project := &entities.Project{
		Title:          req.Title,
		Category:       req.Category,
		Location:       req.Location,
		Year:           req.Year,
		Image:          imageURL,
		Description:    req.Description,
		SketchfabID:    req.SketchfabID,
		SketchfabTitle: req.SketchfabTitle,
	}

	createdProject, err := s.projectRepo.Create(context.WithoutCancel(ctx), project)
	if err != nil {
		if image != nil {
			s.images.RemoveAsync(imageURL)
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Infow("Project created successfully", "project_id", createdProject.ID, "title", createdProject.Title)

	return createdProject, nil
}

// GetProject retrieves a project by ID
func (s *ProjectService) GetProject(ctx context.Context, id int) (*entities.Project, error) {
	project, err := s.projectRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("project not found: %w", err)
	}

	return project, nil
}

// UpdateProject applies the non-nil fields of req. A replaced upload is
// removed from disk once the new record is persisted.
func (s *ProjectService) UpdateProject(ctx context.Context, id int, req ports.UpdateProjectRequest, image *multipart.FileHeader) (*entities.Project, error) {
	var uploaded string
	if image != nil {
		url, err := s.images.Save(image, projectImageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to store project image: %w", err)
		}
		uploaded = url
		req.ImageURL = &uploaded
	}

	updatedProject, prior, err := s.projectRepo.Update(context.WithoutCancel(ctx), id, func(p *entities.Project) {
		if req.Title != nil {
			p.Title = *req.Title
		}
		if req.Category != nil {
			p.Category = *req.Category
		}
		if req.Location != nil {
			p.Location = *req.Location
		}
		if req.Year != nil {
			p.Year = *req.Year
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.ImageURL != nil {
			p.Image = *req.ImageURL
		}
		if req.SketchfabID != nil {
			p.SketchfabID = req.SketchfabID
		}
		if req.SketchfabTitle != nil {
			p.SketchfabTitle = req.SketchfabTitle
		}
	})
	if err != nil {
		if uploaded != "" {
			s.images.RemoveAsync(uploaded)
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	if prior.Image != "" && prior.Image != updatedProject.Image {
		s.images.RemoveAsync(prior.Image)
	}

	s.logger.Infow("Project updated successfully", "project_id", updatedProject.ID, "title", updatedProject.Title)

	return updatedProject, nil
}

// DeleteProject deletes a project and its uploaded image
func (s *ProjectService) DeleteProject(ctx context.Context, id int) (*entities.Project, error) {
	removed, err := s.projectRepo.Delete(context.WithoutCancel(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete project: %w", err)
	}

	if removed.Image != "" {
		s.images.RemoveAsync(removed.Image)
	}

	s.logger.Infow("Project deleted successfully", "project_id", id)

	return removed, nil
}

// ListProjects returns every project in insertion order
func (s *ProjectService) ListProjects(ctx context.Context) ([]entities.Project, error) {
	projects, err := s.projectRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	return projects, nil
}
