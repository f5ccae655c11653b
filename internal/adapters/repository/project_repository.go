package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
	"github.com/arqon/siteapi/internal/infrastructure/storage"
	"github.com/arqon/siteapi/internal/ports"
)

// ProjectRepositoryImpl implements the ProjectRepository interface on a
// JSON record store
type ProjectRepositoryImpl struct {
	store *storage.Store[entities.Project]
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(store *storage.Store[entities.Project]) ports.ProjectRepository {
	return &ProjectRepositoryImpl{store: store}
}

// NewProjectStore creates the record store backing projects
func NewProjectStore(path string, log *logger.Logger) *storage.Store[entities.Project] {
	return storage.NewStore(path, func(p entities.Project, id int) entities.Project {
		p.ID = id
		return p
	}, log)
}

func (r *ProjectRepositoryImpl) List(ctx context.Context) ([]entities.Project, error) {
	return r.store.List(), nil
}

func (r *ProjectRepositoryImpl) GetByID(ctx context.Context, id int) (*entities.Project, error) {
	project, ok := r.store.Get(id)
	if !ok {
		return nil, entities.ErrNotFound
	}
	return &project, nil
}

func (r *ProjectRepositoryImpl) Create(ctx context.Context, project *entities.Project) (*entities.Project, error) {
	created, err := r.store.Add(ctx, *project)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &created, nil
}

func (r *ProjectRepositoryImpl) Update(ctx context.Context, id int, apply func(*entities.Project)) (*entities.Project, *entities.Project, error) {
	updated, prior, err := r.store.Update(ctx, id, func(p entities.Project) entities.Project {
		apply(&p)
		return p
	})
	if err != nil {
		return nil, nil, translate("update project", err)
	}
	return &updated, &prior, nil
}

func (r *ProjectRepositoryImpl) Delete(ctx context.Context, id int) (*entities.Project, error) {
	removed, err := r.store.Delete(ctx, id)
	if err != nil {
		return nil, translate("delete project", err)
	}
	return &removed, nil
}

func translate(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return entities.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
