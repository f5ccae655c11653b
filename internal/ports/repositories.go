package ports

import (
	"context"

	"github.com/arqon/siteapi/internal/domain/entities"
)

// ProjectRepository defines the interface for project data operations
type ProjectRepository interface {
	List(ctx context.Context) ([]entities.Project, error)
	GetByID(ctx context.Context, id int) (*entities.Project, error)
	Create(ctx context.Context, project *entities.Project) (*entities.Project, error)
	Update(ctx context.Context, id int, apply func(*entities.Project)) (updated, prior *entities.Project, err error)
	Delete(ctx context.Context, id int) (*entities.Project, error)
}

// ArticleRepository defines the interface for article data operations
type ArticleRepository interface {
	List(ctx context.Context) ([]entities.Article, error)
	GetByID(ctx context.Context, id int) (*entities.Article, error)
	Create(ctx context.Context, article *entities.Article) (*entities.Article, error)
	Update(ctx context.Context, id int, apply func(*entities.Article)) (updated, prior *entities.Article, err error)
	Delete(ctx context.Context, id int) (*entities.Article, error)
}
