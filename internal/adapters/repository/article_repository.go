package repository

import (
	"context"
	"fmt"

	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
	"github.com/arqon/siteapi/internal/infrastructure/storage"
	"github.com/arqon/siteapi/internal/ports"
)

// ArticleRepositoryImpl implements the ArticleRepository interface on a
// JSON record store
type ArticleRepositoryImpl struct {
	store *storage.Store[entities.Article]
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(store *storage.Store[entities.Article]) ports.ArticleRepository {
	return &ArticleRepositoryImpl{store: store}
}

// NewArticleStore creates the record store backing articles
func NewArticleStore(path string, log *logger.Logger) *storage.Store[entities.Article] {
	return storage.NewStore(path, func(a entities.Article, id int) entities.Article {
		a.ID = id
		return a
	}, log)
}

func (r *ArticleRepositoryImpl) List(ctx context.Context) ([]entities.Article, error) {
	return r.store.List(), nil
}

func (r *ArticleRepositoryImpl) GetByID(ctx context.Context, id int) (*entities.Article, error) {
	article, ok := r.store.Get(id)
	if !ok {
		return nil, entities.ErrNotFound
	}
	return &article, nil
}

func (r *ArticleRepositoryImpl) Create(ctx context.Context, article *entities.Article) (*entities.Article, error) {
	created, err := r.store.Add(ctx, *article)
	if err != nil {
		return nil, fmt.Errorf("create article: %w", err)
	}
	return &created, nil
}

func (r *ArticleRepositoryImpl) Update(ctx context.Context, id int, apply func(*entities.Article)) (*entities.Article, *entities.Article, error) {
	updated, prior, err := r.store.Update(ctx, id, func(a entities.Article) entities.Article {
		apply(&a)
		return a
	})
	if err != nil {
		return nil, nil, translate("update article", err)
	}
	return &updated, &prior, nil
}

func (r *ArticleRepositoryImpl) Delete(ctx context.Context, id int) (*entities.Article, error) {
	removed, err := r.store.Delete(ctx, id)
	if err != nil {
		return nil, translate("delete article", err)
	}
	return &removed, nil
}
