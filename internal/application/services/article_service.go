package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
	"github.com/arqon/siteapi/internal/ports"
)

// ArticleService handles article-related operations
type ArticleService struct {
	articleRepo ports.ArticleRepository
	images      ports.ImageStore
	logger      *logger.Logger
	now         func() time.Time
}

// NewArticleService creates a new article service
func NewArticleService(articleRepo ports.ArticleRepository, images ports.ImageStore, logger *logger.Logger) *ArticleService {
	return &ArticleService{
		articleRepo: articleRepo,
		images:      images,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateArticle creates a new article. Date defaults to the current time.
func (s *ArticleService) CreateArticle(ctx context.Context, req ports.CreateArticleRequest, image *multipart.FileHeader) (*entities.Article, error) {
	imageURL := req.ImageURL
	if image != nil {
		url, err := s.images.Save(image, articleImageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to store article image: %w", err)
		}
		imageURL = url
	}

	date := req.Date
	if date == "" {
		date = s.now().UTC().Format(time.RFC3339)
	}

	article := &entities.Article{
		Title:    req.Title,
		Content:  req.Content,
		Author:   req.Author,
		Category: req.Category,
		Date:     date,
		ImageURL: imageURL,
	}

	createdArticle, err := s.articleRepo.Create(context.WithoutCancel(ctx), article)
	if err != nil {
		if image != nil {
			s.images.RemoveAsync(imageURL)
		}
		return nil, fmt.Errorf("failed to create article: %w", err)
	}

	s.logger.Infow("Article created successfully", "article_id", createdArticle.ID, "title", createdArticle.Title)

	return createdArticle, nil
}

// GetArticle retrieves an article by ID
func (s *ArticleService) GetArticle(ctx context.Context, id int) (*entities.Article, error) {
	article, err := s.articleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("article not found: %w", err)
	}

	return article, nil
}

// UpdateArticle applies the non-nil fields of req
func (s *ArticleService) UpdateArticle(ctx context.Context, id int, req ports.UpdateArticleRequest, image *multipart.FileHeader) (*entities.Article, error) {
	var uploaded string
	if image != nil {
		url, err := s.images.Save(image, articleImageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to store article image: %w", err)
		}
		uploaded = url
		req.ImageURL = &uploaded
	}

	updatedArticle, prior, err := s.articleRepo.Update(context.WithoutCancel(ctx), id, func(a *entities.Article) {
		if req.Title != nil {
			a.Title = *req.Title
		}
		if req.Content != nil {
			a.Content = *req.Content
		}
		if req.Author != nil {
			a.Author = *req.Author
		}
		if req.Category != nil {
			a.Category = *req.Category
		}
		if req.Date != nil {
			a.Date = *req.Date
		}
		if req.ImageURL != nil {
			a.ImageURL = *req.ImageURL
		}
	})
	if err != nil {
		if uploaded != "" {
			s.images.RemoveAsync(uploaded)
		}
		return nil, fmt.Errorf("failed to update article: %w", err)
	}

	if prior.ImageURL != "" && prior.ImageURL != updatedArticle.ImageURL {
		s.images.RemoveAsync(prior.ImageURL)
	}

	s.logger.Infow("Article updated successfully", "article_id", updatedArticle.ID, "title", updatedArticle.Title)

	return updatedArticle, nil
}

// DeleteArticle deletes an article and its uploaded image
func (s *ArticleService) DeleteArticle(ctx context.Context, id int) (*entities.Article, error) {
	removed, err := s.articleRepo.Delete(context.WithoutCancel(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete article: %w", err)
	}

	if removed.ImageURL != "" {
		s.images.RemoveAsync(removed.ImageURL)
	}

	s.logger.Infow("Article deleted successfully", "article_id", id)

	return removed, nil
}

// ListArticles returns every article in insertion order
func (s *ArticleService) ListArticles(ctx context.Context) ([]entities.Article, error) {
	articles, err := s.articleRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	return articles, nil
}
