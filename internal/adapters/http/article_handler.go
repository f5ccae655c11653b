package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arqon/siteapi/internal/application/services"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
	"github.com/arqon/siteapi/internal/ports"
)

// ArticleHandler handles article-related requests
type ArticleHandler struct {
	articleService *services.ArticleService
	logger         *logger.Logger
}

// NewArticleHandler creates a new article handler
func NewArticleHandler(articleService *services.ArticleService, logger *logger.Logger) *ArticleHandler {
	return &ArticleHandler{
		articleService: articleService,
		logger:         logger,
	}
}

// ListArticles godoc
// @Summary List articles
// @Tags articles
// @Produce json
// @Success 200 {object} ListResponse[entities.Article]
// @Router /articles [get]
// @Router /admin/articles [get]
func (h *ArticleHandler) ListArticles(c echo.Context) error {
	articles, err := h.articleService.ListArticles(c.Request().Context())
	if err != nil {
		h.logger.Errorw("List articles failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to retrieve articles").SetInternal(err)
	}

	return c.JSON(http.StatusOK, newList(articles))
}

// GetArticle godoc
// @Summary Get article by ID
// @Tags articles
// @Produce json
// @Param id path int true "Article ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/articles/{id} [get]
func (h *ArticleHandler) GetArticle(c echo.Context) error {
	articleID, ok := parseID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Article not found")
	}

	article, err := h.articleService.GetArticle(c.Request().Context(), articleID)
	if err != nil {
		return recordError(err, "Article")
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: article})
}

// CreateArticle godoc
// @Summary Create a new article
// @Description Accepts JSON or multipart/form-data with an optional "image" file
// @Tags articles
// @Accept json,mpfd
// @Produce json
// @Param request body ports.CreateArticleRequest true "Article data"
// @Success 201 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/articles [post]
func (h *ArticleHandler) CreateArticle(c echo.Context) error {
	var req ports.CreateArticleRequest
	if isForm(c) {
		req.Title, _ = formString(c, "title")
		req.Content, _ = formString(c, "content")
		req.Author, _ = formString(c, "author")
		req.Category, _ = formString(c, "category")
		req.Date, _ = formString(c, "date")
		req.ImageURL, _ = formString(c, "imageUrl")
	} else if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	trimStrings(&req)

	if err := c.Validate(&req); err != nil {
		return invalidFields("Missing required fields", fieldErrors(err, nil))
	}

	image, err := formImage(c)
	if err != nil {
		return err
	}

	article, err := h.articleService.CreateArticle(c.Request().Context(), req, image)
	if err != nil {
		h.logger.Errorw("Create article failed", "error", err)
		return recordError(err, "Article")
	}

	return c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Message: "Article created successfully",
		Data:    article,
	})
}

// UpdateArticle godoc
// @Summary Update an article
// @Tags articles
// @Accept json,mpfd
// @Produce json
// @Param id path int true "Article ID"
// @Param request body ports.UpdateArticleRequest true "Fields to change"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/articles/{id} [put]
func (h *ArticleHandler) UpdateArticle(c echo.Context) error {
	articleID, ok := parseID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Article not found")
	}

	var req ports.UpdateArticleRequest
	if isForm(c) {
		req.Title = formPointer(c, "title")
		req.Content = formPointer(c, "content")
		req.Author = formPointer(c, "author")
		req.Category = formPointer(c, "category")
		req.Date = formPointer(c, "date")
		req.ImageURL = formPointer(c, "imageUrl")
	} else if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	trimStrings(&req)

	if errs := blankFields(
		namedField{"title", req.Title},
		namedField{"content", req.Content},
		namedField{"author", req.Author},
		namedField{"category", req.Category},
	); len(errs) > 0 {
		return invalidFields("Invalid fields", errs)
	}
	if err := c.Validate(&req); err != nil {
		return invalidFields("Invalid fields", fieldErrors(err, nil))
	}

	image, err := formImage(c)
	if err != nil {
		return err
	}

	article, err := h.articleService.UpdateArticle(c.Request().Context(), articleID, req, image)
	if err != nil {
		h.logger.Errorw("Update article failed", "error", err, "article_id", articleID)
		return recordError(err, "Article")
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Article updated successfully",
		Data:    article,
	})
}

// DeleteArticle godoc
// @Summary Delete an article
// @Tags articles
// @Produce json
// @Param id path int true "Article ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/articles/{id} [delete]
func (h *ArticleHandler) DeleteArticle(c echo.Context) error {
	articleID, ok := parseID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Article not found")
	}

	article, err := h.articleService.DeleteArticle(c.Request().Context(), articleID)
	if err != nil {
		h.logger.Errorw("Delete article failed", "error", err, "article_id", articleID)
		return recordError(err, "Article")
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Article deleted successfully",
		Data:    article,
	})
}
