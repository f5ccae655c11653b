package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arqon/siteapi/internal/application/services"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
	"github.com/arqon/siteapi/internal/ports"
)

// ProjectHandler handles project-related requests
type ProjectHandler struct {
	projectService *services.ProjectService
	logger         *logger.Logger
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projectService *services.ProjectService, logger *logger.Logger) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		logger:         logger,
	}
}

// ListProjects godoc
// @Summary List projects
// @Description List every portfolio project in insertion order
// @Tags projects
// @Produce json
// @Success 200 {object} ListResponse[entities.Project]
// @Router /projects [get]
// @Router /admin/projects [get]
func (h *ProjectHandler) ListProjects(c echo.Context) error {
	projects, err := h.projectService.ListProjects(c.Request().Context())
	if err != nil {
		h.logger.Errorw("List projects failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to retrieve projects").SetInternal(err)
	}

	return c.JSON(http.StatusOK, newList(projects))
}

// GetProject godoc
// @Summary Get project by ID
// @Tags projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/projects/{id} [get]
func (h *ProjectHandler) GetProject(c echo.Context) error {
	projectID, ok := parseID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Project not found")
	}

	project, err := h.projectService.GetProject(c.Request().Context(), projectID)
	if err != nil {
		return recordError(err, "Project")
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: project})
}

// CreateProject godoc
// @Summary Create a new project
// @Description Accepts JSON or multipart/form-data with an optional "image" file
// @Tags projects
// @Accept json,mpfd
// @Produce json
// @Param request body ports.CreateProjectRequest true "Project data"
// @Success 201 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/projects [post]
func (h *ProjectHandler) CreateProject(c echo.Context) error {
	var req ports.CreateProjectRequest
	if isForm(c) {
		req.Title, _ = formString(c, "title")
		req.Category, _ = formString(c, "category")
		req.Location, _ = formString(c, "location")
		req.Year, _ = formString(c, "year")
		req.Description, _ = formString(c, "description")
		req.ImageURL, _ = formString(c, "imageUrl")
		req.SketchfabID = formPointer(c, "sketchfabId")
		req.SketchfabTitle = formPointer(c, "sketchfabTitle")
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

	project, err := h.projectService.CreateProject(c.Request().Context(), req, image)
	if err != nil {
		h.logger.Errorw("Create project failed", "error", err)
		return recordError(err, "Project")
	}

	return c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Message: "Project created successfully",
		Data:    project,
	})
}

// UpdateProject godoc
// @Summary Update a project
// @Description Partial update; omitted fields are kept. A new "image" file replaces the stored one.
// @Tags projects
// @Accept json,mpfd
// @Produce json
// @Param id path int true "Project ID"
// @Param request body ports.UpdateProjectRequest true "Fields to change"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/projects/{id} [put]
func (h *ProjectHandler) UpdateProject(c echo.Context) error {
	projectID, ok := parseID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Project not found")
	}

	var req ports.UpdateProjectRequest
	if isForm(c) {
		req.Title = formPointer(c, "title")
		req.Category = formPointer(c, "category")
		req.Location = formPointer(c, "location")
		req.Year = formPointer(c, "year")
		req.Description = formPointer(c, "description")
		req.ImageURL = formPointer(c, "imageUrl")
		req.SketchfabID = formPointer(c, "sketchfabId")
		req.SketchfabTitle = formPointer(c, "sketchfabTitle")
	} else if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	trimStrings(&req)

	if errs := blankFields(
		namedField{"title", req.Title},
		namedField{"category", req.Category},
		namedField{"location", req.Location},
		namedField{"year", req.Year},
		namedField{"description", req.Description},
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

	project, err := h.projectService.UpdateProject(c.Request().Context(), projectID, req, image)
	if err != nil {
		h.logger.Errorw("Update project failed", "error", err, "project_id", projectID)
		return recordError(err, "Project")
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Project updated successfully",
		Data:    project,
	})
}

// DeleteProject godoc
// @Summary Delete a project
// @Tags projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/projects/{id} [delete]
func (h *ProjectHandler) DeleteProject(c echo.Context) error {
	projectID, ok := parseID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Project not found")
	}

	project, err := h.projectService.DeleteProject(c.Request().Context(), projectID)
	if err != nil {
		h.logger.Errorw("Delete project failed", "error", err, "project_id", projectID)
		return recordError(err, "Project")
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Project deleted successfully",
		Data:    project,
	})
}
