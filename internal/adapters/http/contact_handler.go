package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arqon/siteapi/internal/application/services"
	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
	"github.com/arqon/siteapi/internal/security"
)

// ContactRequest is the contact form payload. Lengths count runes.
type ContactRequest struct {
	Name    string `json:"name" form:"name" validate:"required,min=2,max=100,personname"`
	Email   string `json:"email" form:"email" validate:"required,max=254,email"`
	Phone   string `json:"phone" form:"phone" validate:"omitempty,min=8,max=20,phonechars"`
	Message string `json:"message" form:"message" validate:"required,min=10,max=5000"`
}

var contactMessages = map[string]string{
	"name.required":     "Nome é obrigatório",
	"name.min":          "Nome deve ter entre 2 e 100 caracteres",
	"name.max":          "Nome deve ter entre 2 e 100 caracteres",
	"name.personname":   "Nome deve conter apenas letras, espaços, apóstrofos e hífens",
	"email.required":    "Email é obrigatório",
	"email.email":       "Email inválido",
	"email.max":         "Email muito longo",
	"phone.min":         "Telefone deve ter entre 8 e 20 caracteres",
	"phone.max":         "Telefone deve ter entre 8 e 20 caracteres",
	"phone.phonechars":  "Telefone contém caracteres inválidos",
	"message.required":  "Mensagem é obrigatória",
	"message.min":       "Mensagem deve ter entre 10 e 5000 caracteres",
	"message.max":       "Mensagem deve ter entre 10 e 5000 caracteres",
	"message.sanitized": "Mensagem contém apenas conteúdo não permitido",
}

// ContactHandler handles contact form requests
type ContactHandler struct {
	contactService *services.ContactService
	logger         *logger.Logger
	now            func() time.Time
}

// NewContactHandler creates a new contact handler
func NewContactHandler(contactService *services.ContactService, logger *logger.Logger) *ContactHandler {
	return &ContactHandler{
		contactService: contactService,
		logger:         logger.WithComponent("contact"),
		now:            time.Now,
	}
}

// Submit godoc
// @Summary Submit the contact form
// @Description Validates and sanitizes the submission, then e-mails it to the firm
// @Tags contact
// @Accept json
// @Produce json
// @Param request body ContactRequest true "Contact form"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /contact [post]
func (h *ContactHandler) Submit(c echo.Context) error {
	var req ContactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Formato de requisição inválido")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Message = strings.TrimSpace(req.Message)

	var errs []FieldError
	if err := c.Validate(&req); err != nil {
		errs = fieldErrors(err, contactMessages)
	}

	sub := entities.ContactSubmission{
		Name:        security.EscapeHTML(req.Name),
		Email:       security.NormalizeEmail(req.Email),
		Phone:       security.EscapeHTML(req.Phone),
		Message:     security.SanitizeMessage(req.Message),
		IP:          c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
		SubmittedAt: h.now(),
	}
	if len(errs) == 0 && sub.Message == "" {
		errs = append(errs, FieldError{Field: "message", Message: contactMessages["message.sanitized"]})
	}

	if len(errs) > 0 {
		fields := make([]string, 0, len(errs))
		for _, fe := range errs {
			fields = append(fields, fe.Field+": "+fe.Message)
		}
		h.logger.Warnw("Contact validation failed", "ip", sub.IP, "errors", fields)
		return invalidFields("Dados inválidos", errs)
	}

	result, err := h.contactService.Submit(c.Request().Context(), sub)
	if err != nil {
		var limited *services.RateLimitError
		if errors.As(err, &limited) {
			c.Response().Header().Set("Retry-After", strconv.Itoa(limited.RetryAfter))
			return echo.NewHTTPError(http.StatusTooManyRequests, ErrorResponse{
				Message:    "Muitas mensagens enviadas com este email. Tente novamente mais tarde.",
				RetryAfter: limited.RetryAfter,
			})
		}

		h.logger.Errorw("Contact submission failed", "error", err, "ip", sub.IP)
		return echo.NewHTTPError(http.StatusInternalServerError,
			"Erro ao enviar mensagem. Tente novamente mais tarde.").SetInternal(err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Mensagem enviada com sucesso! Entraremos em contato em breve.",
		Data:    result,
	})
}

// Health godoc
// @Summary E-mail transport health
// @Tags contact
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 503 {object} ErrorResponse
// @Router /contact/health [get]
func (h *ContactHandler) Health(c echo.Context) error {
	if err := h.contactService.Health(c.Request().Context()); err != nil {
		h.logger.Warnw("Email transport unhealthy", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Email service unavailable").SetInternal(err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Email service is operational",
	})
}
