package http

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/arqon/siteapi/internal/domain/entities"
)

var (
	personNameRegex = regexp.MustCompile(`^[\p{L}\p{M}' -]+$`)
	phoneCharsRegex = regexp.MustCompile(`^[0-9 +\-().]+$`)
)

// CustomValidator wraps the validator
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates the request validator with the custom tags used by
// the contact form. Field errors are reported under their JSON names.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNameRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phonechars", func(fl validator.FieldLevel) bool {
		return phoneCharsRegex.MatchString(fl.Field().String())
	})
	return &CustomValidator{validator: v}
}

// Validate validates structs
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// Request/Response types

// SuccessResponse wraps a single result
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse wraps a collection
type ListResponse[T any] struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Data    []T  `json:"data"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success    bool         `json:"success"`
	Message    string       `json:"message"`
	Error      string       `json:"error,omitempty"`
	RetryAfter int          `json:"retryAfter,omitempty"`
	Errors     []FieldError `json:"errors,omitempty"`
}

// FieldError describes one rejected input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// HealthResponse is returned by GET /api/health
type HealthResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
}

// Utility functions

func newList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Success: true, Count: len(items), Data: items}
}

// fieldErrors converts validator output into field errors. messages is
// keyed by "field.tag"; missing entries fall back to a generic message.
func fieldErrors(err error, messages map[string]string) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := messages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = genericMessage(fe)
		}
		out = append(out, FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}

func genericMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func invalidFields(message string, errs []FieldError) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, ErrorResponse{
		Message: message,
		Errors:  errs,
	})
}

// parseID returns false for ids that can never match a record
func parseID(c echo.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func isForm(c echo.Context) bool {
	ctype := c.Request().Header.Get(echo.HeaderContentType)
	return strings.HasPrefix(ctype, echo.MIMEMultipartForm) ||
		strings.HasPrefix(ctype, echo.MIMEApplicationForm)
}

// formString returns the value of key and whether it was submitted at all
func formString(c echo.Context, key string) (string, bool) {
	form, err := c.FormParams()
	if err != nil {
		return "", false
	}
	values, ok := form[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return strings.TrimSpace(values[len(values)-1]), true
}

func formPointer(c echo.Context, key string) *string {
	if v, ok := formString(c, key); ok {
		return &v
	}
	return nil
}

// trimStrings trims the string and *string fields of the struct v points to
func trimStrings(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	rv = rv.Elem()
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		switch {
		case f.Kind() == reflect.String && f.CanSet():
			f.SetString(strings.TrimSpace(f.String()))
		case f.Kind() == reflect.Ptr && !f.IsNil() && f.Elem().Kind() == reflect.String:
			f.Elem().SetString(strings.TrimSpace(f.Elem().String()))
		}
	}
}

// namedField pairs a JSON field name with an optional update value
type namedField struct {
	name  string
	value *string
}

// blankFields reports fields that were sent but hold no text. Partial
// updates may omit a required field, not clear it.
func blankFields(fields ...namedField) []FieldError {
	var errs []FieldError
	for _, f := range fields {
		if f.value != nil && *f.value == "" {
			errs = append(errs, FieldError{Field: f.name, Message: f.name + " cannot be empty"})
		}
	}
	return errs
}

// formImage returns the uploaded "image" part, or nil when none was sent
func formImage(c echo.Context) (*multipart.FileHeader, error) {
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return nil, nil
	}
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid multipart form").SetInternal(err)
	}
	return fh, nil
}

// recordError maps service errors of the admin routes to HTTP errors
func recordError(err error, kind string) error {
	switch {
	case errors.Is(err, entities.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, kind+" not found")
	case errors.Is(err, entities.ErrMissingImage):
		return invalidFields("Missing required fields", []FieldError{{Field: "image", Message: err.Error()}})
	case errors.Is(err, entities.ErrUnsupportedUpload):
		return invalidFields("Invalid image", []FieldError{{Field: "image", Message: "only jpeg, png and webp images are accepted"}})
	case errors.Is(err, entities.ErrUploadTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Image exceeds the 5MB limit")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save "+strings.ToLower(kind)).SetInternal(err)
	}
}
