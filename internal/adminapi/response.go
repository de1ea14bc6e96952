package adminapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/flasheng/flasheng/pkg/common"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorResponse body of every failed request
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ListResponse paged list body
type ListResponse struct {
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

func fail(c echo.Context, status int, code, message string, details interface{}) error {
	return c.JSON(status, ErrorResponse{Error: code, Message: message, Details: details})
}

func paged(c echo.Context, data interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, ListResponse{Data: data, Total: total, Page: page, PageSize: pageSize})
}

func parsePagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}
	return page, pageSize
}

// pageOf slices one page out of rows
func pageOf[T any](rows []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return []T{}
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

func parseIDParam(c echo.Context, name string) (int64, bool) {
	id := common.ParseInt64(c.Param(name))
	return id, id > 0
}

// requestError a body that could not be decoded or failed the struct validator
type requestError struct {
	code    string
	message string
	details interface{}
}

func (e *requestError) Error() string {
	return e.message
}

// bindAndValidate decodes the body and runs the struct validator. A non-nil
// error means nothing was written yet; render it with failFromError.
func bindAndValidate(c echo.Context, payload interface{}) error {
	if err := c.Bind(payload); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return &requestError{code: "INVALID_REQUEST", message: "Unable to parse request body", details: he.Message}
		}
		return &requestError{code: "INVALID_REQUEST", message: "Unable to parse request body", details: err.Error()}
	}
	if err := c.Validate(payload); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return &requestError{code: "VALIDATION_ERROR", message: "Invalid request", details: fields}
		}
		return &requestError{code: "VALIDATION_ERROR", message: err.Error()}
	}
	return nil
}

// failFromError maps service errors onto HTTP statuses
func failFromError(c echo.Context, err error) error {
	var (
		request     *requestError
		partial     *domain.PartialCommitError
		rollback    *domain.RollbackError
		cancelled   *domain.CancelledError
		validation  *domain.ValidationError
		notFound    *domain.NotFoundError
		conflict    *domain.ConflictError
		unavailable *domain.UnavailableError
	)
	switch {
	case errors.As(err, &request):
		return fail(c, http.StatusBadRequest, request.code, request.message, request.details)
	case errors.As(err, &partial):
		return fail(c, http.StatusInternalServerError, "RECONCILIATION_REQUIRED", "Order was partially committed and needs reconciliation",
			map[string][]string{"committed": partial.Committed, "uncommitted": partial.Uncommitted})
	case errors.As(err, &rollback):
		zap.L().Error("rollback failed", zap.String("namespace", "http"), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "ROLLBACK_FAILED", "Operation failed and could not be fully rolled back", nil)
	case errors.As(err, &cancelled):
		return fail(c, http.StatusRequestTimeout, "CANCELLED", "Request was cancelled", nil)
	case errors.As(err, &validation):
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", validation.Message, nil)
	case errors.As(err, &notFound):
		return fail(c, http.StatusNotFound, "NOT_FOUND", notFound.Error(), nil)
	case errors.As(err, &conflict):
		return fail(c, http.StatusConflict, "CONFLICT", conflict.Message, nil)
	case errors.As(err, &unavailable):
		return fail(c, http.StatusServiceUnavailable, "UNAVAILABLE", "Storage resource "+unavailable.Resource+" is unavailable", nil)
	default:
		zap.L().Error("request failed", zap.String("namespace", "http"), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}
