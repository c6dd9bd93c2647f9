package batches

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/batch"
	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
)

var validate = validator.New()

// Register registers batch processing routes
func Register(g *echo.Group) {
	g.POST("", ProcessBatch)
	g.GET("/stats", GetStats)
	g.DELETE("/cache", ClearCache)
}

// ProcessBatchRequest is the request body for batch processing
type ProcessBatchRequest struct {
	Mode   string                `json:"mode" validate:"omitempty,oneof=detect merge"`
	Events []*models.EventRecord `json:"events" validate:"required,min=1"`
}

// ProcessBatch clusters duplicates across the submitted events and optionally merges them
func ProcessBatch(c echo.Context) error {
	ctx := c.Request().Context()

	var req ProcessBatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %s", err.Error())
	}

	mode, err := batch.ParseMode(req.Mode)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.ProcessBatch(ctx, req.Events, mode)
	if err != nil {
		if result != nil && result.Cancelled {
			// partial results are still useful to the caller
			return c.JSON(http.StatusAccepted, result)
		}
		if errors.Is(err, batch.ErrUnknownMode) {
			return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "batch processing failed: %v", err)
	}

	return c.JSON(http.StatusOK, result)
}

// GetStats returns cumulative batch statistics
func GetStats(c echo.Context) error {
	svc := context.GetService(c.Request().Context())
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	return c.JSON(http.StatusOK, svc.BatchStats())
}

// ClearCache drops every cached similarity score
func ClearCache(c echo.Context) error {
	svc := context.GetService(c.Request().Context())
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	svc.ClearCache()
	return c.NoContent(http.StatusNoContent)
}
