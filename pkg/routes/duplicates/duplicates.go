package duplicates

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
)

var validate = validator.New()

// Register registers duplicate detection routes
func Register(g *echo.Group) {
	g.POST("/check", CheckDuplicates)
}

// CheckRequest is the request body for a duplicate check
type CheckRequest struct {
	Target     *models.EventRecord   `json:"target" validate:"required"`
	Candidates []*models.EventRecord `json:"candidates" validate:"dive,required"`
}

// CheckDuplicates compares a target record against candidate records
func CheckDuplicates(c echo.Context) error {
	ctx := c.Request().Context()

	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %s", err.Error())
	}
	if req.Target.ID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "target.id is required")
	}

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.CheckForDuplicates(ctx, req.Target, req.Candidates)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, result)
}
