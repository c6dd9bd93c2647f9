package merges

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
)

var validate = validator.New()

// Register registers merge routes
func Register(g *echo.Group) {
	g.POST("", Merge)
	g.POST("/decisions", CreateDecision)
	g.POST("/execute", ExecuteDecision)
	g.GET("/history/:id", GetHistory)
	g.GET("/records/:id/primary", GetMergedInto)
	g.GET("/records/:id/duplicates", GetMergedFrom)
}

// MergeRequest is the request body for planning or performing a merge
type MergeRequest struct {
	Primary    *models.EventRecord   `json:"primary" validate:"required"`
	Duplicates []*models.EventRecord `json:"duplicates" validate:"required,min=1,dive,required"`
	Strategy   string                `json:"strategy"`
}

// DecisionResponse is a planned merge with any problems that would block execution
type DecisionResponse struct {
	Decision         *models.MergeDecision `json:"decision"`
	Valid            bool                  `json:"valid"`
	ValidationErrors []string              `json:"validation_errors,omitempty"`
}

// ExecuteRequest is the request body for executing a previously planned decision
type ExecuteRequest struct {
	Decision *models.MergeDecision `json:"decision" validate:"required"`
	Primary  *models.EventRecord   `json:"primary" validate:"required"`
}

func bindMergeRequest(c echo.Context) (*MergeRequest, error) {
	var req MergeRequest
	if err := c.Bind(&req); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %s", err.Error())
	}
	return &req, nil
}

// CreateDecision plans a merge without executing it
func CreateDecision(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := bindMergeRequest(c)
	if err != nil {
		return err
	}

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	decision, err := svc.CreateMergeDecision(ctx, req.Primary, req.Duplicates, req.Strategy)
	if err != nil {
		return mergeError(err)
	}

	resp := DecisionResponse{Decision: decision, Valid: true}
	var verr *merging.ValidationError
	if err := svc.ValidateMergeDecision(decision); errors.As(err, &verr) {
		resp.Valid = false
		resp.ValidationErrors = verr.Errors
	}

	return c.JSON(http.StatusOK, resp)
}

// Merge plans, validates, executes and records a merge
func Merge(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := bindMergeRequest(c)
	if err != nil {
		return err
	}

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	outcome, err := svc.Merge(ctx, req.Primary, req.Duplicates, req.Strategy, context.GetOperator(ctx))
	if err != nil {
		return mergeError(err)
	}
	if !outcome.Result.Success {
		return c.JSON(http.StatusUnprocessableEntity, outcome)
	}

	return c.JSON(http.StatusCreated, outcome)
}

// ExecuteDecision executes and records a decision built earlier
func ExecuteDecision(c echo.Context) error {
	ctx := c.Request().Context()

	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %s", err.Error())
	}

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.ExecuteMerge(ctx, req.Decision, req.Primary, context.GetOperator(ctx))
	if err != nil {
		return mergeError(err)
	}
	if !result.Success {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}

	return c.JSON(http.StatusCreated, result)
}

// GetHistory returns one ledger entry
func GetHistory(c echo.Context) error {
	svc := context.GetService(c.Request().Context())
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	id := c.Param("id")
	entry, ok := svc.Ledger().Get(id)
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "merge history %s not found", id)
	}
	return c.JSON(http.StatusOK, entry)
}

// GetMergedInto returns the primary a record was finally merged into
func GetMergedInto(c echo.Context) error {
	svc := context.GetService(c.Request().Context())
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	id := c.Param("id")
	primary, ok := svc.MergedInto(id)
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "record %s has not been merged", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id, "primary_id": primary})
}

// GetMergedFrom lists the records merged directly into a primary
func GetMergedFrom(c echo.Context) error {
	svc := context.GetService(c.Request().Context())
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	id := c.Param("id")
	ids := svc.MergedFrom(id)
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "duplicate_ids": ids})
}

func mergeError(err error) error {
	var verr *merging.ValidationError
	switch {
	case errors.As(err, &verr):
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, verr.Error())
	case errors.Is(err, merging.ErrNoPrimary), errors.Is(err, merging.ErrNoDuplicates), errors.Is(err, merging.ErrUnknownStrategy):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "merge failed: %v", err)
	}
}
