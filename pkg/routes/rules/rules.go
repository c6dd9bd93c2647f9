package rules

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
)

var validate = validator.New()

// Register registers conflict rule routes
func Register(g *echo.Group) {
	g.GET("", ListRules)
	g.PUT("/:field", SetRule)
}

// ListRules returns the conflict rule of every field
func ListRules(c echo.Context) error {
	svc := context.GetService(c.Request().Context())
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	return c.JSON(http.StatusOK, svc.ConflictRules())
}

// SetRule installs the conflict rule for one field
func SetRule(c echo.Context) error {
	ctx := c.Request().Context()
	field := c.Param("field")

	var rule models.ConflictRule
	if err := c.Bind(&rule); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(rule); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid rule: %s", err.Error())
	}
	if !rule.Strategy.Valid() {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown conflict strategy %q", rule.Strategy)
	}

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := svc.SetConflictRule(field, rule); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, svc.ConflictRules()[field])
}
