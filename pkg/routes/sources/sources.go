package sources

import (
	"net/http"
	"sort"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
)

var validate = validator.New()

// Register registers data source routes
func Register(g *echo.Group) {
	g.GET("", ListSources)
	g.PUT("/:name", UpsertSource)
}

// UpsertSourceRequest is the request body for registering or updating a source
type UpsertSourceRequest struct {
	Reliability *float64 `json:"reliability" validate:"required,gte=0,lte=1"`
	DataQuality *float64 `json:"data_quality" validate:"required,gte=0,lte=1"`
}

// ListSources lists the registered data sources by name
func ListSources(c echo.Context) error {
	svc := context.GetService(c.Request().Context())
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	sources := svc.Sources()
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return c.JSON(http.StatusOK, sources)
}

// UpsertSource sets the reliability and quality of a data source
func UpsertSource(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.Param("name")

	var req UpsertSourceRequest
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

	if err := svc.UpdateSource(name, *req.Reliability, *req.DataQuality); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	for _, source := range svc.Sources() {
		if source.Name == name {
			return c.JSON(http.StatusOK, source)
		}
	}
	return httperror.NewHTTPErrorf(http.StatusInternalServerError, "source %s was not saved", name)
}
