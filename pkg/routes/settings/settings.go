package settings

import (
	"errors"
	"io"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/models"
)

// maxDocumentBytes bounds configuration documents
const maxDocumentBytes = 1 << 20

// Register registers engine configuration routes
func Register(g *echo.Group) {
	g.GET("", GetConfig)
	g.PATCH("", UpdateConfig)
	g.PUT("", ImportConfig)
	g.GET("/export", ExportConfig)
}

// GetConfig returns the configuration in use
func GetConfig(c echo.Context) error {
	svc := context.GetService(c.Request().Context())
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	return c.JSON(http.StatusOK, svc.GetConfig())
}

// UpdateConfig deep-merges a partial JSON or YAML document over the configuration
func UpdateConfig(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := readDocument(c)
	if err != nil {
		return err
	}

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	config, err := svc.UpdateConfig(ctx, body)
	if err != nil {
		return configError(err)
	}
	return c.JSON(http.StatusOK, config)
}

// ImportConfig replaces the configuration with a document merged over the defaults
func ImportConfig(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := readDocument(c)
	if err != nil {
		return err
	}

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	config, err := svc.ImportConfig(ctx, body)
	if err != nil {
		return configError(err)
	}
	return c.JSON(http.StatusOK, config)
}

// ExportConfig renders the configuration as JSON or YAML
func ExportConfig(c echo.Context) error {
	svc := context.GetService(c.Request().Context())
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	format := c.QueryParam("format")
	doc, err := svc.ExportConfig(format)
	if err != nil {
		return configError(err)
	}

	contentType := echo.MIMEApplicationJSON
	if format == dedupe.ConfigFormatYAML || format == "yml" {
		contentType = "application/yaml"
	}
	return c.Blob(http.StatusOK, contentType, doc)
}

func readDocument(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxDocumentBytes))
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	return body, nil
}

func configError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidConfig), errors.Is(err, dedupe.ErrUnsupportedConfigFormat):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to apply configuration: %v", err)
	}
}
