package reports

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/ledger"
)

// Register registers reporting routes
func Register(g *echo.Group) {
	g.GET("/analytics", GetAnalytics)
	g.GET("/issues", GetQualityIssues)
	g.GET("/export", ExportLedger)
	g.POST("/import", ImportLedger)
	g.DELETE("/history", PruneLedger)
}

// GetAnalytics reports on merges in the optional [from, to) window (RFC3339 or YYYY-MM-DD)
func GetAnalytics(c echo.Context) error {
	ctx := c.Request().Context()

	from, err := parseBound(c.QueryParam("from"))
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid from: %v", err)
	}
	to, err := parseBound(c.QueryParam("to"))
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid to: %v", err)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return httperror.NewHTTPError(http.StatusBadRequest, "from must be before to")
	}

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	return c.JSON(http.StatusOK, svc.Analytics(ctx, from, to))
}

// GetQualityIssues reports problems in recent merges
func GetQualityIssues(c echo.Context) error {
	ctx := c.Request().Context()

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	return c.JSON(http.StatusOK, map[string]any{"issues": svc.QualityIssues(ctx)})
}

// ExportLedger streams the merge history as JSON or CSV
func ExportLedger(c echo.Context) error {
	ctx := c.Request().Context()
	format := formatParam(c)

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	var buf bytes.Buffer
	if err := svc.ExportLedger(ctx, &buf, format); err != nil {
		if errors.Is(err, ledger.ErrUnsupportedFormat) {
			return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to export ledger: %v", err)
	}

	contentType := echo.MIMEApplicationJSON
	if format == ledger.FormatCSV {
		contentType = "text/csv"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=merge-history.%s", format))
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}

// ImportLedger reads merge history from the request body. Invalid entries are reported, not fatal.
func ImportLedger(c echo.Context) error {
	ctx := c.Request().Context()
	format := formatParam(c)

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.ImportLedger(ctx, c.Request().Body, format)
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "failed to import ledger: %v", err)
	}

	return c.JSON(http.StatusOK, result)
}

// PruneLedger drops merge history older than the retention query parameter (a Go duration)
func PruneLedger(c echo.Context) error {
	ctx := c.Request().Context()

	retention, err := time.ParseDuration(c.QueryParam("retention"))
	if err != nil || retention <= 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "retention must be a positive duration such as 720h")
	}

	svc := context.GetService(ctx)
	if svc == nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	return c.JSON(http.StatusOK, map[string]int{"removed": svc.PruneLedger(ctx, retention)})
}

func formatParam(c echo.Context) string {
	format := strings.ToLower(c.QueryParam("format"))
	if format == "" {
		return ledger.FormatJSON
	}
	return format
}

func parseBound(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, value)
}
