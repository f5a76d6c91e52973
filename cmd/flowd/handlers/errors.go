package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/store"
)

// writeError maps engine and store errors to HTTP responses.
func writeError(c echo.Context, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}

	status := http.StatusInternalServerError
	switch flowerr.KindOf(err) {
	case flowerr.KindInvalidWorkflow, flowerr.KindUnknownNodeType:
		status = http.StatusBadRequest
	case flowerr.KindCredentialMissing:
		status = http.StatusUnprocessableEntity
	case flowerr.KindRateLimited:
		status = http.StatusTooManyRequests
	case flowerr.KindTimeout:
		status = http.StatusGatewayTimeout
	case flowerr.KindCancelled:
		status = http.StatusConflict
	}

	return c.JSON(status, echo.Map{
		"error": err.Error(),
		"kind":  string(flowerr.KindOf(err)),
	})
}
