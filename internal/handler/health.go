package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health responds with a small JSON payload so load balancers and
// orchestrators can probe the service.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
