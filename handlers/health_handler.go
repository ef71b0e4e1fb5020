package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ViniciusThi/GuiVans/database"
)

// Health answers /health. Reports the database as a dependency so load
// balancers can drain a pod whose connection pool died.
func Health(c echo.Context) error {
	dbStatus := "ok"
	if sqlDB, err := database.DB.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "down"
	}
	status := http.StatusOK
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]string{
		"status":   "ok",
		"database": dbStatus,
	})
}
