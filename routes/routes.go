package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/ViniciusThi/GuiVans/access"
	"github.com/ViniciusThi/GuiVans/config"
	"github.com/ViniciusThi/GuiVans/database"
	"github.com/ViniciusThi/GuiVans/handlers"
	"github.com/ViniciusThi/GuiVans/middlewares"
	"github.com/ViniciusThi/GuiVans/realtime"
)

// Register wires all HTTP routes and the websocket endpoint. Reads stay
// public like the original deployment; mutations require the admin token.
func Register(e *echo.Echo, cfg *config.Config, hub *realtime.Hub, engine *access.Engine, store *database.Store) {
	auth := handlers.NewAuthHandler(cfg)
	drv := handlers.NewDriverHandler(cfg.JWTSecret)
	veh := handlers.NewVehicleHandler()
	std := handlers.NewStudentHandler()
	evt := handlers.NewEventHandler(engine, hub, store)
	ws := handlers.NewWSHandler(hub)

	guard := middlewares.RequireAuth(cfg.JWTSecret)
	adminOnly := middlewares.RequireRole("admin")

	e.GET("/health", handlers.Health)
	e.GET("/ws", ws.Serve)

	api := e.Group("/api")
	api.GET("/health", handlers.Health)

	// Device-facing ingest. Readers authenticate by device id binding, not
	// by token; an unbound device gets a deny either way.
	api.POST("/events/rfid", evt.IngestRFID)

	api.POST("/auth/admin/login", auth.AdminLogin)
	api.POST("/drivers/login", drv.Login)

	api.GET("/drivers", drv.List)
	api.GET("/drivers/:id", drv.Get)
	api.POST("/drivers", drv.Create, guard, adminOnly)
	api.PUT("/drivers/:id", drv.Update, guard, adminOnly)
	api.PUT("/drivers/:id/vehicle", drv.AssignVehicle, guard, adminOnly)
	api.DELETE("/drivers/:id", drv.Delete, guard, adminOnly)

	api.GET("/vehicles", veh.List)
	api.GET("/vehicles/:id", veh.Get)
	api.POST("/vehicles", veh.Create, guard, adminOnly)
	api.PUT("/vehicles/:id", veh.Update, guard, adminOnly)
	api.PUT("/vehicles/:id/device", veh.AssignDevice, guard, adminOnly)
	api.DELETE("/vehicles/:id", veh.Delete, guard, adminOnly)

	api.GET("/students", std.List)
	api.GET("/students/:id", std.Get)
	api.GET("/students/tag/:tagId", std.GetByTag)
	api.POST("/students", std.Create, guard, adminOnly)
	api.PUT("/students/:id", std.Update, guard, adminOnly)
	api.DELETE("/students/:id", std.Delete, guard, adminOnly)

	api.GET("/events", evt.List)
	api.GET("/events/vehicle/:id/today", evt.Today)
	api.GET("/events/stats/:id", evt.Stats)

	// Driver-app routes that need the token's identity.
	me := api.Group("/drivers/me", guard, middlewares.RequireRole("driver"))
	me.GET("", drv.Me)
}
