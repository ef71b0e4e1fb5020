package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ViniciusThi/GuiVans/access"
	"github.com/ViniciusThi/GuiVans/database"
	"github.com/ViniciusThi/GuiVans/models"
	"github.com/ViniciusThi/GuiVans/realtime"
)

// EventHandler serves the access-event history and the HTTP ingest path for
// devices that cannot hold a websocket open.
type EventHandler struct {
	engine *access.Engine
	hub    *realtime.Hub
	store  *database.Store
}

func NewEventHandler(engine *access.Engine, hub *realtime.Hub, store *database.Store) *EventHandler {
	return &EventHandler{engine: engine, hub: hub, store: store}
}

const maxEventPage = 100

func (h *EventHandler) List(c echo.Context) error {
	tx := database.DB.Preload("Student").Preload("Vehicle")
	if v := c.QueryParam("vehicle_id"); v != "" {
		tx = tx.Where("vehicle_id = ?", atoiOr(v, 0))
	}
	if v := c.QueryParam("student_id"); v != "" {
		tx = tx.Where("student_id = ?", atoiOr(v, 0))
	}
	if d := strings.ToLower(c.QueryParam("direction")); d == models.DirectionIn || d == models.DirectionOut {
		tx = tx.Where("direction = ?", d)
	}
	if s := c.QueryParam("status"); s != "" {
		tx = tx.Where("status = ?", s)
	}
	if from := c.QueryParam("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			tx = tx.Where("occurred_at >= ?", t)
		}
	}
	if to := c.QueryParam("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			tx = tx.Where("occurred_at < ?", t)
		}
	}

	limit := atoiOr(c.QueryParam("limit"), maxEventPage)
	if limit < 1 || limit > maxEventPage {
		limit = maxEventPage
	}
	var items []models.AccessEvent
	if err := tx.Order("occurred_at DESC").Limit(limit).Find(&items).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	return c.JSON(http.StatusOK, items)
}

// Today lists a vehicle's events since local midnight, newest first. This is
// the driver panel's catch-up call after a reconnect.
func (h *EventHandler) Today(c echo.Context) error {
	vehicleID, ok := parseUintParam(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_VEHICLE_ID"})
	}
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var items []models.AccessEvent
	if err := database.DB.Preload("Student").
		Where("vehicle_id = ? AND occurred_at >= ?", vehicleID, start).
		Order("occurred_at DESC").Find(&items).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	return c.JSON(http.StatusOK, items)
}

// Stats returns today's boardings for a vehicle. Onboard is entries minus
// exits and can go briefly negative when a tap-out was missed yesterday;
// the panel clamps it at zero.
func (h *EventHandler) Stats(c echo.Context) error {
	vehicleID, ok := parseUintParam(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_VEHICLE_ID"})
	}
	entries, err := h.store.CountEventsTodayByVehicleAndDirection(vehicleID, models.DirectionIn)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	exits, err := h.store.CountEventsTodayByVehicleAndDirection(vehicleID, models.DirectionOut)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	total, err := h.store.CountActiveStudentsByVehicle(vehicleID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"today": map[string]int64{
			"entries": entries,
			"exits":   exits,
			"onboard": entries - exits,
		},
		"totalStudents": total,
	})
}

type rfidPayload struct {
	TagID       string `json:"tagId"`
	DeviceID    string `json:"deviceId"`
	Direction   string `json:"direction"`
	Geolocation *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"geolocation"`
}

// IngestRFID is the HTTP fallback for tag reads: same decision pipeline as
// the websocket path, minus the enrollment diversion. Always responds with
// an actuation payload the firmware can apply directly.
func (h *EventHandler) IngestRFID(c echo.Context) error {
	var p rfidPayload
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_PAYLOAD"})
	}
	p.TagID = strings.ToUpper(strings.TrimSpace(p.TagID))
	p.DeviceID = strings.TrimSpace(p.DeviceID)
	p.Direction = strings.ToLower(strings.TrimSpace(p.Direction))
	if p.TagID == "" || p.DeviceID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "TAG_AND_DEVICE_REQUIRED"})
	}
	if p.Direction != "" && p.Direction != models.DirectionIn && p.Direction != models.DirectionOut {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_DIRECTION"})
	}

	read := access.TagRead{TagID: p.TagID, DeviceID: p.DeviceID, Direction: p.Direction}
	if p.Geolocation != nil {
		read.Latitude = &p.Geolocation.Latitude
		read.Longitude = &p.Geolocation.Longitude
	}

	decision := h.engine.Authorize(read)
	if decision.Event != nil {
		h.hub.PublishAccessEvent(decision)
	}

	switch decision.Outcome {
	case models.OutcomeDenied:
		return c.JSON(http.StatusNotFound, decision)
	case models.OutcomeError:
		return c.JSON(http.StatusInternalServerError, decision)
	default:
		return c.JSON(http.StatusOK, decision)
	}
}
