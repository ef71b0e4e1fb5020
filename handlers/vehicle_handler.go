package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ViniciusThi/GuiVans/database"
	"github.com/ViniciusThi/GuiVans/models"
)

type VehicleHandler struct{}

func NewVehicleHandler() *VehicleHandler { return &VehicleHandler{} }

var (
	vehRePlate  = regexp.MustCompile(`^[A-Z0-9\-]{5,10}$`)
	vehReDevice = regexp.MustCompile(`^[A-Za-z0-9_\-]{4,60}$`)
)

type vehiclePayload struct {
	Plate    string  `json:"plate"`
	Model    string  `json:"model"`
	Year     int     `json:"year"`
	Capacity int     `json:"capacity"`
	DeviceID *string `json:"device_id"`
	Route    string  `json:"route"`
}

func (p *vehiclePayload) normalize() {
	p.Plate = strings.ToUpper(strings.TrimSpace(p.Plate))
	p.Model = strings.Join(strings.Fields(p.Model), " ")
	p.Route = strings.TrimSpace(p.Route)
	if p.DeviceID != nil {
		d := strings.TrimSpace(*p.DeviceID)
		if d == "" {
			p.DeviceID = nil
		} else {
			p.DeviceID = &d
		}
	}
}

func validateVehicle(p *vehiclePayload) map[string]string {
	errs := map[string]string{}
	if !vehRePlate.MatchString(p.Plate) {
		errs["plate"] = "plate must be 5-10 uppercase letters, digits or dashes"
	}
	if p.Model == "" {
		errs["model"] = "model is required"
	}
	if p.Year < 1990 || p.Year > 2100 {
		errs["year"] = "year out of range"
	}
	if p.Capacity < 1 {
		errs["capacity"] = "capacity must be at least 1"
	}
	if p.DeviceID != nil && !vehReDevice.MatchString(*p.DeviceID) {
		errs["device_id"] = "device id must be 4-60 letters, digits, dashes or underscores"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// deviceInUse reports whether another vehicle already holds deviceID.
func deviceInUse(deviceID string, excludeID uint) (bool, error) {
	var count int64
	err := database.DB.Model(&models.Vehicle{}).
		Where("device_id = ? AND id <> ?", deviceID, excludeID).
		Count(&count).Error
	return count > 0, err
}

func (h *VehicleHandler) List(c echo.Context) error {
	var items []models.Vehicle
	tx := database.DB.Preload("Driver")
	if c.QueryParam("all") != "true" {
		tx = tx.Where("active = ?", true)
	}
	if err := tx.Order("id").Find(&items).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	return c.JSON(http.StatusOK, items)
}

// Get returns the vehicle with its roster and current seat usage.
func (h *VehicleHandler) Get(c echo.Context) error {
	var v models.Vehicle
	if err := database.DB.Preload("Driver").First(&v, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	var students []models.Student
	if err := database.DB.
		Where("vehicle_id = ? AND active = ?", v.ID, true).
		Order("name").Find(&students).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"vehicle":    v,
		"students":   students,
		"seats_used": len(students),
	})
}

func (h *VehicleHandler) Create(c echo.Context) error {
	var p vehiclePayload
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_PAYLOAD"})
	}
	p.normalize()
	if errs := validateVehicle(&p); errs != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "VALIDATION_ERROR", "fields": errs})
	}

	var count int64
	if err := database.DB.Model(&models.Vehicle{}).
		Where("plate = ?", p.Plate).Count(&count).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if count > 0 {
		return c.JSON(http.StatusConflict, map[string]string{"error": "PLATE_ALREADY_EXISTS"})
	}
	if p.DeviceID != nil {
		used, err := deviceInUse(*p.DeviceID, 0)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
		}
		if used {
			return c.JSON(http.StatusConflict, map[string]string{"error": "DEVICE_ALREADY_BOUND"})
		}
	}

	v := models.Vehicle{
		Plate: p.Plate, Model: p.Model, Year: p.Year, Capacity: p.Capacity,
		DeviceID: p.DeviceID, Route: p.Route, Active: true,
	}
	if err := database.DB.Create(&v).Error; err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *VehicleHandler) Update(c echo.Context) error {
	var existing models.Vehicle
	if err := database.DB.First(&existing, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	var p vehiclePayload
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_PAYLOAD"})
	}
	p.normalize()
	if errs := validateVehicle(&p); errs != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "VALIDATION_ERROR", "fields": errs})
	}

	var count int64
	if err := database.DB.Model(&models.Vehicle{}).
		Where("plate = ? AND id <> ?", p.Plate, existing.ID).Count(&count).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if count > 0 {
		return c.JSON(http.StatusConflict, map[string]string{"error": "PLATE_ALREADY_EXISTS"})
	}
	if p.DeviceID != nil {
		used, err := deviceInUse(*p.DeviceID, existing.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
		}
		if used {
			return c.JSON(http.StatusConflict, map[string]string{"error": "DEVICE_ALREADY_BOUND"})
		}
	}

	// Shrinking capacity below the current roster would strand students.
	var seated int64
	if err := database.DB.Model(&models.Student{}).
		Where("vehicle_id = ? AND active = ?", existing.ID, true).
		Count(&seated).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if int64(p.Capacity) < seated {
		return c.JSON(http.StatusConflict, map[string]any{
			"error":      "CAPACITY_BELOW_ROSTER",
			"seats_used": seated,
		})
	}

	existing.Plate = p.Plate
	existing.Model = p.Model
	existing.Year = p.Year
	existing.Capacity = p.Capacity
	existing.DeviceID = p.DeviceID
	existing.Route = p.Route
	if err := database.DB.Save(&existing).Error; err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, existing)
}

// AssignDevice binds or unbinds the RFID reader without touching the rest of
// the vehicle record. A null device_id releases the reader.
func (h *VehicleHandler) AssignDevice(c echo.Context) error {
	var v models.Vehicle
	if err := database.DB.First(&v, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	var p struct {
		DeviceID *string `json:"device_id"`
	}
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_PAYLOAD"})
	}
	if p.DeviceID != nil {
		d := strings.TrimSpace(*p.DeviceID)
		if !vehReDevice.MatchString(d) {
			return c.JSON(http.StatusBadRequest, map[string]any{
				"error": "VALIDATION_ERROR", "fields": map[string]string{"device_id": "invalid device id"},
			})
		}
		used, err := deviceInUse(d, v.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
		}
		if used {
			return c.JSON(http.StatusConflict, map[string]string{"error": "DEVICE_ALREADY_BOUND"})
		}
		p.DeviceID = &d
	}
	if err := database.DB.Model(&v).Update("device_id", p.DeviceID).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_UPDATE_FAILED"})
	}
	v.DeviceID = p.DeviceID
	return c.JSON(http.StatusOK, v)
}

// Delete deactivates the vehicle. The row stays because access events
// reference it; a vehicle with active students cannot be removed.
func (h *VehicleHandler) Delete(c echo.Context) error {
	var v models.Vehicle
	if err := database.DB.First(&v, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	var seated int64
	if err := database.DB.Model(&models.Student{}).
		Where("vehicle_id = ? AND active = ?", v.ID, true).
		Count(&seated).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if seated > 0 {
		return c.JSON(http.StatusConflict, map[string]any{
			"error":      "VEHICLE_HAS_STUDENTS",
			"seats_used": seated,
		})
	}
	v.Active = false
	v.DeviceID = nil
	if err := database.DB.Save(&v).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_UPDATE_FAILED"})
	}
	return c.NoContent(http.StatusNoContent)
}
