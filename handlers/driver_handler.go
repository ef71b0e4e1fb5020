package handlers

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ViniciusThi/GuiVans/database"
	"github.com/ViniciusThi/GuiVans/middlewares"
	"github.com/ViniciusThi/GuiVans/models"
)

type DriverHandler struct {
	JWTSecret string
}

func NewDriverHandler(secret string) *DriverHandler {
	return &DriverHandler{JWTSecret: secret}
}

var (
	drvReEmail   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	drvRePhone   = regexp.MustCompile(`^[0-9+\- ]{8,20}$`)
	drvReLicense = regexp.MustCompile(`^[A-Za-z0-9\-]{5,20}$`)
)

type driverPayload struct {
	Name      string `json:"name"`
	LicenseNo string `json:"license_no"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	VehicleID *uint  `json:"vehicle_id"`
}

func (p *driverPayload) normalize() {
	p.Name = strings.Join(strings.Fields(p.Name), " ")
	p.LicenseNo = strings.ToUpper(strings.TrimSpace(p.LicenseNo))
	p.Phone = strings.TrimSpace(p.Phone)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
}

func validateDriver(p *driverPayload, creating bool) map[string]string {
	errs := map[string]string{}
	if p.Name == "" {
		errs["name"] = "name is required"
	}
	if !drvReLicense.MatchString(p.LicenseNo) {
		errs["license_no"] = "license number must be 5-20 letters, digits or dashes"
	}
	if !drvRePhone.MatchString(p.Phone) {
		errs["phone"] = "phone must be 8-20 digits"
	}
	if !drvReEmail.MatchString(p.Email) {
		errs["email"] = "invalid email"
	}
	if creating && len(p.Password) < 6 {
		errs["password"] = "password must be at least 6 characters"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (h *DriverHandler) List(c echo.Context) error {
	var items []models.Driver
	tx := database.DB.Preload("Vehicle")
	if c.QueryParam("all") != "true" {
		tx = tx.Where("active = ?", true)
	}
	if err := tx.Order("id").Find(&items).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	return c.JSON(http.StatusOK, items)
}

func (h *DriverHandler) Get(c echo.Context) error {
	var d models.Driver
	if err := database.DB.Preload("Vehicle").First(&d, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	return c.JSON(http.StatusOK, d)
}

func (h *DriverHandler) Create(c echo.Context) error {
	var p driverPayload
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_PAYLOAD"})
	}
	p.normalize()
	if errs := validateDriver(&p, true); errs != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "VALIDATION_ERROR", "fields": errs})
	}

	var count int64
	if err := database.DB.Model(&models.Driver{}).
		Where("email = ? OR license_no = ?", p.Email, p.LicenseNo).
		Count(&count).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if count > 0 {
		return c.JSON(http.StatusConflict, map[string]string{"error": "DRIVER_ALREADY_EXISTS"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "HASH_FAILED"})
	}
	d := models.Driver{
		Name: p.Name, LicenseNo: p.LicenseNo, Phone: p.Phone,
		Email: p.Email, Password: string(hash), Active: true,
	}
	if err := database.DB.Create(&d).Error; err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *DriverHandler) Update(c echo.Context) error {
	var existing models.Driver
	if err := database.DB.First(&existing, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	var p driverPayload
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_PAYLOAD"})
	}
	p.normalize()
	if errs := validateDriver(&p, false); errs != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "VALIDATION_ERROR", "fields": errs})
	}

	var count int64
	if err := database.DB.Model(&models.Driver{}).
		Where("(email = ? OR license_no = ?) AND id <> ?", p.Email, p.LicenseNo, existing.ID).
		Count(&count).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if count > 0 {
		return c.JSON(http.StatusConflict, map[string]string{"error": "DRIVER_ALREADY_EXISTS"})
	}

	existing.Name = p.Name
	existing.LicenseNo = p.LicenseNo
	existing.Phone = p.Phone
	existing.Email = p.Email
	if p.Password != "" {
		if len(p.Password) < 6 {
			return c.JSON(http.StatusBadRequest, map[string]any{
				"error": "VALIDATION_ERROR", "fields": map[string]string{"password": "password must be at least 6 characters"},
			})
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "HASH_FAILED"})
		}
		existing.Password = string(hash)
	}
	if err := database.DB.Save(&existing).Error; err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, existing)
}

// AssignVehicle binds a driver to a vehicle (or unbinds with a null
// vehicle_id). The binding is kept two-way: the vehicle row's driver_id and
// the driver row's vehicle_id always agree.
func (h *DriverHandler) AssignVehicle(c echo.Context) error {
	var d models.Driver
	if err := database.DB.First(&d, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	var p struct {
		VehicleID *uint `json:"vehicle_id"`
	}
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_PAYLOAD"})
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		// Release the vehicle the driver held before.
		if d.VehicleID != nil {
			if err := tx.Model(&models.Vehicle{}).
				Where("id = ? AND driver_id = ?", *d.VehicleID, d.ID).
				Update("driver_id", nil).Error; err != nil {
				return err
			}
		}
		if p.VehicleID != nil {
			var v models.Vehicle
			if err := tx.First(&v, "id = ? AND active = ?", *p.VehicleID, true).Error; err != nil {
				return err
			}
			if v.DriverID != nil && *v.DriverID != d.ID {
				return echo.NewHTTPError(http.StatusConflict, map[string]any{"error": "VEHICLE_ALREADY_ASSIGNED"})
			}
			if err := tx.Model(&v).Update("driver_id", d.ID).Error; err != nil {
				return err
			}
		}
		d.VehicleID = p.VehicleID
		return tx.Save(&d).Error
	})
	if err != nil {
		if he, ok := err.(*echo.HTTPError); ok {
			return c.JSON(he.Code, he.Message)
		}
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "VEHICLE_NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_UPDATE_FAILED"})
	}
	return c.JSON(http.StatusOK, d)
}

func (h *DriverHandler) Delete(c echo.Context) error {
	var d models.Driver
	if err := database.DB.First(&d, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if d.VehicleID != nil {
			if err := tx.Model(&models.Vehicle{}).
				Where("id = ? AND driver_id = ?", *d.VehicleID, d.ID).
				Update("driver_id", nil).Error; err != nil {
				return err
			}
		}
		d.Active = false
		d.VehicleID = nil
		return tx.Save(&d).Error
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_UPDATE_FAILED"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Login authenticates a driver and issues a token that already carries the
// driver's id and bound vehicle, so the driver app never has to guess which
// record is "its" driver.
func (h *DriverHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_PAYLOAD"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var d models.Driver
	if err := database.DB.Preload("Vehicle").
		First(&d, "email = ? AND active = ?", req.Email, true).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "INVALID_CREDENTIALS"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if bcrypt.CompareHashAndPassword([]byte(d.Password), []byte(req.Password)) != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "INVALID_CREDENTIALS"})
	}

	now := time.Now()
	claims := middlewares.Claims{
		DriverID:  d.ID,
		VehicleID: d.VehicleID,
		Role:      "driver",
		Name:      d.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   d.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}
	tk := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tk.SignedString([]byte(h.JWTSecret))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "TOKEN_SIGN_FAILED"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"token":  signed,
		"driver": d,
	})
}

// Me returns the authenticated driver, resolved from the token claims.
func (h *DriverHandler) Me(c echo.Context) error {
	driverID, _ := c.Get("driver_id").(uint)
	if driverID == 0 {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "INVALID_TOKEN"})
	}
	var d models.Driver
	if err := database.DB.Preload("Vehicle").First(&d, "id = ?", driverID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	return c.JSON(http.StatusOK, d)
}
