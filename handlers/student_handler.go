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

type StudentHandler struct{}

func NewStudentHandler() *StudentHandler { return &StudentHandler{} }

var (
	stuReEnrollment = regexp.MustCompile(`^[A-Za-z0-9\-]{1,20}$`)
	stuReTag        = regexp.MustCompile(`^[A-Fa-f0-9]{8,32}$`)
	stuRePhone      = regexp.MustCompile(`^[0-9+\- ]{8,20}$`)
)

var validShifts = map[string]bool{
	models.ShiftMorning:   true,
	models.ShiftAfternoon: true,
	models.ShiftEvening:   true,
}

type studentPayload struct {
	Name          string `json:"name"`
	EnrollmentNo  string `json:"enrollment_no"`
	TagID         string `json:"tag_id"`
	GuardianName  string `json:"guardian_name"`
	GuardianPhone string `json:"guardian_phone"`
	Address       string `json:"address"`
	VehicleID     uint   `json:"vehicle_id"`
	Shift         string `json:"shift"`
}

func (p *studentPayload) normalize() {
	p.Name = strings.Join(strings.Fields(p.Name), " ")
	p.EnrollmentNo = strings.TrimSpace(p.EnrollmentNo)
	p.TagID = strings.ToUpper(strings.TrimSpace(p.TagID))
	p.GuardianName = strings.Join(strings.Fields(p.GuardianName), " ")
	p.GuardianPhone = strings.TrimSpace(p.GuardianPhone)
	p.Address = strings.TrimSpace(p.Address)
	p.Shift = strings.ToLower(strings.TrimSpace(p.Shift))
}

func validateStudent(p *studentPayload) map[string]string {
	errs := map[string]string{}
	if p.Name == "" {
		errs["name"] = "name is required"
	}
	if !stuReEnrollment.MatchString(p.EnrollmentNo) {
		errs["enrollment_no"] = "enrollment number must be 1-20 letters, digits or dashes"
	}
	if !stuReTag.MatchString(p.TagID) {
		errs["tag_id"] = "tag id must be 8-32 hex characters"
	}
	if p.GuardianName == "" {
		errs["guardian_name"] = "guardian name is required"
	}
	if !stuRePhone.MatchString(p.GuardianPhone) {
		errs["guardian_phone"] = "guardian phone must be 8-20 digits"
	}
	if p.VehicleID == 0 {
		errs["vehicle_id"] = "vehicle is required"
	}
	if !validShifts[p.Shift] {
		errs["shift"] = "shift must be morning, afternoon or evening"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// tagHeldByOther reports whether an active student other than excludeID
// already carries tagID, on any vehicle.
func tagHeldByOther(tagID string, excludeID uint) (*models.Student, error) {
	var st models.Student
	err := database.DB.
		Where("tag_id = ? AND active = ? AND id <> ?", tagID, true, excludeID).
		First(&st).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// hasFreeSeat reports whether the vehicle can take one more active student.
// Seating exactly up to capacity is allowed; the first student past it is
// the conflict.
func hasFreeSeat(v *models.Vehicle, seated int64) bool {
	return seated < int64(v.Capacity)
}

// vehicleWithSeat loads an active vehicle and checks it has a free seat,
// not counting excludeStudentID (so moving a student within their own van
// never trips the check).
func vehicleWithSeat(vehicleID, excludeStudentID uint) (*models.Vehicle, int64, error) {
	var v models.Vehicle
	if err := database.DB.First(&v, "id = ? AND active = ?", vehicleID, true).Error; err != nil {
		return nil, 0, err
	}
	var seated int64
	err := database.DB.Model(&models.Student{}).
		Where("vehicle_id = ? AND active = ? AND id <> ?", vehicleID, true, excludeStudentID).
		Count(&seated).Error
	if err != nil {
		return nil, 0, err
	}
	return &v, seated, nil
}

func (h *StudentHandler) List(c echo.Context) error {
	var items []models.Student
	tx := database.DB.Preload("Vehicle")
	if c.QueryParam("all") != "true" {
		tx = tx.Where("active = ?", true)
	}
	if v := c.QueryParam("vehicle_id"); v != "" {
		tx = tx.Where("vehicle_id = ?", atoiOr(v, 0))
	}
	if s := strings.ToLower(c.QueryParam("shift")); s != "" {
		tx = tx.Where("shift = ?", s)
	}
	if err := tx.Order("name").Find(&items).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	return c.JSON(http.StatusOK, items)
}

func (h *StudentHandler) Get(c echo.Context) error {
	var s models.Student
	if err := database.DB.Preload("Vehicle").First(&s, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	return c.JSON(http.StatusOK, s)
}

// GetByTag resolves an active student from a raw tag id. Used by the admin
// UI after an enrollment read to show who, if anyone, holds the tag.
func (h *StudentHandler) GetByTag(c echo.Context) error {
	tagID := strings.ToUpper(strings.TrimSpace(c.Param("tagId")))
	var s models.Student
	if err := database.DB.Preload("Vehicle").
		First(&s, "tag_id = ? AND active = ?", tagID, true).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	return c.JSON(http.StatusOK, s)
}

func (h *StudentHandler) Create(c echo.Context) error {
	var p studentPayload
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_PAYLOAD"})
	}
	p.normalize()
	if errs := validateStudent(&p); errs != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "VALIDATION_ERROR", "fields": errs})
	}

	holder, err := tagHeldByOther(p.TagID, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if holder != nil {
		return c.JSON(http.StatusConflict, map[string]any{
			"error":   "TAG_ALREADY_ASSIGNED",
			"student": holder.Summary(),
		})
	}

	var count int64
	if err := database.DB.Model(&models.Student{}).
		Where("enrollment_no = ?", p.EnrollmentNo).Count(&count).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if count > 0 {
		return c.JSON(http.StatusConflict, map[string]string{"error": "ENROLLMENT_NO_ALREADY_EXISTS"})
	}

	v, seated, err := vehicleWithSeat(p.VehicleID, 0)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "VEHICLE_NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if !hasFreeSeat(v, seated) {
		return c.JSON(http.StatusConflict, map[string]any{
			"error":    "CAPACITY_FULL",
			"capacity": v.Capacity,
		})
	}

	s := models.Student{
		Name: p.Name, EnrollmentNo: p.EnrollmentNo, TagID: p.TagID,
		GuardianName: p.GuardianName, GuardianPhone: p.GuardianPhone,
		Address: p.Address, VehicleID: p.VehicleID, Shift: p.Shift, Active: true,
	}
	if err := database.DB.Create(&s).Error; err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *StudentHandler) Update(c echo.Context) error {
	var existing models.Student
	if err := database.DB.First(&existing, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	var p studentPayload
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_PAYLOAD"})
	}
	p.normalize()
	if errs := validateStudent(&p); errs != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "VALIDATION_ERROR", "fields": errs})
	}

	holder, err := tagHeldByOther(p.TagID, existing.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if holder != nil {
		return c.JSON(http.StatusConflict, map[string]any{
			"error":   "TAG_ALREADY_ASSIGNED",
			"student": holder.Summary(),
		})
	}

	var count int64
	if err := database.DB.Model(&models.Student{}).
		Where("enrollment_no = ? AND id <> ?", p.EnrollmentNo, existing.ID).
		Count(&count).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if count > 0 {
		return c.JSON(http.StatusConflict, map[string]string{"error": "ENROLLMENT_NO_ALREADY_EXISTS"})
	}

	v, seated, err := vehicleWithSeat(p.VehicleID, existing.ID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "VEHICLE_NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	if !hasFreeSeat(v, seated) {
		return c.JSON(http.StatusConflict, map[string]any{
			"error":    "CAPACITY_FULL",
			"capacity": v.Capacity,
		})
	}

	existing.Name = p.Name
	existing.EnrollmentNo = p.EnrollmentNo
	existing.TagID = p.TagID
	existing.GuardianName = p.GuardianName
	existing.GuardianPhone = p.GuardianPhone
	existing.Address = p.Address
	existing.VehicleID = p.VehicleID
	existing.Shift = p.Shift
	if err := database.DB.Save(&existing).Error; err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, existing)
}

// Delete deactivates the student. The row stays for the audit trail; the
// tag becomes free for reassignment the moment active flips off.
func (h *StudentHandler) Delete(c echo.Context) error {
	var s models.Student
	if err := database.DB.First(&s, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_QUERY_FAILED"})
	}
	s.Active = false
	if err := database.DB.Save(&s).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB_UPDATE_FAILED"})
	}
	return c.NoContent(http.StatusNoContent)
}
