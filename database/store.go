package database

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ViniciusThi/GuiVans/models"
)

// Store bundles the lookups and the single append the access-control core
// needs. Lookups report "not found" as (nil, nil); a non-nil error always
// means the database itself failed.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) FindVehicleByDeviceID(deviceID string) (*models.Vehicle, error) {
	var v models.Vehicle
	err := s.db.Preload("Driver").
		Where("device_id = ? AND active = ?", deviceID, true).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) FindActiveStudentByTagAndVehicle(tagID string, vehicleID uint) (*models.Student, error) {
	var st models.Student
	err := s.db.
		Where("tag_id = ? AND vehicle_id = ? AND active = ?", tagID, vehicleID, true).
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// FindActiveStudentByTag looks the tag up across every vehicle. Used by the
// enrollment flow to reject tags that are already issued somewhere.
func (s *Store) FindActiveStudentByTag(tagID string) (*models.Student, error) {
	var st models.Student
	err := s.db.Where("tag_id = ? AND active = ?", tagID, true).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) CountActiveStudentsByVehicle(vehicleID uint) (int64, error) {
	var n int64
	err := s.db.Model(&models.Student{}).
		Where("vehicle_id = ? AND active = ?", vehicleID, true).
		Count(&n).Error
	return n, err
}

func (s *Store) AppendAccessEvent(ev *models.AccessEvent) error {
	return s.db.Create(ev).Error
}

// CountEventsTodayByVehicleAndDirection counts authorized events since local
// midnight. Feeds the driver-panel occupancy numbers.
func (s *Store) CountEventsTodayByVehicleAndDirection(vehicleID uint, direction string) (int64, error) {
	start, end := todayBounds(time.Now())
	var n int64
	err := s.db.Model(&models.AccessEvent{}).
		Where("vehicle_id = ? AND direction = ? AND status = ? AND occurred_at >= ? AND occurred_at < ?",
			vehicleID, direction, models.OutcomeAuthorized, start, end).
		Count(&n).Error
	return n, err
}

func todayBounds(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.Add(24 * time.Hour)
}
