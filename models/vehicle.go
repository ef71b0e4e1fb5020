package models

import "time"

type Vehicle struct {
	ID       uint    `json:"id" gorm:"primaryKey"`
	Plate    string  `json:"plate" gorm:"size:10;uniqueIndex;not null"`
	Model    string  `json:"model" gorm:"size:60;not null"`
	Year     int     `json:"year" gorm:"not null"`
	Capacity int     `json:"capacity" gorm:"not null"` // seats, >= 1
	DriverID *uint   `json:"driver_id" gorm:"index"`
	Driver   *Driver `json:"driver,omitempty" gorm:"foreignKey:DriverID"`
	// DeviceID is the RFID reader bound to this vehicle (e.g. ESP32_VAN_001).
	// Nullable so vehicles can be registered before hardware arrives; unique
	// so one reader never authorizes for two vehicles.
	DeviceID  *string   `json:"device_id" gorm:"size:60;uniqueIndex"`
	Route     string    `json:"route" gorm:"size:120"`
	Active    bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
