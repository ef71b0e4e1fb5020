package models

import "time"

type Driver struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:120;not null"`
	LicenseNo string    `json:"license_no" gorm:"size:20;uniqueIndex;not null"`
	Phone     string    `json:"phone" gorm:"size:20;not null"`
	Email     string    `json:"email" gorm:"size:120;uniqueIndex;not null"`
	Password  string    `json:"-" gorm:"not null"` // bcrypt hash
	VehicleID *uint     `json:"vehicle_id" gorm:"index"`
	Vehicle   *Vehicle  `json:"vehicle,omitempty" gorm:"foreignKey:VehicleID"`
	Active    bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
