package models

import "time"

// Access event outcomes. "denied" is returned to devices that resolve to no
// vehicle and is never persisted; persisted rows carry authorized or unknown.
const (
	OutcomeAuthorized = "authorized"
	OutcomeDenied     = "denied"
	OutcomeUnknown    = "unknown"
	OutcomeError      = "error"
)

// Directions a tag read can carry.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// AccessEvent is the append-only audit trail of tag reads. Rows are never
// updated after creation; occupancy statistics are derived from them.
type AccessEvent struct {
	ID        uint     `json:"id" gorm:"primaryKey"`
	StudentID *uint    `json:"student_id" gorm:"index"` // nil when the tag resolved to no student
	Student   *Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	VehicleID uint     `json:"vehicle_id" gorm:"index:idx_events_vehicle_time;not null"`
	Vehicle   *Vehicle `json:"vehicle,omitempty" gorm:"foreignKey:VehicleID"`
	DriverID  *uint    `json:"driver_id" gorm:"index"`
	Driver    *Driver  `json:"driver,omitempty" gorm:"foreignKey:DriverID"`
	// TagID is always recorded, even when no student matched.
	TagID      string    `json:"tag_id" gorm:"size:32;index;not null"`
	Direction  string    `json:"direction" gorm:"size:5;not null"` // in|out
	Status     string    `json:"status" gorm:"size:12;not null"`   // authorized|unknown
	OccurredAt time.Time `json:"occurred_at" gorm:"index:idx_events_vehicle_time;not null"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
