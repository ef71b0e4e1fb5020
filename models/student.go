package models

import "time"

// Shift values accepted for Student.Shift.
const (
	ShiftMorning   = "morning"
	ShiftAfternoon = "afternoon"
	ShiftEvening   = "evening"
)

type Student struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	Name         string `json:"name" gorm:"size:120;not null"`
	EnrollmentNo string `json:"enrollment_no" gorm:"size:20;uniqueIndex;not null"`
	// TagID is the student's RFID tag. Uniqueness is enforced in the
	// handlers against active students only, so deactivating a student
	// frees the tag for reassignment; the column keeps a plain index.
	TagID         string    `json:"tag_id" gorm:"size:32;index;not null"`
	GuardianName  string    `json:"guardian_name" gorm:"size:120;not null"`
	GuardianPhone string    `json:"guardian_phone" gorm:"size:20;not null"`
	Address       string    `json:"address" gorm:"type:text"`
	VehicleID     uint      `json:"vehicle_id" gorm:"index;not null"`
	Vehicle       *Vehicle  `json:"vehicle,omitempty" gorm:"foreignKey:VehicleID"`
	Shift         string    `json:"shift" gorm:"size:10;not null"` // morning|afternoon|evening
	Active        bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Summary is the slice of Student that leaves the server on realtime
// events: enough for the driver panel, nothing else.
type StudentSummary struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	EnrollmentNo string `json:"enrollment_no"`
}

func (s *Student) Summary() StudentSummary {
	return StudentSummary{ID: s.ID, Name: s.Name, EnrollmentNo: s.EnrollmentNo}
}
