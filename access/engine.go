// Package access decides what happens when a tag is read on a vehicle:
// it resolves the reporting device to a vehicle, the tag to a student of
// that vehicle, appends the audit row and produces the actuation signal
// the embedded reader needs (LED color + buzzer).
package access

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ViniciusThi/GuiVans/models"
)

// LED colors understood by the reader firmware.
const (
	LedGreen = "green"
	LedRed   = "red"
)

// Store is the slice of the record store the engine consumes. Lookups
// return (nil, nil) when nothing matched; a non-nil error means the store
// itself failed and the read must surface as outcome "error".
type Store interface {
	FindVehicleByDeviceID(deviceID string) (*models.Vehicle, error)
	FindActiveStudentByTagAndVehicle(tagID string, vehicleID uint) (*models.Student, error)
	AppendAccessEvent(ev *models.AccessEvent) error
}

// TagRead is one RFID scan reported by a device. Direction defaults to
// "in" when the device omits it.
type TagRead struct {
	TagID     string
	DeviceID  string
	Direction string
	Latitude  *float64
	Longitude *float64
}

// Decision is the deterministic result of a tag read. The device always
// gets a usable LedColor/Buzzer pair, whatever happened. Event is the
// persisted audit row; it is nil for denied and error outcomes.
type Decision struct {
	Outcome  string                 `json:"outcome"`
	Message  string                 `json:"message"`
	Student  *models.StudentSummary `json:"student,omitempty"`
	LedColor string                 `json:"ledColor"`
	Buzzer   bool                   `json:"buzzer"`
	Event    *models.AccessEvent    `json:"-"`
}

type Engine struct {
	store Store
	log   *zap.Logger
}

func NewEngine(store Store, log *zap.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// Authorize runs the full decision for one tag read:
//
//  1. device id -> active vehicle; no vehicle means a hard deny with no
//     audit row (nothing is known about the read yet)
//  2. tag -> active student of that vehicle; no student means outcome
//     "unknown", recorded with the tag but without a student
//  3. both resolved means "authorized", recorded with student and the
//     vehicle's bound driver
//
// The engine never retries: a failing store turns into outcome "error"
// with no partial row.
func (e *Engine) Authorize(read TagRead) Decision {
	if read.Direction == "" {
		read.Direction = models.DirectionIn
	}

	vehicle, err := e.store.FindVehicleByDeviceID(read.DeviceID)
	if err != nil {
		return e.storeFailure(read, err)
	}
	if vehicle == nil {
		e.log.Warn("tag read from unbound device",
			zap.String("device_id", read.DeviceID),
			zap.String("tag_id", read.TagID))
		return Decision{
			Outcome:  models.OutcomeDenied,
			Message:  "no vehicle bound to this device",
			LedColor: LedRed,
			Buzzer:   false,
		}
	}

	student, err := e.store.FindActiveStudentByTagAndVehicle(read.TagID, vehicle.ID)
	if err != nil {
		return e.storeFailure(read, err)
	}

	event := &models.AccessEvent{
		VehicleID:  vehicle.ID,
		DriverID:   vehicle.DriverID,
		TagID:      read.TagID,
		Direction:  read.Direction,
		OccurredAt: time.Now(),
		Latitude:   read.Latitude,
		Longitude:  read.Longitude,
	}

	if student == nil {
		// Tag unknown, or the student rides a different vehicle. Either
		// way the attempt itself is part of the audit trail.
		event.Status = models.OutcomeUnknown
		if err := e.store.AppendAccessEvent(event); err != nil {
			return e.storeFailure(read, err)
		}
		e.log.Info("unauthorized tag read recorded",
			zap.String("device_id", read.DeviceID),
			zap.String("tag_id", read.TagID),
			zap.Uint("vehicle_id", vehicle.ID))
		return Decision{
			Outcome:  models.OutcomeUnknown,
			Message:  "student not authorized for this vehicle",
			LedColor: LedRed,
			Buzzer:   false,
			Event:    event,
		}
	}

	event.StudentID = &student.ID
	event.Status = models.OutcomeAuthorized
	if err := e.store.AppendAccessEvent(event); err != nil {
		return e.storeFailure(read, err)
	}

	summary := student.Summary()
	e.log.Info("access authorized",
		zap.String("device_id", read.DeviceID),
		zap.String("tag_id", read.TagID),
		zap.String("direction", read.Direction),
		zap.String("student", student.Name))
	return Decision{
		Outcome:  models.OutcomeAuthorized,
		Message:  fmt.Sprintf("%s authorized for %s", directionLabel(read.Direction), student.Name),
		Student:  &summary,
		LedColor: LedGreen,
		Buzzer:   true,
		Event:    event,
	}
}

func (e *Engine) storeFailure(read TagRead, err error) Decision {
	e.log.Error("store failure while processing tag read",
		zap.String("device_id", read.DeviceID),
		zap.String("tag_id", read.TagID),
		zap.Error(err))
	return Decision{
		Outcome:  models.OutcomeError,
		Message:  "internal server error",
		LedColor: LedRed,
		Buzzer:   false,
	}
}

func directionLabel(direction string) string {
	if direction == models.DirectionOut {
		return "exit"
	}
	return "entry"
}
