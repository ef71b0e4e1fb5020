// Package realtime is the device gateway: it tracks every live websocket
// session (devices, drivers, admins), routes tag reads either through the
// access engine or to an enrolling admin, and fans outcomes out to the
// sessions that subscribed to them.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/ViniciusThi/GuiVans/models"
)

// Events sent by clients.
const (
	EventDeviceConnected  = "deviceConnected"
	EventTagRead          = "tagRead"
	EventDeviceStatus     = "deviceStatus"
	EventDeviceError      = "deviceError"
	EventPing             = "ping"
	EventPong             = "pong"
	EventJoinVehicleRoom  = "joinVehicleRoom"
	EventLeaveVehicleRoom = "leaveVehicleRoom"
	EventStartEnrollment  = "startEnrollmentReading"
	EventStopEnrollment   = "stopEnrollmentReading"
	EventSendDeviceCmd    = "sendDeviceCommand"
	EventListDevices      = "listDevices"
)

// Events sent by the server.
const (
	EventDeviceConnectedAck = "deviceConnectedAck"
	EventJoinedVehicleRoom  = "joinedVehicleRoom"
	EventNewAccessEvent     = "newAccessEvent"
	EventDeviceCommand      = "deviceCommand"
	EventDeviceDisconnected = "deviceDisconnected"
	EventDeviceList         = "deviceList"
	EventCommandError       = "commandError"
	EventEnrollmentTimeout  = "enrollmentTimeout"
	EventEnrollmentError    = "enrollmentError"
)

// Commands delivered to devices via deviceCommand.
const (
	CommandStartReading = "startEnrollmentReading"
	CommandStopReading  = "stopEnrollmentReading"
)

// Sources tagging a forwarded raw read.
const (
	SourceEnrollment    = "enrollment"
	SourceAccessControl = "accessControl"
)

// Message is one named event on the wire, both directions.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// envelope is the inbound form of Message: the payload stays raw until the
// event name tells us what to decode it into.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DeviceHello identifies a freshly connected reader.
type DeviceHello struct {
	DeviceID string `json:"deviceId"`
	Version  string `json:"version"`
	Features string `json:"features"`
}

// TagReadPayload is a raw RFID scan as reported over the socket.
type TagReadPayload struct {
	TagID     string   `json:"tagId"`
	DeviceID  string   `json:"deviceId"`
	Direction string   `json:"direction"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// TagReadForward is a raw read relayed to subscribers, tagged with where it
// was routed.
type TagReadForward struct {
	TagID     string    `json:"tagId"`
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // enrollment|accessControl
}

// VehicleRoomPayload carries room join/leave requests and acks.
type VehicleRoomPayload struct {
	VehicleID uint   `json:"vehicleId"`
	Message   string `json:"message,omitempty"`
}

// DeviceCommandPayload is a command pushed to one or all devices.
type DeviceCommandPayload struct {
	Command   string    `json:"command"`
	DeviceID  string    `json:"deviceId,omitempty"` // empty = broadcast
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandErrorPayload reports a failed targeted command to its sender.
type CommandErrorPayload struct {
	Error    string `json:"error"`
	DeviceID string `json:"deviceId"`
}

// AccessEventNotice is the room notification for a persisted access event.
// The student is reduced to the summary the driver panel needs.
type AccessEventNotice struct {
	Event     models.AccessEvent     `json:"event"`
	Student   *models.StudentSummary `json:"student,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// DeviceInfo is one entry of the deviceList snapshot.
type DeviceInfo struct {
	SessionID string    `json:"sessionId"`
	DeviceID  string    `json:"deviceId"`
	Version   string    `json:"version"`
	Features  string    `json:"features"`
	Status    string    `json:"status"`
	LastSeen  time.Time `json:"lastSeen"`
	LastPong  time.Time `json:"lastPong"`
	Connected bool      `json:"connected"`
}

// EnrollmentErrorPayload tells the arming admin why a capture was refused.
type EnrollmentErrorPayload struct {
	Error   string                 `json:"error"`
	TagID   string                 `json:"tagId,omitempty"`
	Student *models.StudentSummary `json:"student,omitempty"`
}
