package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ViniciusThi/GuiVans/access"
)

// Authorizer decides tag reads. Satisfied by *access.Engine.
type Authorizer interface {
	Authorize(read access.TagRead) access.Decision
}

// roomDevices is the broadcast group of every classified device session.
const roomDevices = "devices"

func vehicleRoom(vehicleID uint) string {
	return fmt.Sprintf("vehicle:%d", vehicleID)
}

// Hub is the session registry and event router. It owns every live Session
// and the room memberships; all session-state mutation goes through its
// lock, so handlers running on different connection pumps never race.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	rooms    map[string]map[*Session]struct{}

	auth        Authorizer
	coordinator *Coordinator
	log         *zap.Logger
}

func NewHub(auth Authorizer, tags TagLookup, window time.Duration, log *zap.Logger) *Hub {
	h := &Hub{
		sessions: make(map[*Session]struct{}),
		rooms:    make(map[string]map[*Session]struct{}),
		auth:     auth,
		log:      log,
	}
	h.coordinator = NewCoordinator(h, tags, window, log)
	return h
}

// Coordinator exposes the enrollment coordinator owned by this hub.
func (h *Hub) Coordinator() *Coordinator { return h.coordinator }

// ServeConn runs a freshly upgraded connection until it closes.
func (h *Hub) ServeConn(conn *websocket.Conn) {
	s := h.Register(conn)
	go s.writePump()
	s.readPump()
}

// Register adds a new, still unclassified session.
func (h *Hub) Register(conn *websocket.Conn) *Session {
	s := newSession(h, conn)
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	h.log.Info("session connected", zap.String("session_id", s.ID))
	return s
}

// Unregister removes a session and everything that points at it. Calling it
// for an unknown session is a no-op, so disconnect paths can be sloppy.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	for key, members := range h.rooms {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, key)
		}
	}
	role, deviceID := s.role, s.deviceID
	h.mu.Unlock()

	s.close()
	h.log.Info("session disconnected",
		zap.String("session_id", s.ID), zap.String("role", role.String()))

	if role == RoleDevice {
		h.broadcast(s, EventDeviceDisconnected, map[string]any{
			"deviceId":  deviceID,
			"sessionId": s.ID,
			"timestamp": time.Now(),
		})
	}
	// An admin dropping mid-enrollment must not leave the window armed.
	h.coordinator.CancelForDisconnect(s)
}

// ClassifyDevice marks a session as the given reader. Reclassifying is
// allowed and the last classification wins: any previous room membership is
// replaced by the device collective.
func (h *Hub) ClassifyDevice(s *Session, hello DeviceHello) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	s.role = RoleDevice
	s.deviceID = hello.DeviceID
	s.deviceVersion = hello.Version
	s.deviceFeatures = hello.Features
	s.lastSeen = time.Now()
	for key, members := range h.rooms {
		if key != roomDevices {
			delete(members, s)
			if len(members) == 0 {
				delete(h.rooms, key)
			}
		}
	}
	h.joinRoomLocked(roomDevices, s)
	h.mu.Unlock()

	s.Send(EventDeviceConnectedAck, map[string]any{
		"status":    "connected",
		"sessionId": s.ID,
		"timestamp": time.Now(),
	})
	h.log.Info("device registered",
		zap.String("device_id", hello.DeviceID),
		zap.String("version", hello.Version),
		zap.String("session_id", s.ID))
}

// JoinVehicleRoom subscribes a driver (or admin) session to one vehicle's
// event feed.
func (h *Hub) JoinVehicleRoom(s *Session, vehicleID uint) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	if s.role == RoleUnclassified {
		s.role = RoleDriverSubscriber
	}
	h.joinRoomLocked(vehicleRoom(vehicleID), s)
	h.mu.Unlock()

	s.Send(EventJoinedVehicleRoom, VehicleRoomPayload{
		VehicleID: vehicleID,
		Message:   "subscribed to vehicle events",
	})
	h.log.Info("session joined vehicle room",
		zap.String("session_id", s.ID), zap.Uint("vehicle_id", vehicleID))
}

func (h *Hub) LeaveVehicleRoom(s *Session, vehicleID uint) {
	h.mu.Lock()
	h.leaveRoomLocked(vehicleRoom(vehicleID), s)
	h.mu.Unlock()
}

// SetEnrolling flips a session in and out of the admin-enrolling role.
func (h *Hub) SetEnrolling(s *Session, enrolling bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	if enrolling {
		s.role = RoleAdminEnrolling
		return
	}
	if s.role == RoleAdminEnrolling {
		if h.inAnyVehicleRoomLocked(s) {
			s.role = RoleDriverSubscriber
		} else {
			s.role = RoleUnclassified
		}
	}
}

// ListByRole snapshots the sessions currently holding a role.
func (h *Hub) ListByRole(role Role) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Session
	for s := range h.sessions {
		if s.role == role {
			out = append(out, s)
		}
	}
	return out
}

// FindDeviceByID returns the live session for a device id. When a reader
// reconnected and its dead session still lingers, the most recently seen
// one wins.
func (h *Hub) FindDeviceByID(deviceID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var best *Session
	for s := range h.sessions {
		if s.role != RoleDevice || s.deviceID != deviceID {
			continue
		}
		if best == nil || s.lastSeen.After(best.lastSeen) {
			best = s
		}
	}
	return best
}

/* ===== Event routing ===== */

// HandleTagRead is the dual-routing entry point for raw reads coming off a
// device session. While an enrollment window is open the read goes to the
// arming admin and nowhere else; otherwise it is authorized, persisted and
// fanned out.
func (h *Hub) HandleTagRead(origin *Session, p TagReadPayload) {
	if p.DeviceID == "" {
		p.DeviceID = h.sessionDeviceID(origin)
	}
	if p.TagID == "" || p.DeviceID == "" {
		h.log.Warn("dropping malformed tag read",
			zap.String("session_id", origin.ID),
			zap.String("tag_id", p.TagID),
			zap.String("device_id", p.DeviceID))
		return
	}

	if h.coordinator.Capture(p) {
		return
	}

	decision := h.auth.Authorize(access.TagRead{
		TagID:     p.TagID,
		DeviceID:  p.DeviceID,
		Direction: p.Direction,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
	})
	if decision.Event != nil {
		h.PublishAccessEvent(decision)
	}

	// Raw read goes out to every non-device listener regardless of the
	// decision; dashboards want to see failed taps too.
	h.broadcastListeners(EventTagRead, TagReadForward{
		TagID:     p.TagID,
		DeviceID:  p.DeviceID,
		Timestamp: time.Now(),
		Source:    SourceAccessControl,
	})
}

// PublishAccessEvent notifies exactly the room of the event's vehicle.
func (h *Hub) PublishAccessEvent(decision access.Decision) {
	if decision.Event == nil {
		return
	}
	h.broadcastRoom(vehicleRoom(decision.Event.VehicleID), EventNewAccessEvent, AccessEventNotice{
		Event:     *decision.Event,
		Student:   decision.Student,
		Timestamp: time.Now(),
	})
}

// BroadcastDeviceCommand pushes a command to every device session, minus an
// optional origin.
func (h *Hub) BroadcastDeviceCommand(command, reason string, exclude *Session) {
	payload := DeviceCommandPayload{
		Command:   command,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	for _, s := range h.roomMembers(roomDevices) {
		if s == exclude {
			continue
		}
		s.Send(EventDeviceCommand, payload)
	}
	h.log.Info("device command broadcast",
		zap.String("command", command), zap.String("reason", reason))
}

// SendDeviceCommand routes an admin-issued command to one device, or to all
// of them when no device id was given. A missing target is reported back to
// the sender, never raised.
func (h *Hub) SendDeviceCommand(origin *Session, p DeviceCommandPayload) {
	if p.DeviceID == "" {
		h.BroadcastDeviceCommand(p.Command, p.Reason, origin)
		return
	}
	target := h.FindDeviceByID(p.DeviceID)
	if target == nil {
		origin.Send(EventCommandError, CommandErrorPayload{
			Error:    "device not found",
			DeviceID: p.DeviceID,
		})
		return
	}
	p.Timestamp = time.Now()
	target.Send(EventDeviceCommand, p)
}

// HandleDeviceStatus updates the reporting session's metadata and passes the
// report on to everyone else.
func (h *Hub) HandleDeviceStatus(origin *Session, raw json.RawMessage) {
	report := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &report); err != nil {
			h.log.Warn("malformed device status", zap.String("session_id", origin.ID), zap.Error(err))
			return
		}
	}

	h.mu.Lock()
	if origin.role == RoleDevice {
		if status, ok := report["status"].(string); ok {
			origin.deviceStatus = status
		}
		origin.lastSeen = time.Now()
	}
	deviceID := origin.deviceID
	h.mu.Unlock()

	report["deviceId"] = deviceID
	report["sessionId"] = origin.ID
	report["serverTimestamp"] = time.Now()
	h.broadcast(origin, EventDeviceStatus, report)
}

// HandleDeviceError relays a device-side fault to every other session.
func (h *Hub) HandleDeviceError(origin *Session, raw json.RawMessage) {
	report := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &report); err != nil {
			h.log.Warn("malformed device error", zap.String("session_id", origin.ID), zap.Error(err))
			return
		}
	}
	deviceID := h.sessionDeviceID(origin)
	report["deviceId"] = deviceID
	report["sessionId"] = origin.ID
	report["serverTimestamp"] = time.Now()
	h.log.Error("device reported error", zap.String("device_id", deviceID), zap.Any("report", report))
	h.broadcast(origin, EventDeviceError, report)
}

// HandlePong records a heartbeat reply.
func (h *Hub) HandlePong(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.role == RoleDevice {
		now := time.Now()
		s.lastPong = now
		s.lastSeen = now
	}
}

// DeviceList snapshots every connected device for admin tooling.
func (h *Hub) DeviceList() []DeviceInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]DeviceInfo, 0)
	for s := range h.rooms[roomDevices] {
		out = append(out, DeviceInfo{
			SessionID: s.ID,
			DeviceID:  s.deviceID,
			Version:   s.deviceVersion,
			Features:  s.deviceFeatures,
			Status:    s.deviceStatus,
			LastSeen:  s.lastSeen,
			LastPong:  s.lastPong,
			Connected: true,
		})
	}
	return out
}

/* ===== Dispatch ===== */

// dispatch decodes one inbound envelope and runs it. Malformed payloads are
// logged and dropped; the push path owes the sender no reply.
func (h *Hub) dispatch(s *Session, env envelope) {
	switch env.Event {
	case EventDeviceConnected:
		var hello DeviceHello
		if err := json.Unmarshal(env.Data, &hello); err != nil || hello.DeviceID == "" {
			h.log.Warn("malformed device hello", zap.String("session_id", s.ID))
			return
		}
		h.ClassifyDevice(s, hello)

	case EventTagRead:
		var p TagReadPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			h.log.Warn("malformed tag read payload", zap.String("session_id", s.ID))
			return
		}
		h.HandleTagRead(s, p)

	case EventDeviceStatus:
		h.HandleDeviceStatus(s, env.Data)

	case EventDeviceError:
		h.HandleDeviceError(s, env.Data)

	case EventPong:
		h.HandlePong(s)

	case EventPing:
		s.Send(EventPong, nil)

	case EventJoinVehicleRoom:
		var p VehicleRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.VehicleID == 0 {
			h.log.Warn("malformed join request", zap.String("session_id", s.ID))
			return
		}
		h.JoinVehicleRoom(s, p.VehicleID)

	case EventLeaveVehicleRoom:
		var p VehicleRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.VehicleID == 0 {
			return
		}
		h.LeaveVehicleRoom(s, p.VehicleID)

	case EventStartEnrollment:
		if err := h.coordinator.Arm(s); err != nil {
			s.Send(EventEnrollmentError, EnrollmentErrorPayload{Error: err.Error()})
		}

	case EventStopEnrollment:
		h.coordinator.Cancel(s, ReasonManual)

	case EventSendDeviceCmd:
		var p DeviceCommandPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Command == "" {
			h.log.Warn("malformed device command", zap.String("session_id", s.ID))
			return
		}
		h.SendDeviceCommand(s, p)

	case EventListDevices:
		s.Send(EventDeviceList, h.DeviceList())

	default:
		h.log.Debug("unknown event", zap.String("event", env.Event), zap.String("session_id", s.ID))
	}
}

/* ===== Internals ===== */

func (h *Hub) joinRoomLocked(key string, s *Session) {
	members, ok := h.rooms[key]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[key] = members
	}
	members[s] = struct{}{}
}

func (h *Hub) leaveRoomLocked(key string, s *Session) {
	members, ok := h.rooms[key]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.rooms, key)
	}
}

func (h *Hub) inAnyVehicleRoomLocked(s *Session) bool {
	for key, members := range h.rooms {
		if key == roomDevices {
			continue
		}
		if _, ok := members[s]; ok {
			return true
		}
	}
	return false
}

// roomMembers copies the membership so broadcasts never iterate a map that
// a join/leave is mutating.
func (h *Hub) roomMembers(key string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[key]
	out := make([]*Session, 0, len(members))
	for s := range members {
		out = append(out, s)
	}
	return out
}

func (h *Hub) broadcastRoom(key, event string, data any) {
	for _, s := range h.roomMembers(key) {
		s.Send(event, data)
	}
}

// broadcast sends to every session except the origin.
func (h *Hub) broadcast(exclude *Session, event string, data any) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		if s != exclude {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range targets {
		s.Send(event, data)
	}
}

// broadcastListeners sends to every non-device session.
func (h *Hub) broadcastListeners(event string, data any) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		if s.role != RoleDevice {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range targets {
		s.Send(event, data)
	}
}

func (h *Hub) sessionDeviceID(s *Session) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return s.deviceID
}
