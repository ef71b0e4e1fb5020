package realtime

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ViniciusThi/GuiVans/access"
	"github.com/ViniciusThi/GuiVans/models"
)

type fakeAuthorizer struct {
	reads    []access.TagRead
	decision access.Decision
}

func (f *fakeAuthorizer) Authorize(read access.TagRead) access.Decision {
	f.reads = append(f.reads, read)
	return f.decision
}

type fakeTagLookup struct {
	byTag    map[string]*models.Student
	err      error
	onLookup func() // runs before each lookup resolves
}

func (f *fakeTagLookup) FindActiveStudentByTag(tagID string) (*models.Student, error) {
	if f.onLookup != nil {
		f.onLookup()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.byTag[tagID], nil
}

func authorizedDecision(vehicleID uint) access.Decision {
	studentID := uint(10)
	return access.Decision{
		Outcome:  models.OutcomeAuthorized,
		LedColor: access.LedGreen,
		Buzzer:   true,
		Student:  &models.StudentSummary{ID: studentID, Name: "João Silva", EnrollmentNo: "2024001"},
		Event: &models.AccessEvent{
			StudentID: &studentID,
			VehicleID: vehicleID,
			TagID:     "A1B2C3D4",
			Direction: models.DirectionIn,
			Status:    models.OutcomeAuthorized,
		},
	}
}

func newTestHub(auth Authorizer, tags TagLookup, window time.Duration) *Hub {
	if auth == nil {
		auth = &fakeAuthorizer{}
	}
	if tags == nil {
		tags = &fakeTagLookup{}
	}
	return NewHub(auth, tags, window, zap.NewNop())
}

// recv pops the next queued message or fails the test.
func recv(t *testing.T, s *Session) Message {
	t.Helper()
	select {
	case msg := <-s.send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message queued for session %s", s.ID)
		return Message{}
	}
}

// expectEvent drains queued messages until one with the given event name
// shows up.
func expectEvent(t *testing.T, s *Session, event string) Message {
	t.Helper()
	for i := 0; i < sendBuffer; i++ {
		msg := recv(t, s)
		if msg.Event == event {
			return msg
		}
	}
	t.Fatalf("event %q never queued for session %s", event, s.ID)
	return Message{}
}

func expectNothing(t *testing.T, s *Session) {
	t.Helper()
	select {
	case msg := <-s.send:
		t.Fatalf("unexpected message %q for session %s", msg.Event, s.ID)
	default:
	}
}

func drain(s *Session) {
	for {
		select {
		case <-s.send:
		default:
			return
		}
	}
}

func TestClassifyDeviceLastWins(t *testing.T) {
	h := newTestHub(nil, nil, time.Minute)
	s := h.Register(nil)

	h.ClassifyDevice(s, DeviceHello{DeviceID: "ESP32_VAN_001", Version: "2.0"})
	expectEvent(t, s, EventDeviceConnectedAck)
	h.ClassifyDevice(s, DeviceHello{DeviceID: "ESP32_VAN_009", Version: "2.1"})
	expectEvent(t, s, EventDeviceConnectedAck)

	if h.FindDeviceByID("ESP32_VAN_001") != nil {
		t.Fatalf("old device id should not resolve after reclassification")
	}
	if h.FindDeviceByID("ESP32_VAN_009") != s {
		t.Fatalf("last classification should win")
	}
	if got := h.ListByRole(RoleDevice); len(got) != 1 {
		t.Fatalf("device sessions = %d, want 1", len(got))
	}
}

func TestVehicleRoomScopedBroadcast(t *testing.T) {
	h := newTestHub(nil, nil, time.Minute)
	driver1 := h.Register(nil)
	driver2 := h.Register(nil)
	h.JoinVehicleRoom(driver1, 1)
	h.JoinVehicleRoom(driver2, 2)
	expectEvent(t, driver1, EventJoinedVehicleRoom)
	expectEvent(t, driver2, EventJoinedVehicleRoom)

	h.PublishAccessEvent(authorizedDecision(1))

	notice := expectEvent(t, driver1, EventNewAccessEvent)
	payload, ok := notice.Data.(AccessEventNotice)
	if !ok {
		t.Fatalf("payload type = %T, want AccessEventNotice", notice.Data)
	}
	if payload.Event.VehicleID != 1 || payload.Student == nil || payload.Student.Name != "João Silva" {
		t.Fatalf("notice = %+v, want vehicle 1 with student summary", payload)
	}
	expectNothing(t, driver2)
}

func TestLeaveVehicleRoomStopsDelivery(t *testing.T) {
	h := newTestHub(nil, nil, time.Minute)
	driver := h.Register(nil)
	h.JoinVehicleRoom(driver, 1)
	expectEvent(t, driver, EventJoinedVehicleRoom)

	h.LeaveVehicleRoom(driver, 1)
	h.PublishAccessEvent(authorizedDecision(1))
	expectNothing(t, driver)
}

func TestTargetedDeviceCommand(t *testing.T) {
	h := newTestHub(nil, nil, time.Minute)
	device := h.Register(nil)
	admin := h.Register(nil)
	h.ClassifyDevice(device, DeviceHello{DeviceID: "ESP32_VAN_001"})
	drain(device)

	h.SendDeviceCommand(admin, DeviceCommandPayload{Command: "reboot", DeviceID: "ESP32_VAN_001"})
	msg := expectEvent(t, device, EventDeviceCommand)
	if cmd := msg.Data.(DeviceCommandPayload); cmd.Command != "reboot" {
		t.Fatalf("command = %+v, want reboot", cmd)
	}
	expectNothing(t, admin)
}

func TestTargetedDeviceCommandMissingDevice(t *testing.T) {
	h := newTestHub(nil, nil, time.Minute)
	admin := h.Register(nil)

	h.SendDeviceCommand(admin, DeviceCommandPayload{Command: "reboot", DeviceID: "ESP32_NOPE"})
	msg := expectEvent(t, admin, EventCommandError)
	payload := msg.Data.(CommandErrorPayload)
	if payload.DeviceID != "ESP32_NOPE" || payload.Error == "" {
		t.Fatalf("command error = %+v", payload)
	}
}

func TestTagReadRoutesToEnrollingAdmin(t *testing.T) {
	auth := &fakeAuthorizer{}
	h := newTestHub(auth, &fakeTagLookup{}, time.Minute)
	device := h.Register(nil)
	admin := h.Register(nil)
	h.ClassifyDevice(device, DeviceHello{DeviceID: "ESP32_VAN_001"})
	drain(device)

	if err := h.Coordinator().Arm(admin); err != nil {
		t.Fatalf("arm: %v", err)
	}
	// Devices get the start-reading command when the window opens.
	if cmd := expectEvent(t, device, EventDeviceCommand).Data.(DeviceCommandPayload); cmd.Command != CommandStartReading {
		t.Fatalf("command = %+v, want start reading", cmd)
	}

	h.HandleTagRead(device, TagReadPayload{TagID: "NEW123", DeviceID: "ESP32_VAN_001"})

	msg := expectEvent(t, admin, EventTagRead)
	fwd := msg.Data.(TagReadForward)
	if fwd.TagID != "NEW123" || fwd.Source != SourceEnrollment {
		t.Fatalf("forward = %+v, want NEW123 from enrollment", fwd)
	}
	if len(auth.reads) != 0 {
		t.Fatalf("authorization engine must be bypassed during enrollment, saw %d reads", len(auth.reads))
	}
	if h.Coordinator().Active() {
		t.Fatalf("window should close after capture")
	}
	if cmd := expectEvent(t, device, EventDeviceCommand).Data.(DeviceCommandPayload); cmd.Command != CommandStopReading {
		t.Fatalf("command = %+v, want stop reading after capture", cmd)
	}
}

func TestTagReadNormalPath(t *testing.T) {
	auth := &fakeAuthorizer{decision: authorizedDecision(1)}
	h := newTestHub(auth, &fakeTagLookup{}, time.Minute)
	device := h.Register(nil)
	driver := h.Register(nil)
	listener := h.Register(nil)
	h.ClassifyDevice(device, DeviceHello{DeviceID: "ESP32_VAN_001"})
	h.JoinVehicleRoom(driver, 1)
	drain(device)
	drain(driver)

	h.HandleTagRead(device, TagReadPayload{TagID: "A1B2C3D4", DeviceID: "ESP32_VAN_001"})

	if len(auth.reads) != 1 || auth.reads[0].TagID != "A1B2C3D4" {
		t.Fatalf("engine reads = %+v, want one A1B2C3D4", auth.reads)
	}
	notice := expectEvent(t, driver, EventNewAccessEvent).Data.(AccessEventNotice)
	if notice.Event.VehicleID != 1 {
		t.Fatalf("notice vehicle = %d, want 1", notice.Event.VehicleID)
	}
	raw := expectEvent(t, listener, EventTagRead).Data.(TagReadForward)
	if raw.Source != SourceAccessControl {
		t.Fatalf("raw forward source = %q, want accessControl", raw.Source)
	}
	// The device itself is not a listener.
	expectNothing(t, device)
}

func TestMalformedTagReadDropped(t *testing.T) {
	auth := &fakeAuthorizer{}
	h := newTestHub(auth, nil, time.Minute)
	s := h.Register(nil)

	h.HandleTagRead(s, TagReadPayload{TagID: "", DeviceID: ""})
	if len(auth.reads) != 0 {
		t.Fatalf("malformed read must be dropped, saw %d", len(auth.reads))
	}
}

func TestDeviceDisconnectNotifies(t *testing.T) {
	h := newTestHub(nil, nil, time.Minute)
	device := h.Register(nil)
	watcher := h.Register(nil)
	h.ClassifyDevice(device, DeviceHello{DeviceID: "ESP32_VAN_001"})
	drain(watcher)

	h.Unregister(device)
	msg := expectEvent(t, watcher, EventDeviceDisconnected)
	data := msg.Data.(map[string]any)
	if data["deviceId"] != "ESP32_VAN_001" {
		t.Fatalf("disconnect payload = %+v", data)
	}

	// Second unregister is a no-op, not an error.
	h.Unregister(device)
	if h.FindDeviceByID("ESP32_VAN_001") != nil {
		t.Fatalf("device should be gone")
	}
}

func TestDeviceListSnapshot(t *testing.T) {
	h := newTestHub(nil, nil, time.Minute)
	device := h.Register(nil)
	h.ClassifyDevice(device, DeviceHello{DeviceID: "ESP32_VAN_001", Version: "2.0", Features: "rfid,gps"})

	list := h.DeviceList()
	if len(list) != 1 {
		t.Fatalf("device list = %d entries, want 1", len(list))
	}
	if list[0].DeviceID != "ESP32_VAN_001" || list[0].Version != "2.0" || !list[0].Connected {
		t.Fatalf("entry = %+v", list[0])
	}
}
