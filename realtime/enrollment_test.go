package realtime

import (
	"errors"
	"testing"
	"time"

	"github.com/ViniciusThi/GuiVans/models"
)

func TestEnrollmentMutualExclusion(t *testing.T) {
	h := newTestHub(nil, nil, time.Minute)
	adminA := h.Register(nil)
	adminB := h.Register(nil)

	if err := h.Coordinator().Arm(adminA); err != nil {
		t.Fatalf("first arm: %v", err)
	}
	if err := h.Coordinator().Arm(adminB); !errors.Is(err, ErrEnrollmentBusy) {
		t.Fatalf("second admin's arm = %v, want ErrEnrollmentBusy", err)
	}
	if !h.Coordinator().Active() {
		t.Fatalf("first admin's window must stand")
	}

	h.Coordinator().Cancel(adminA, ReasonManual)
	if err := h.Coordinator().Arm(adminB); err != nil {
		t.Fatalf("arm after cancel: %v", err)
	}
}

func TestEnrollmentSameAdminRestarts(t *testing.T) {
	h := newTestHub(nil, nil, time.Minute)
	admin := h.Register(nil)

	if err := h.Coordinator().Arm(admin); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := h.Coordinator().Arm(admin); err != nil {
		t.Fatalf("re-arm by the holder should restart, got %v", err)
	}
	if !h.Coordinator().Active() {
		t.Fatalf("window should still be open")
	}
}

func TestEnrollmentCancelByNonHolderIgnored(t *testing.T) {
	h := newTestHub(nil, nil, time.Minute)
	adminA := h.Register(nil)
	adminB := h.Register(nil)

	if err := h.Coordinator().Arm(adminA); err != nil {
		t.Fatalf("arm: %v", err)
	}
	h.Coordinator().Cancel(adminB, ReasonManual)
	if !h.Coordinator().Active() {
		t.Fatalf("non-holder cancel must not close the window")
	}
}

func TestEnrollmentTimeout(t *testing.T) {
	h := newTestHub(nil, nil, 20*time.Millisecond)
	admin := h.Register(nil)
	device := h.Register(nil)
	h.ClassifyDevice(device, DeviceHello{DeviceID: "ESP32_VAN_001"})
	drain(device)

	if err := h.Coordinator().Arm(admin); err != nil {
		t.Fatalf("arm: %v", err)
	}
	expectEvent(t, device, EventDeviceCommand) // start reading

	deadline := time.Now().Add(time.Second)
	for h.Coordinator().Active() {
		if time.Now().After(deadline) {
			t.Fatalf("window never timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}

	expectEvent(t, admin, EventEnrollmentTimeout)
	if cmd := expectEvent(t, device, EventDeviceCommand).Data.(DeviceCommandPayload); cmd.Command != CommandStopReading || cmd.Reason != ReasonTimeout {
		t.Fatalf("command = %+v, want stop reading with timeout reason", cmd)
	}

	// A read arriving after the timeout takes the normal path.
	if h.Coordinator().Capture(TagReadPayload{TagID: "LATE", DeviceID: "ESP32_VAN_001"}) {
		t.Fatalf("capture after timeout should fall through to access control")
	}
}

func TestEnrollmentStaleTimerIsInert(t *testing.T) {
	h := newTestHub(nil, nil, time.Minute)
	admin := h.Register(nil)

	if err := h.Coordinator().Arm(admin); err != nil {
		t.Fatalf("arm: %v", err)
	}
	// A timer from a cycle that no longer exists must not close the
	// current window.
	h.Coordinator().expire(0)
	if !h.Coordinator().Active() {
		t.Fatalf("stale timer closed a live window")
	}
}

func TestEnrollmentTagConflictKeepsWindowOpen(t *testing.T) {
	tags := &fakeTagLookup{byTag: map[string]*models.Student{
		"A1B2C3D4": {ID: 10, Name: "João Silva", EnrollmentNo: "2024001", TagID: "A1B2C3D4", VehicleID: 1, Active: true},
	}}
	h := newTestHub(nil, tags, time.Minute)
	admin := h.Register(nil)
	device := h.Register(nil)
	h.ClassifyDevice(device, DeviceHello{DeviceID: "ESP32_VAN_001"})
	drain(device)

	if err := h.Coordinator().Arm(admin); err != nil {
		t.Fatalf("arm: %v", err)
	}

	if !h.Coordinator().Capture(TagReadPayload{TagID: "A1B2C3D4", DeviceID: "ESP32_VAN_001"}) {
		t.Fatalf("read during the window must be consumed by enrollment")
	}
	msg := expectEvent(t, admin, EventEnrollmentError)
	payload := msg.Data.(EnrollmentErrorPayload)
	if payload.TagID != "A1B2C3D4" || payload.Student == nil {
		t.Fatalf("conflict payload = %+v", payload)
	}
	if !h.Coordinator().Active() {
		t.Fatalf("conflict must not close the window, admin may retry")
	}

	// A free tag then captures and closes.
	if !h.Coordinator().Capture(TagReadPayload{TagID: "NEW123", DeviceID: "ESP32_VAN_001"}) {
		t.Fatalf("free tag should be captured")
	}
	fwd := expectEvent(t, admin, EventTagRead).Data.(TagReadForward)
	if fwd.TagID != "NEW123" || fwd.Source != SourceEnrollment {
		t.Fatalf("forward = %+v", fwd)
	}
	if h.Coordinator().Active() {
		t.Fatalf("capture must close the window")
	}
}

func TestEnrollmentCancelDuringLookupFallsThrough(t *testing.T) {
	tags := &fakeTagLookup{}
	h := newTestHub(nil, tags, time.Minute)
	admin := h.Register(nil)

	if err := h.Coordinator().Arm(admin); err != nil {
		t.Fatalf("arm: %v", err)
	}
	// The window closes while the tag lookup is in flight; the read then
	// belongs to the normal access-control path, not to enrollment.
	tags.onLookup = func() { h.Coordinator().Cancel(admin, ReasonManual) }
	if h.Coordinator().Capture(TagReadPayload{TagID: "NEW123", DeviceID: "ESP32_VAN_001"}) {
		t.Fatalf("read overlapping a cancel must fall through to access control")
	}
	expectNothing(t, admin)
}

func TestEnrollmentReArmDuringLookupFallsThrough(t *testing.T) {
	tags := &fakeTagLookup{}
	h := newTestHub(nil, tags, time.Minute)
	admin := h.Register(nil)

	if err := h.Coordinator().Arm(admin); err != nil {
		t.Fatalf("arm: %v", err)
	}
	// A restart mid-lookup starts a new cycle; the old cycle's read must not
	// be delivered against the fresh window.
	tags.onLookup = func() {
		tags.onLookup = nil
		if err := h.Coordinator().Arm(admin); err != nil {
			t.Fatalf("re-arm: %v", err)
		}
	}
	if h.Coordinator().Capture(TagReadPayload{TagID: "NEW123", DeviceID: "ESP32_VAN_001"}) {
		t.Fatalf("read from a superseded cycle must fall through to access control")
	}
	if !h.Coordinator().Active() {
		t.Fatalf("the restarted window must stand")
	}
}

func TestEnrollmentAdminDisconnectCancels(t *testing.T) {
	h := newTestHub(nil, nil, time.Minute)
	admin := h.Register(nil)
	device := h.Register(nil)
	h.ClassifyDevice(device, DeviceHello{DeviceID: "ESP32_VAN_001"})
	drain(device)

	if err := h.Coordinator().Arm(admin); err != nil {
		t.Fatalf("arm: %v", err)
	}
	expectEvent(t, device, EventDeviceCommand) // start reading

	h.Unregister(admin)
	if h.Coordinator().Active() {
		t.Fatalf("admin disconnect must cancel the window")
	}
	if cmd := expectEvent(t, device, EventDeviceCommand).Data.(DeviceCommandPayload); cmd.Command != CommandStopReading || cmd.Reason != ReasonDisconnect {
		t.Fatalf("command = %+v, want stop reading with disconnect reason", cmd)
	}
}
