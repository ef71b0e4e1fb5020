package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ViniciusThi/GuiVans/access"
	"github.com/ViniciusThi/GuiVans/models"
	"github.com/ViniciusThi/GuiVans/realtime"
)

// ingestStore backs the engine with fixtures; it doubles as the enrollment
// tag lookup the hub wants.
type ingestStore struct {
	vehicles map[string]*models.Vehicle
	students map[string]*models.Student // key tagID|vehicleID
	events   []*models.AccessEvent
}

func (f *ingestStore) FindVehicleByDeviceID(deviceID string) (*models.Vehicle, error) {
	return f.vehicles[deviceID], nil
}

func (f *ingestStore) FindActiveStudentByTagAndVehicle(tagID string, vehicleID uint) (*models.Student, error) {
	for _, st := range f.students {
		if st.TagID == tagID && st.VehicleID == vehicleID {
			return st, nil
		}
	}
	return nil, nil
}

func (f *ingestStore) FindActiveStudentByTag(tagID string) (*models.Student, error) {
	for _, st := range f.students {
		if st.TagID == tagID {
			return st, nil
		}
	}
	return nil, nil
}

func (f *ingestStore) AppendAccessEvent(ev *models.AccessEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func newIngestHandler() (*EventHandler, *ingestStore) {
	driverID := uint(7)
	fs := &ingestStore{
		vehicles: map[string]*models.Vehicle{
			"ESP32_VAN_001": {ID: 1, Plate: "VAN-0001", Capacity: 15, DriverID: &driverID, Active: true},
		},
		students: map[string]*models.Student{
			"A1B2C3D4": {ID: 10, Name: "João Silva", EnrollmentNo: "2024001", TagID: "A1B2C3D4", VehicleID: 1, Active: true},
		},
	}
	engine := access.NewEngine(fs, zap.NewNop())
	hub := realtime.NewHub(engine, fs, time.Minute, zap.NewNop())
	return NewEventHandler(engine, hub, nil), fs
}

func postRFID(t *testing.T, h *EventHandler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/events/rfid", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.IngestRFID(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, out
}

func TestIngestRFIDAuthorized(t *testing.T) {
	h, fs := newIngestHandler()
	rec, out := postRFID(t, h, `{"tagId":"a1b2c3d4","deviceId":"ESP32_VAN_001","direction":"in"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if out["outcome"] != models.OutcomeAuthorized || out["ledColor"] != access.LedGreen || out["buzzer"] != true {
		t.Fatalf("response = %v", out)
	}
	if len(fs.events) != 1 || fs.events[0].Status != models.OutcomeAuthorized {
		t.Fatalf("persisted events = %+v, want one authorized row", fs.events)
	}
}

func TestIngestRFIDUnknownTag(t *testing.T) {
	h, fs := newIngestHandler()
	rec, out := postRFID(t, h, `{"tagId":"DEADBEEF","deviceId":"ESP32_VAN_001"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if out["outcome"] != models.OutcomeUnknown || out["ledColor"] != access.LedRed {
		t.Fatalf("response = %v", out)
	}
	if len(fs.events) != 1 || fs.events[0].StudentID != nil {
		t.Fatalf("persisted events = %+v, want one studentless row", fs.events)
	}
}

func TestIngestRFIDUnboundDevice(t *testing.T) {
	h, fs := newIngestHandler()
	rec, out := postRFID(t, h, `{"tagId":"A1B2C3D4","deviceId":"ESP32_NOPE"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if out["outcome"] != models.OutcomeDenied {
		t.Fatalf("response = %v", out)
	}
	if len(fs.events) != 0 {
		t.Fatalf("deny must persist nothing, got %+v", fs.events)
	}
}

func TestIngestRFIDMissingFields(t *testing.T) {
	h, _ := newIngestHandler()
	rec, out := postRFID(t, h, `{"tagId":"A1B2C3D4"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if out["error"] != "TAG_AND_DEVICE_REQUIRED" {
		t.Fatalf("response = %v", out)
	}
}

func TestIngestRFIDInvalidDirection(t *testing.T) {
	h, _ := newIngestHandler()
	rec, out := postRFID(t, h, `{"tagId":"A1B2C3D4","deviceId":"ESP32_VAN_001","direction":"sideways"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if out["error"] != "INVALID_DIRECTION" {
		t.Fatalf("response = %v", out)
	}
}
