package realtime

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ViniciusThi/GuiVans/models"
)

// TagLookup resolves whether a tag is already issued to an active student,
// on any vehicle. Satisfied by *database.Store.
type TagLookup interface {
	FindActiveStudentByTag(tagID string) (*models.Student, error)
}

// Reasons attached to the stopEnrollmentReading broadcast.
const (
	ReasonManual     = "manual"
	ReasonTimeout    = "timeout"
	ReasonDisconnect = "disconnect"
	ReasonCaptured   = "captured"
)

// ErrEnrollmentBusy rejects a second admin while a window is open.
var ErrEnrollmentBusy = errors.New("another enrollment is already in progress")

// Coordinator owns the single process-wide enrollment slot: at most one
// admin may capture tags at a time. While the window is open, raw tag reads
// are diverted to that admin instead of the authorization path.
//
// Timers are keyed by a monotonically increasing cycle counter, so a timer
// left over from an earlier window can never cancel a later one.
type Coordinator struct {
	mu       sync.Mutex
	admin    *Session // nil = idle
	cycle    uint64
	deadline time.Time
	timer    *time.Timer

	window time.Duration
	hub    *Hub
	tags   TagLookup
	log    *zap.Logger
}

func NewCoordinator(hub *Hub, tags TagLookup, window time.Duration, log *zap.Logger) *Coordinator {
	return &Coordinator{hub: hub, tags: tags, window: window, log: log}
}

// Active reports whether a capture window is open.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admin != nil
}

// Arm opens the capture window for admin and tells every reader to start
// enrollment reading. A second Arm from the same admin restarts the window;
// from anyone else it fails with ErrEnrollmentBusy and the first window
// stands.
func (c *Coordinator) Arm(admin *Session) error {
	c.mu.Lock()
	if c.admin != nil && c.admin != admin {
		c.mu.Unlock()
		c.log.Warn("enrollment arm rejected, window already held",
			zap.String("session_id", admin.ID))
		return ErrEnrollmentBusy
	}
	restarted := c.admin == admin
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.admin = admin
	c.cycle++
	cycle := c.cycle
	c.deadline = time.Now().Add(c.window)
	c.timer = time.AfterFunc(c.window, func() { c.expire(cycle) })
	c.mu.Unlock()

	c.hub.SetEnrolling(admin, true)
	c.hub.BroadcastDeviceCommand(CommandStartReading, "", nil)
	c.log.Info("enrollment window opened",
		zap.String("session_id", admin.ID),
		zap.Bool("restarted", restarted),
		zap.Duration("window", c.window))
	return nil
}

// Capture consumes a raw tag read while a window is open. Returns false if
// no window is open, or if the window was cancelled or re-armed while the
// tag lookup ran; either way the caller runs the normal authorization
// path. A tag that is already issued is reported to the admin and the
// window stays open so they can retry; a free tag is delivered and closes
// the window.
func (c *Coordinator) Capture(p TagReadPayload) bool {
	c.mu.Lock()
	admin := c.admin
	cycle := c.cycle
	c.mu.Unlock()
	if admin == nil {
		return false
	}

	student, err := c.tags.FindActiveStudentByTag(p.TagID)
	if err != nil {
		c.log.Error("enrollment tag lookup failed", zap.Error(err))
		admin.Send(EventEnrollmentError, EnrollmentErrorPayload{
			Error: "internal server error",
			TagID: p.TagID,
		})
		return true
	}
	if student != nil {
		summary := student.Summary()
		admin.Send(EventEnrollmentError, EnrollmentErrorPayload{
			Error:   "tag already assigned",
			TagID:   p.TagID,
			Student: &summary,
		})
		c.log.Info("enrollment capture conflict",
			zap.String("tag_id", p.TagID),
			zap.String("student", student.Name))
		return true
	}

	c.mu.Lock()
	if c.admin != admin || c.cycle != cycle {
		// Window was cancelled or re-armed while the lookup ran; hand the
		// read back to the normal access-control path.
		c.mu.Unlock()
		return false
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.admin = nil
	c.mu.Unlock()

	c.hub.SetEnrolling(admin, false)
	admin.Send(EventTagRead, TagReadForward{
		TagID:     p.TagID,
		DeviceID:  p.DeviceID,
		Timestamp: time.Now(),
		Source:    SourceEnrollment,
	})
	c.hub.BroadcastDeviceCommand(CommandStopReading, ReasonCaptured, nil)
	c.log.Info("enrollment tag captured",
		zap.String("tag_id", p.TagID), zap.String("device_id", p.DeviceID))
	return true
}

// Cancel closes the window if s is the holder. Anyone else's cancel is
// ignored.
func (c *Coordinator) Cancel(s *Session, reason string) {
	c.mu.Lock()
	if c.admin == nil || c.admin != s {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.admin = nil
	c.mu.Unlock()

	c.hub.SetEnrolling(s, false)
	c.hub.BroadcastDeviceCommand(CommandStopReading, reason, nil)
	c.log.Info("enrollment window cancelled",
		zap.String("session_id", s.ID), zap.String("reason", reason))
}

// CancelForDisconnect is Cancel with the disconnect reason; called by the
// hub whenever any session unregisters.
func (c *Coordinator) CancelForDisconnect(s *Session) {
	c.Cancel(s, ReasonDisconnect)
}

// expire fires when a window's deadline passes. The cycle guard makes a
// late timer from an earlier window inert.
func (c *Coordinator) expire(cycle uint64) {
	c.mu.Lock()
	if c.admin == nil || c.cycle != cycle {
		c.mu.Unlock()
		return
	}
	admin := c.admin
	c.admin = nil
	c.timer = nil
	c.mu.Unlock()

	c.hub.SetEnrolling(admin, false)
	c.hub.BroadcastDeviceCommand(CommandStopReading, ReasonTimeout, nil)
	admin.Send(EventEnrollmentTimeout, map[string]any{
		"message":   "enrollment window expired with no tag read",
		"timestamp": time.Now(),
	})
	c.log.Info("enrollment window timed out", zap.String("session_id", admin.ID))
}
