// Package input multiplexes the two operator input sources the original
// firmware accepts: a 5-channel RC radio sampled by GPIO edge interrupts,
// and a JSON remote-control frame delivered over the telemetry bus. JSON
// always wins while it is fresh, matching spec.md's operator-input
// precedence; radio edge sampling uses embd.DigitalPin's interrupt-driven
// Watch the way the rest of the retrieved pack's GPIO drivers do.
package input

import (
	"math"
	"sync"
	"time"

	"github.com/kidoman/embd"

	"github.com/tivacopter/flightcore/internal/control"
)

// Radio channel indices.
const (
	chThrottle = iota
	chDirectionX
	chDirectionY
	chBeep
	chShutOffMotors
)

// radioDriftStep is how much a held direction stick moves the slow-drift
// setpoint per sample, matching MapRadioInputToQuadcopterControl's
// +=0.0005/-=0.0005 per-tick update.
const radioDriftStep = 0.0005

// jsonFreshWindow bounds how long a JSON remote-control frame overrides
// the radio before control reverts if no further frame arrives.
const jsonFreshWindow = 500 * time.Millisecond

// RadioChannel measures one RC PWM channel's pulse width via rising/
// falling GPIO edges and normalizes it to [-1,1] (1000-2000us, 1500us
// center, standard RC PWM convention).
type RadioChannel struct {
	pin embd.DigitalPin

	mu       sync.Mutex
	lastRise time.Time
	width    time.Duration
}

// NewRadioChannel registers an edge watch on pin.
func NewRadioChannel(pin embd.DigitalPin) (*RadioChannel, error) {
	rc := &RadioChannel{pin: pin}
	if err := pin.Watch(embd.EdgeBoth, rc.onEdge); err != nil {
		return nil, err
	}
	return rc, nil
}

func (rc *RadioChannel) onEdge(pin embd.DigitalPin) {
	v, err := pin.Read()
	if err != nil {
		return
	}
	now := time.Now()
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if v == 1 {
		rc.lastRise = now
		return
	}
	if !rc.lastRise.IsZero() {
		rc.width = now.Sub(rc.lastRise)
	}
}

// Normalized returns the channel's last measured pulse width mapped to
// [-1,1], or 0 if nothing has been measured yet.
func (rc *RadioChannel) Normalized() float64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	us := float64(rc.width.Microseconds())
	if us == 0 {
		return 0
	}
	return clamp((us-1500)/500, -1, 1)
}

// RemoteControl is one JSON frame sent by an operator console, mirroring
// RemoteCtrlKeys[0..5] in RemoteControlDataAccessor.
type RemoteControl struct {
	Throttle      float64 `json:"throttle"`
	DirectionX    float64 `json:"direction_x"`
	DirectionY    float64 `json:"direction_y"`
	Yaw           float64 `json:"yaw"`
	Beep          bool    `json:"beep"`
	ShutOffMotors bool    `json:"shut_off_motors"`
}

func (rc RemoteControl) clamped() RemoteControl {
	rc.Throttle = clamp(rc.Throttle, 0, 1)
	rc.DirectionX = clamp(rc.DirectionX, -1, 1)
	rc.DirectionY = clamp(rc.DirectionY, -1, 1)
	rc.Yaw = clamp(rc.Yaw, -math.Pi, math.Pi)
	return rc
}

// Mux combines the radio channels and the most recent JSON frame into a
// QuadControl, with JSON taking precedence while fresh.
type Mux struct {
	channels [5]*RadioChannel

	mu        sync.Mutex
	dirX      float64
	dirY      float64
	json      *RemoteControl
	jsonSetAt time.Time

	// BeepFunc is invoked whenever either input source requests a beep.
	// It is the external collaborator spec.md leaves unimplemented; nil
	// is a valid no-op.
	BeepFunc func()
}

// NewMux wires five radio channels in (throttle, directionX, directionY,
// beep, shutOffMotors) order.
func NewMux(pins [5]embd.DigitalPin) (*Mux, error) {
	m := &Mux{}
	for i, p := range pins {
		rc, err := NewRadioChannel(p)
		if err != nil {
			return nil, err
		}
		m.channels[i] = rc
	}
	return m, nil
}

// SetRemoteControl records a freshly received JSON frame.
func (m *Mux) SetRemoteControl(rc RemoteControl) {
	rc = rc.clamped()
	m.mu.Lock()
	m.json = &rc
	m.jsonSetAt = time.Now()
	m.mu.Unlock()
	if rc.Beep && m.BeepFunc != nil {
		m.BeepFunc()
	}
}

// Sample updates qc from whichever input source currently has priority.
// The JSON frame accessor runs unconditionally, the way
// RemoteControlDataAccessor does in the original firmware; only the radio
// mapping is skipped when qc.RadioControlEnabled is false, so disabling
// radio control never blocks a JSON frame (including a shutOffMotors
// frame) from reaching qc.
func (m *Mux) Sample(qc *control.QuadControl) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.json != nil && time.Since(m.jsonSetAt) < jsonFreshWindow {
		qc.Throttle = m.json.Throttle
		qc.DirectionX = m.json.DirectionX
		qc.DirectionY = m.json.DirectionY
		qc.Yaw = m.json.Yaw
		qc.ShutOffMotors = m.json.ShutOffMotors
		return
	}

	if qc.RadioControlEnabled {
		m.sampleRadioLocked(qc)
	}
}

func (m *Mux) sampleRadioLocked(qc *control.QuadControl) {
	throttleStick := m.channels[chThrottle].Normalized()
	qc.Throttle = clamp(throttleStick*0.5+0.5, 0, 1)

	m.dirX = drift(m.dirX, m.channels[chDirectionX].Normalized())
	m.dirY = drift(m.dirY, m.channels[chDirectionY].Normalized())
	qc.DirectionX = m.dirX
	qc.DirectionY = m.dirY
	qc.Yaw = math.Atan2(m.dirY, m.dirX)

	if m.channels[chBeep].Normalized() > 0.5 && m.BeepFunc != nil {
		m.BeepFunc()
	}
	qc.ShutOffMotors = m.channels[chShutOffMotors].Normalized() > 0.5
}

// drift implements the slow-drift stick mapping: held deflection nudges
// the accumulated setpoint by radioDriftStep per sample; releasing the
// stick snaps the setpoint back to zero.
func drift(current, stick float64) float64 {
	switch {
	case stick > 0.1:
		current += radioDriftStep
	case stick < -0.1:
		current -= radioDriftStep
	default:
		return 0
	}
	return clamp(current, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
