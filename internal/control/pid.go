// Package control implements the cascaded PID regulators and the X-frame
// motor mixer, grounded on Tivacopter_RTOS/Source/PID.c's ProcessPID and
// PIDTask. Gains, deadband, and saturation constants reproduce the
// original firmware's tuned values.
package control

import "time"

// Gains holds one PID loop's tuning constants.
type Gains struct {
	Kp, Ki, Kd float64
	ILimit     float64
}

// Tuned gains carried over from the original firmware.
var (
	DefaultYawGains      = Gains{Kp: 0.035, Ki: 0.035, Kd: 0, ILimit: 0.30}
	DefaultPitchGains    = Gains{Kp: 0.16, Ki: 0.48, Kd: 0.0004, ILimit: 1.20}
	DefaultRollGains     = Gains{Kp: 0.16, Ki: 0.48, Kd: 0.0004, ILimit: 1.20}
	DefaultAltitudeGains = Gains{Kp: 0.035, Ki: 0.035, Kd: 0, ILimit: 0.30}
)

// errorDeadband zeroes out error readings smaller than this in magnitude,
// matching ProcessPID's "if (error < 0.0001 && error > -0.0001) error = 0".
const errorDeadband = 0.0001

// PID is a single regulation loop: trapezoidal-rule integral, derivative
// taken on the input signal (not the error) to avoid derivative kick on
// setpoint changes, and a symmetric integral clamp.
type PID struct {
	Gains

	lastIn float64
	iTerm  float64
	out    float64
}

// NewPID returns a PID with its integrator at rest.
func NewPID(g Gains) *PID { return &PID{Gains: g} }

// Update advances the loop by dt given the current input signal and
// proportional error, returning the new output.
func (p *PID) Update(in, errVal float64, dt time.Duration) float64 {
	t := dt.Seconds()
	if t <= 0 {
		return p.out
	}
	if errVal < errorDeadband && errVal > -errorDeadband {
		errVal = 0
	}

	p.iTerm += p.Ki * (in + p.lastIn) * (t / 2.0)
	if p.iTerm > p.ILimit {
		p.iTerm = p.ILimit
	} else if p.iTerm < -p.ILimit {
		p.iTerm = -p.ILimit
	}

	dTerm := p.Kd * (in - p.lastIn) / t

	p.out = p.Kp*errVal + p.iTerm + dTerm
	p.lastIn = in
	return p.out
}

// Reset clears the integrator and derivative history, used when a loop is
// re-armed after the craft has been sitting idle on the ground.
func (p *PID) Reset() {
	p.lastIn, p.iTerm, p.out = 0, 0, 0
}
