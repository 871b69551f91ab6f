package control

import (
	"math"
	"time"
)

// QuadControl mirrors the original firmware's TivacopterControl struct:
// the live setpoints and feature toggles the flight loop reads every
// tick. Radio and JSON remote control both write into one of these
// (internal/input resolves precedence before handing it to the
// controller), so it is a plain struct rather than an interface.
type QuadControl struct {
	RadioControlEnabled          bool
	AltitudeStabilizationEnabled bool
	// YawRegulationEnabled defaults to false: the newer firmware revision
	// this port follows gates yaw regulation behind an explicit flag
	// rather than enabling it unconditionally.
	YawRegulationEnabled bool

	Throttle float64 // [0,1]
	Yaw      float64 // rad, absolute heading setpoint

	// DirectionX/Y are the raw stick deflections in [-1,1]; PI/4 * this
	// value becomes the pitch/roll angle setpoint.
	DirectionX, DirectionY float64

	ShutOffMotors bool
}

// DefaultQuadControl matches the firmware's static initializer: radio
// control and altitude stabilization on, yaw regulation off.
func DefaultQuadControl() QuadControl {
	return QuadControl{RadioControlEnabled: true, AltitudeStabilizationEnabled: true}
}

// Controller owns the four regulation loops and drives one MotorDriver.
type Controller struct {
	Yaw      *PID
	Pitch    *PID
	Roll     *PID
	Altitude *PID

	motors MotorDriver
}

// NewController wires default-tuned PIDs to driver.
func NewController(driver MotorDriver) *Controller {
	return &Controller{
		Yaw:      NewPID(DefaultYawGains),
		Pitch:    NewPID(DefaultPitchGains),
		Roll:     NewPID(DefaultRollGains),
		Altitude: NewPID(DefaultAltitudeGains),
		motors:   driver,
	}
}

// Step runs one control iteration: compute setpoints from qc, evaluate
// the yaw, pitch and roll loops (and the altitude loop when
// qc.AltitudeStabilizationEnabled), mix, and command the motors. pitchMeasured and
// rollMeasured are the attitude estimator's current Euler angles (rad);
// accelZ/accelG are the vertical accelerometer reading and 1g reference
// used by the altitude loop, exactly as PIDTask reads IMU.accel.
func (c *Controller) Step(pitchMeasured, rollMeasured, accelZ, accelG float64, qc *QuadControl, dt time.Duration) error {
	if qc.ShutOffMotors {
		return c.motors.Shutoff()
	}

	pitchTarget := math.Pi / 4 * qc.DirectionX
	rollTarget := math.Pi / 4 * qc.DirectionY

	yawOut := c.Yaw.Update(qc.Yaw, qc.Yaw, dt)
	pitchOut := c.Pitch.Update(pitchTarget, pitchMeasured-pitchTarget, dt)
	rollOut := c.Roll.Update(rollTarget, rollMeasured-rollTarget, dt)

	throttle := qc.Throttle
	if qc.AltitudeStabilizationEnabled {
		altOut := c.Altitude.Update(accelZ, accelZ-accelG, dt)
		throttle -= altOut
	}

	powers := mix(pitchOut, rollOut, throttle, yawOut, qc.YawRegulationEnabled)
	return applyRemap(c.motors, powers)
}

// Shutoff immediately commands every motor off, bypassing the mixer.
func (c *Controller) Shutoff() error { return c.motors.Shutoff() }
