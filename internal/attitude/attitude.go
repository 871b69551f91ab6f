// Package attitude implements the Madgwick gradient-descent complementary
// filter that fuses gyroscope, accelerometer, and (optionally) magnetometer
// samples into an orientation quaternion. The quaternion storage type
// comes from github.com/westphae/quaternion (the teacher's own indirect
// dependency); the filter math itself is hand-derived from
// Quadcopter_RTOS/Source/IMU.c, which that dependency does not supply.
package attitude

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/westphae/quaternion"
)

// DefaultBeta is the filter gain used when none is supplied, matching the
// original firmware's tuned constant.
const DefaultBeta = 0.1

// Estimator fuses sensor samples into a running orientation estimate. The
// quaternion is stored behind an atomic.Pointer so readers never observe a
// torn struct, strengthening the single-word-write assumption the original
// firmware made informally (a Go struct is not one machine word).
type Estimator struct {
	q    atomic.Pointer[quaternion.Quaternion]
	beta float64

	// UseMagnetometer gates the 9DOF correction branch. The original
	// firmware guards this same branch behind a compile-time "if(false)"
	// and never enables it in production, so it defaults off here too.
	UseMagnetometer bool
}

// New returns an estimator initialized to the identity orientation.
func New(beta float64) *Estimator {
	if beta == 0 {
		beta = DefaultBeta
	}
	e := &Estimator{beta: beta}
	id := quaternion.Quaternion{W: 1}
	e.q.Store(&id)
	return e
}

// Orientation returns the current fused orientation.
func (e *Estimator) Orientation() quaternion.Quaternion {
	return *e.q.Load()
}

// Update advances the filter by dt using one gyro/accel/mag sample. Gyro
// is in rad/s, accel and mag are any consistent units (only direction
// matters, both are normalized internally).
func (e *Estimator) Update(gx, gy, gz, ax, ay, az, mx, my, mz float64, dt time.Duration) {
	q := e.q.Load()
	q0, q1, q2, q3 := q.W, q.X, q.Y, q.Z

	qDot1 := 0.5 * (-q1*gx - q2*gy - q3*gz)
	qDot2 := 0.5 * (q0*gx + q2*gz - q3*gy)
	qDot3 := 0.5 * (q0*gy - q1*gz + q3*gx)
	qDot4 := 0.5 * (q0*gz + q1*gy - q2*gx)

	accelMag := math.Sqrt(ax*ax + ay*ay + az*az)
	if accelMag == 0 {
		// Accelerometer reading is degenerate (free fall or a bad
		// sample); fall back to pure gyro integration for this step.
		e.integrate(q0, q1, q2, q3, qDot1, qDot2, qDot3, qDot4, dt)
		return
	}
	ax, ay, az = ax/accelMag, ay/accelMag, az/accelMag

	var s0, s1, s2, s3 float64
	if e.UseMagnetometer && (mx != 0 || my != 0 || mz != 0) {
		s0, s1, s2, s3 = gradient9DOF(q0, q1, q2, q3, ax, ay, az, mx, my, mz)
	} else {
		s0, s1, s2, s3 = gradient6DOF(q0, q1, q2, q3, ax, ay, az)
	}

	sNorm := math.Sqrt(s0*s0 + s1*s1 + s2*s2 + s3*s3)
	if sNorm > 0 {
		s0, s1, s2, s3 = s0/sNorm, s1/sNorm, s2/sNorm, s3/sNorm
	}

	qDot1 -= e.beta * s0
	qDot2 -= e.beta * s1
	qDot3 -= e.beta * s2
	qDot4 -= e.beta * s3

	e.integrate(q0, q1, q2, q3, qDot1, qDot2, qDot3, qDot4, dt)
}

func (e *Estimator) integrate(q0, q1, q2, q3, qDot1, qDot2, qDot3, qDot4 float64, dt time.Duration) {
	t := dt.Seconds()
	q0 += qDot1 * t
	q1 += qDot2 * t
	q2 += qDot3 * t
	q3 += qDot4 * t

	norm := math.Sqrt(q0*q0 + q1*q1 + q2*q2 + q3*q3)
	if norm == 0 {
		norm = 1
	}
	next := quaternion.Quaternion{W: q0 / norm, X: q1 / norm, Y: q2 / norm, Z: q3 / norm}
	e.q.Store(&next)
}

// gradient6DOF is the accelerometer-only objective function gradient from
// the Madgwick filter (IMU.c's non-magnetometer branch).
func gradient6DOF(q0, q1, q2, q3, ax, ay, az float64) (s0, s1, s2, s3 float64) {
	f1 := 2*(q1*q3-q0*q2) - ax
	f2 := 2*(q0*q1+q2*q3) - ay
	f3 := 2*(0.5-q1*q1-q2*q2) - az

	s0 = -2*q2*f1 + 2*q1*f2
	s1 = 2*q3*f1 + 2*q0*f2 - 4*q1*f3
	s2 = -2*q0*f1 + 2*q3*f2 - 4*q2*f3
	s3 = 2*q1*f1 + 2*q2*f2
	return
}

// gradient9DOF adds the magnetometer correction terms (IMU.c's disabled
// AHRS branch). Never reached with UseMagnetometer left at its default.
func gradient9DOF(q0, q1, q2, q3, ax, ay, az, mx, my, mz float64) (s0, s1, s2, s3 float64) {
	norm := math.Sqrt(mx*mx + my*my + mz*mz)
	if norm == 0 {
		return gradient6DOF(q0, q1, q2, q3, ax, ay, az)
	}
	mx, my, mz = mx/norm, my/norm, mz/norm

	// Reference direction of Earth's magnetic field.
	hx := 2 * (mx*(0.5-q2*q2-q3*q3) + my*(q1*q2-q0*q3) + mz*(q1*q3+q0*q2))
	hy := 2 * (mx*(q1*q2+q0*q3) + my*(0.5-q1*q1-q3*q3) + mz*(q2*q3-q0*q1))
	bx := math.Sqrt(hx*hx + hy*hy)
	bz := 2 * (mx*(q1*q3-q0*q2) + my*(q2*q3+q0*q1) + mz*(0.5-q1*q1-q2*q2))

	f1 := 2*(q1*q3-q0*q2) - ax
	f2 := 2*(q0*q1+q2*q3) - ay
	f3 := 2*(0.5-q1*q1-q2*q2) - az
	f4 := 2*bx*(0.5-q2*q2-q3*q3) + 2*bz*(q1*q3-q0*q2) - mx
	f5 := 2*bx*(q1*q2-q0*q3) + 2*bz*(q0*q1+q2*q3) - my
	f6 := 2*bx*(q0*q2+q1*q3) + 2*bz*(0.5-q1*q1-q2*q2) - mz

	s0 = -2*q2*f1 + 2*q1*f2 - 2*bz*q2*f4 + (-2*bx*q3+2*bz*q1)*f5 + 2*bx*q2*f6
	s1 = 2*q3*f1 + 2*q0*f2 - 4*q1*f3 + 2*bz*q3*f4 + (2*bx*q2+2*bz*q0)*f5 + (2*bx*q3-4*bz*q1)*f6
	s2 = -2*q0*f1 + 2*q3*f2 - 4*q2*f3 + (-4*bx*q2-2*bz*q0)*f4 + (2*bx*q1+2*bz*q3)*f5 + (2*bx*q0-4*bz*q2)*f6
	s3 = 2*q1*f1 + 2*q2*f2 + (-4*bx*q3+2*bz*q1)*f4 + (-2*bx*q0+2*bz*q2)*f5 + 2*bx*q1*f6
	return
}

// Euler returns yaw, pitch, roll in radians, matching the conversion in
// Utils/quaternions.c's QuaternionToEuler.
func (e *Estimator) Euler() (yaw, pitch, roll float64) {
	q := e.q.Load()
	q0, q1, q2, q3 := q.W, q.X, q.Y, q.Z

	yaw = math.Atan2(2*(q1*q2+q0*q3), q0*q0+q1*q1-q2*q2-q3*q3)
	pitch = math.Asin(clamp(-2*(q1*q3-q0*q2), -1, 1))
	roll = math.Atan2(2*(q2*q3+q0*q1), q0*q0-q1*q1-q2*q2+q3*q3)
	return
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
