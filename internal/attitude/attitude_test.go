package attitude

import (
	"math"
	"testing"
	"time"
)

func TestNewIsIdentity(t *testing.T) {
	e := New(0)
	q := e.Orientation()
	if q.W != 1 || q.X != 0 || q.Y != 0 || q.Z != 0 {
		t.Fatalf("got %+v, want identity", q)
	}
}

func TestLevelStationaryStaysLevel(t *testing.T) {
	e := New(DefaultBeta)
	for i := 0; i < 200; i++ {
		e.Update(0, 0, 0, 0, 0, 1, 0, 0, 0, 10*time.Millisecond)
	}
	_, pitch, roll := e.Euler()
	if math.Abs(pitch) > 1e-6 || math.Abs(roll) > 1e-6 {
		t.Fatalf("pitch=%v roll=%v, want ~0 for a stationary level craft", pitch, roll)
	}
}

func TestZeroAccelFallsBackToGyroIntegration(t *testing.T) {
	e := New(DefaultBeta)
	before := e.Orientation()
	e.Update(1, 0, 0, 0, 0, 0, 0, 0, 0, 10*time.Millisecond)
	after := e.Orientation()
	if before == after {
		t.Fatal("orientation did not change despite nonzero gyro rate")
	}
}

func TestMagnetometerDisabledByDefault(t *testing.T) {
	e := New(DefaultBeta)
	if e.UseMagnetometer {
		t.Fatal("UseMagnetometer should default to false")
	}
}

func TestEulerNeverNaN(t *testing.T) {
	e := New(DefaultBeta)
	for i := 0; i < 50; i++ {
		e.Update(0.2, -0.1, 0.05, 0.1, 0.2, 0.97, 0, 0, 0, 5*time.Millisecond)
	}
	yaw, pitch, roll := e.Euler()
	for _, v := range []float64{yaw, pitch, roll} {
		if math.IsNaN(v) {
			t.Fatal("euler angle is NaN")
		}
	}
}
