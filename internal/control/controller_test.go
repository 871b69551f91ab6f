package control

import (
	"testing"
	"time"
)

type fakeMotors struct {
	powers     [4]float64
	shutoffs   int
	setErr     error
}

func (f *fakeMotors) SetPower(motor int, power float64) error {
	f.powers[motor] = power
	return f.setErr
}
func (f *fakeMotors) Shutoff() error {
	f.shutoffs++
	f.powers = [4]float64{}
	return nil
}

func TestMixSymmetricAtZero(t *testing.T) {
	m := mix(0, 0, 0.5, 0, false)
	for i, v := range m {
		if v != 0.5 {
			t.Fatalf("m[%d] = %v, want 0.5", i, v)
		}
	}
}

func TestMixYawRegulationSignConvention(t *testing.T) {
	m := mix(0, 0, 0, 0.2, true)
	if m[0] != -0.2 || m[2] != -0.2 {
		t.Fatalf("m[0]=%v m[2]=%v, want -0.2 each", m[0], m[2])
	}
	if m[1] != 0.2 || m[3] != 0.2 {
		t.Fatalf("m[1]=%v m[3]=%v, want 0.2 each", m[1], m[3])
	}
}

func TestMixSaturatesAtUSat(t *testing.T) {
	m := mix(10, 10, 10, 0, false)
	for _, v := range m {
		if v > USat {
			t.Fatalf("m = %v exceeds USat %v", v, USat)
		}
	}
}

func TestPIDDeadbandZeroesTinyError(t *testing.T) {
	p := NewPID(Gains{Kp: 1, Ki: 1, ILimit: 1})
	out := p.Update(0, 0.00005, time.Second)
	if out != 0 {
		t.Fatalf("out = %v, want 0 (error within deadband)", out)
	}
}

func TestPIDIntegralClamps(t *testing.T) {
	p := NewPID(Gains{Kp: 0, Ki: 10, ILimit: 0.3})
	for i := 0; i < 100; i++ {
		p.Update(1, 1, 100*time.Millisecond)
	}
	if p.iTerm > 0.3+1e-9 {
		t.Fatalf("iTerm = %v, exceeds ILimit 0.3", p.iTerm)
	}
}

func TestControllerShutoffBypassesMixer(t *testing.T) {
	fm := &fakeMotors{}
	c := NewController(fm)
	qc := DefaultQuadControl()
	qc.ShutOffMotors = true
	if err := c.Step(0, 0, 9.81, 9.81, &qc, 10*time.Millisecond); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if fm.shutoffs != 1 {
		t.Fatalf("shutoffs = %d, want 1", fm.shutoffs)
	}
}

func TestControllerLevelHoverAppliesPerMotorOffsets(t *testing.T) {
	fm := &fakeMotors{}
	c := NewController(fm)
	qc := DefaultQuadControl()
	qc.Throttle = 0.5
	qc.AltitudeStabilizationEnabled = false

	if err := c.Step(0, 0, 9.81, 9.81, &qc, 10*time.Millisecond); err != nil {
		t.Fatalf("Step: %v", err)
	}
	// Mixer output is equal across all four motors at a level hover; the
	// offset remap then diverges each motor's commanded power by its own
	// deadband offset.
	for i := 0; i < 4; i++ {
		want := remap(0.5, motorOffsets[i])
		if fm.powers[i] != want {
			t.Fatalf("powers[%d] = %v, want %v", i, fm.powers[i], want)
		}
	}
}

func TestRemapUsesPerMotorOffset(t *testing.T) {
	for i, offset := range motorOffsets {
		got := remap(0, offset)
		if got != offset {
			t.Fatalf("remap(0, motorOffsets[%d]) = %v, want %v", i, got, offset)
		}
	}
}

func TestYawRegulationDisabledByDefault(t *testing.T) {
	qc := DefaultQuadControl()
	if qc.YawRegulationEnabled {
		t.Fatal("YawRegulationEnabled should default to false")
	}
}
