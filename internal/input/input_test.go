package input

import (
	"testing"
	"time"

	"github.com/tivacopter/flightcore/internal/control"
)

func TestDriftAccumulatesWhileHeldAndZeroesOnRelease(t *testing.T) {
	v := 0.0
	for i := 0; i < 5; i++ {
		v = drift(v, 1.0)
	}
	if v <= 0 {
		t.Fatalf("v = %v, want positive after being held", v)
	}
	v = drift(v, 0)
	if v != 0 {
		t.Fatalf("v = %v, want 0 after release", v)
	}
}

func TestDriftClampsToUnitRange(t *testing.T) {
	v := 0.0
	for i := 0; i < 10000; i++ {
		v = drift(v, 1.0)
	}
	if v != 1.0 {
		t.Fatalf("v = %v, want clamped to 1.0", v)
	}
}

func TestRemoteControlClampsOutOfRangeFields(t *testing.T) {
	rc := RemoteControl{Throttle: 5, DirectionX: -5, DirectionY: 5, Yaw: 100}.clamped()
	if rc.Throttle != 1 || rc.DirectionX != -1 || rc.DirectionY != 1 {
		t.Fatalf("got %+v, want clamped fields", rc)
	}
}

func TestJSONTakesPrecedenceWhileFresh(t *testing.T) {
	m := &Mux{}
	m.SetRemoteControl(RemoteControl{Throttle: 0.75, Yaw: 1.0})

	var qc control.QuadControl
	m.Sample(&qc)
	if qc.Throttle != 0.75 || qc.Yaw != 1.0 {
		t.Fatalf("qc = %+v, want JSON values", qc)
	}
}

func TestRadioResumesAfterJSONGoesStale(t *testing.T) {
	m := &Mux{}
	for i := range m.channels {
		m.channels[i] = &RadioChannel{}
	}
	rc := RemoteControl{Throttle: 0.9}
	m.json = &rc
	m.jsonSetAt = time.Now().Add(-2 * jsonFreshWindow)

	qc := control.QuadControl{RadioControlEnabled: true}
	m.Sample(&qc)
	// Stale JSON is ignored; with no pulses measured yet, radio sampling
	// falls back to the neutral throttle (centered stick -> 0.5).
	if qc.Throttle != 0.5 {
		t.Fatalf("qc.Throttle = %v, want 0.5 from the radio fallback", qc.Throttle)
	}
}

func TestJSONReachesQuadControlEvenWhenRadioDisabled(t *testing.T) {
	m := &Mux{}
	for i := range m.channels {
		m.channels[i] = &RadioChannel{}
	}
	m.SetRemoteControl(RemoteControl{ShutOffMotors: true})

	qc := control.QuadControl{RadioControlEnabled: false}
	m.Sample(&qc)
	if !qc.ShutOffMotors {
		t.Fatal("expected a fresh JSON frame to reach qc even with radio control disabled")
	}
}

func TestRadioSkippedWhenDisabledAndJSONStale(t *testing.T) {
	m := &Mux{}
	for i := range m.channels {
		m.channels[i] = &RadioChannel{}
	}
	rc := RemoteControl{Throttle: 0.9}
	m.json = &rc
	m.jsonSetAt = time.Now().Add(-2 * jsonFreshWindow)

	qc := control.QuadControl{RadioControlEnabled: false, Throttle: 0.42}
	m.Sample(&qc)
	if qc.Throttle != 0.42 {
		t.Fatalf("qc.Throttle = %v, want unchanged 0.42 (radio sampling skipped)", qc.Throttle)
	}
}

func TestBeepCallbackFiresOnJSONBeep(t *testing.T) {
	fired := false
	m := &Mux{BeepFunc: func() { fired = true }}
	m.SetRemoteControl(RemoteControl{Beep: true})
	if !fired {
		t.Fatal("expected BeepFunc to fire on beep=true")
	}
}
