package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/tivacopter/flightcore/internal/control"
)

func TestPublishWithoutSubscribeDoesNothing(t *testing.T) {
	a := NewAdapter()
	calls := 0
	a.RegisterSource("alt", func() (interface{}, bool) {
		calls++
		return 1.0, true
	})
	if err := a.Publish("alt"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if calls != 0 {
		t.Fatalf("source fn called %d times, want 0 (not subscribed)", calls)
	}
}

func TestSubscribeUnknownSourceErrors(t *testing.T) {
	a := NewAdapter()
	if err := a.Subscribe("nope"); err == nil {
		t.Fatal("expected error subscribing to an unregistered source")
	}
}

func TestSourceTableFull(t *testing.T) {
	a := NewAdapter()
	for i := 0; i < MaxDataSources; i++ {
		if err := a.RegisterSource(string(rune('a'+i)), func() (interface{}, bool) { return nil, false }); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if err := a.RegisterSource("overflow", func() (interface{}, bool) { return nil, false }); err == nil {
		t.Fatal("expected error once the source table is full")
	}
}

func TestShellListSources(t *testing.T) {
	a := NewAdapter()
	a.RegisterSource("yaw", func() (interface{}, bool) { return 0.0, true })
	sh := NewShell()
	RegisterDefaultCommands(sh, a, control.NewController(nil))

	out, err := sh.Run("listSources")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "yaw" {
		t.Fatalf("got %q, want %q", out, "yaw")
	}
}

func TestShellSetYawPIDUpdatesGains(t *testing.T) {
	c := control.NewController(nil)
	sh := NewShell()
	RegisterDefaultCommands(sh, NewAdapter(), c)

	if _, err := sh.Run("setYawPID 0.1 0.2 0.3 0.4"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.Yaw.Gains != (control.Gains{Kp: 0.1, Ki: 0.2, Kd: 0.3, ILimit: 0.4}) {
		t.Fatalf("gains = %+v, want {0.1 0.2 0.3 0.4}", c.Yaw.Gains)
	}
}

func TestShellSetYawPIDWithoutILimitKeepsPrevious(t *testing.T) {
	c := control.NewController(nil)
	c.Yaw.Gains.ILimit = 0.9
	sh := NewShell()
	RegisterDefaultCommands(sh, NewAdapter(), c)

	if _, err := sh.Run("setYawPID 0.1 0.2 0.3"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.Yaw.Gains != (control.Gains{Kp: 0.1, Ki: 0.2, Kd: 0.3, ILimit: 0.9}) {
		t.Fatalf("gains = %+v, want ILimit carried over from before", c.Yaw.Gains)
	}
}

func TestShellUnknownCommand(t *testing.T) {
	sh := NewShell()
	if _, err := sh.Run("doesNotExist"); err == nil {
		t.Fatal("expected error for an unknown command")
	}
}

func TestFrameRoundTripsValue(t *testing.T) {
	raw, err := json.Marshal(Frame{Name: "yaw", Value: json.RawMessage(`1.5`)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if f.Name != "yaw" || string(f.Value) != "1.5" {
		t.Fatalf("got %+v", f)
	}
}
