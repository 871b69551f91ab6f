package sensors

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tivacopter/flightcore/internal/bus"
	"github.com/tivacopter/flightcore/internal/calib"
)

// stubBus is a minimal embd.I2CBus double returning zeroed registers.
type stubBus struct{}

func (stubBus) ReadByte(addr byte) (byte, error)           { return 0, nil }
func (stubBus) ReadBytes(addr byte, n int) ([]byte, error) { return make([]byte, n), nil }
func (stubBus) WriteByte(addr, v byte) error               { return nil }
func (stubBus) WriteBytes(addr byte, v []byte) error       { return nil }
func (stubBus) ReadFromReg(addr, reg byte, n int) ([]byte, error) {
	return make([]byte, n), nil
}
func (stubBus) ReadByteFromReg(addr, reg byte) (byte, error)   { return 0, nil }
func (stubBus) ReadWordFromReg(addr, reg byte) (uint16, error) { return 0, nil }
func (stubBus) WriteToReg(addr, reg byte, v []byte) error      { return nil }
func (stubBus) WriteByteToReg(addr, reg, v byte) error         { return nil }
func (stubBus) WriteWordToReg(addr, reg byte, v uint16) error  { return nil }
func (stubBus) Close() error                                  { return nil }

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	eng := bus.New(stubBus{})
	t.Cleanup(eng.Close)
	cal := calib.New(filepath.Join(t.TempDir(), "cal.json"))
	d, err := New(eng, cal, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestNewConfiguresAndPublishes(t *testing.T) {
	d := newTestDriver(t)
	select {
	case s := <-d.C:
		if s == nil {
			t.Fatal("got nil sample")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no sample published")
	}
}

func TestCalibrateGyroAveragesZeroedBus(t *testing.T) {
	d := newTestDriver(t)
	if err := d.CalibrateGyro(8); err != nil {
		t.Fatalf("CalibrateGyro: %v", err)
	}
	if d.cal.GyroBiasX != 0 || d.cal.GyroBiasY != 0 || d.cal.GyroBiasZ != 0 {
		t.Fatalf("expected zero bias against a zeroed bus, got %+v", d.cal)
	}
}

func TestInt16ToFloatSignExtends(t *testing.T) {
	if got := int16ToFloat(0xFF, 0xFF); got != -1 {
		t.Fatalf("int16ToFloat(0xff,0xff) = %v, want -1", got)
	}
	if got := int16ToFloat(0x00, 0x01); got != 1 {
		t.Fatalf("int16ToFloat(0x00,0x01) = %v, want 1", got)
	}
}
