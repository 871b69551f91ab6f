package calib

import (
	"path/filepath"
	"testing"
)

func TestResetIsIdentitySoftIron(t *testing.T) {
	d := &Data{Path: "unused"}
	d.Reset()
	for i, v := range d.SoftIron {
		want := 0.0
		if i == 0 || i == 4 || i == 8 {
			want = 1.0
		}
		if v != want {
			t.Fatalf("SoftIron[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestApplyMagIdentityMatchesHardIronOnly(t *testing.T) {
	d := &Data{Path: "unused"}
	d.Reset()
	d.MagHardIronX, d.MagHardIronY, d.MagHardIronZ = 1, -2, 0.5

	cx, cy, cz := d.ApplyMag(10, 20, 30)
	if cx != 9 || cy != 22 || cz != 29.5 {
		t.Fatalf("got (%v,%v,%v), want (9,22,29.5)", cx, cy, cz)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.json")
	d := New(path)
	d.GyroBiasX = 3.5
	d.MagHardIronZ = -7
	d.Save()

	loaded := New(path)
	if loaded.GyroBiasX != 3.5 || loaded.MagHardIronZ != -7 {
		t.Fatalf("loaded = %+v, want GyroBiasX=3.5 MagHardIronZ=-7", loaded)
	}
}

func TestApplyGyroSubtractsBias(t *testing.T) {
	d := &Data{Path: "unused"}
	d.Reset()
	d.GyroBiasX, d.GyroBiasY, d.GyroBiasZ = 0.1, -0.2, 0.05
	x, y, z := d.ApplyGyro(1, 1, 1)
	if x != 0.9 || y != 1.2 || z != 0.95 {
		t.Fatalf("got (%v,%v,%v)", x, y, z)
	}
}
