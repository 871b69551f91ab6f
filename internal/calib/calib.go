// Package calib persists sensor calibration data (gyro bias, accelerometer
// bias, and magnetometer hard/soft-iron correction) to disk and applies it
// to raw samples. Modeled on goflying/icm20948's mpuCalData: same
// load/save/reset lifecycle, same JSON file format, generalized to a
// shared calibration store used by both chips in internal/sensors.
package calib

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/skelterjohn/go.matrix"
)

const defaultPath = "/etc/flightcore-cal.json"

// Data is the persisted calibration state for one sensor rig.
type Data struct {
	Path string `json:"-"`

	GyroBiasX, GyroBiasY, GyroBiasZ    float64
	AccelBiasX, AccelBiasY, AccelBiasZ float64

	MagHardIronX, MagHardIronY, MagHardIronZ float64

	// Soft-iron correction matrix, row-major, 3x3. Defaults to identity.
	SoftIron [9]float64
}

// New returns calibration data reset to identity soft-iron and zero bias,
// reading path (or the default location) if it exists.
func New(path string) *Data {
	if path == "" {
		path = defaultPath
	}
	d := &Data{Path: path}
	if err := d.Load(); err != nil {
		d.Reset()
	}
	return d
}

// Reset restores the identity soft-iron matrix and clears every bias.
func (d *Data) Reset() {
	*d = Data{Path: d.Path}
	d.SoftIron = [9]float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// Save writes the calibration data to d.Path, logging (not returning) on
// failure, matching the teacher's fire-and-forget save().
func (d *Data) Save() {
	fd, err := os.OpenFile(d.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Printf("calib: error saving calibration data to %s: %s", d.Path, err)
		return
	}
	defer fd.Close()
	buf, err := json.Marshal(d)
	if err != nil {
		log.Printf("calib: error marshaling calibration data: %s", err)
		return
	}
	fd.Write(buf)
}

// Load reads calibration data from d.Path.
func (d *Data) Load() error {
	fd, err := os.Open(d.Path)
	if err != nil {
		return fmt.Errorf("calib: error reading calibration data from %s: %w", d.Path, err)
	}
	defer fd.Close()
	buf := make([]byte, 1024)
	n, err := fd.Read(buf)
	if err != nil {
		return fmt.Errorf("calib: error reading calibration data from %s: %w", d.Path, err)
	}
	if err := json.Unmarshal(buf[:n], d); err != nil {
		return fmt.Errorf("calib: error reading calibration data from %s: %w", d.Path, err)
	}
	return nil
}

func (d *Data) softIronMatrix() *matrix.DenseMatrix {
	return matrix.MakeDenseMatrix(d.SoftIron[:], 3, 3)
}

// ApplyMag subtracts the hard-iron offset and multiplies by the soft-iron
// matrix, producing a corrected magnetometer reading in the sensor frame.
func (d *Data) ApplyMag(x, y, z float64) (cx, cy, cz float64) {
	v := matrix.MakeDenseMatrix([]float64{
		x - d.MagHardIronX,
		y - d.MagHardIronY,
		z - d.MagHardIronZ,
	}, 3, 1)
	out := d.softIronMatrix().Times(v)
	return out.Get(0, 0), out.Get(1, 0), out.Get(2, 0)
}

// ApplyGyro subtracts the stored gyro bias.
func (d *Data) ApplyGyro(x, y, z float64) (cx, cy, cz float64) {
	return x - d.GyroBiasX, y - d.GyroBiasY, z - d.GyroBiasZ
}

// ApplyAccel subtracts the stored accelerometer bias.
func (d *Data) ApplyAccel(x, y, z float64) (cx, cy, cz float64) {
	return x - d.AccelBiasX, y - d.AccelBiasY, z - d.AccelBiasZ
}

// SetGyroBias stores a newly measured gyro bias and persists it.
func (d *Data) SetGyroBias(x, y, z float64) {
	d.GyroBiasX, d.GyroBiasY, d.GyroBiasZ = x, y, z
	d.Save()
}
