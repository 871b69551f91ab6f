// Package sensors drives the MPU6050 accelerometer/gyroscope and the
// HMC5883L magnetometer over an internal/bus Engine, publishing fused
// samples on channels the way goflying/icm20948 publishes MPUData: a
// current-value channel, a running-average channel, and a third channel
// (CBuf), all fed by one polling goroutine. CBuf carries the same per-tick
// samples as C; the goroutine keeps the last bufSize samples in an
// internal slice that is not published.
package sensors

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/tivacopter/flightcore/internal/bus"
	"github.com/tivacopter/flightcore/internal/calib"
)

const (
	mpuAddr  = 0x68
	hmcAddr  = 0x1E
	bufSize  = 250
	readTimeout = time.Second
)

// MPU6050 registers.
const (
	regPwrMgmt1    = 0x6B
	regGyroConfig  = 0x1B
	regAccelConfig = 0x1C
	regAccelXOutH  = 0x3B
	regTempOutH    = 0x41
	regGyroXOutH   = 0x43
)

// HMC5883L registers.
const (
	regHMCConfigA = 0x00
	regHMCConfigB = 0x01
	regHMCMode    = 0x02
	regHMCDataX   = 0x03
)

const (
	accelScale4G = 8192.0 // LSB/g at +/-4g full scale
	gyroScale250 = 131.0  // LSB/(deg/s) at +/-250dps full scale
	magScale1p3G = 1090.0 // LSB/Gauss at the HMC5883L's +/-1.3 Gauss range
)

// Sample is one fused reading across both chips.
type Sample struct {
	GyroX, GyroY, GyroZ    float64 // rad/s
	AccelX, AccelY, AccelZ float64 // g
	MagX, MagY, MagZ       float64 // Gauss
	Temp                   float64 // deg C

	GyroAccelErr error
	MagErr       error

	N  int
	T  time.Time
	DT time.Duration
}

// Driver owns the bus engine and calibration store, and publishes Samples.
type Driver struct {
	eng *bus.Engine
	cal *calib.Data

	sampleRate int

	C    <-chan *Sample
	CAvg <-chan *Sample
	CBuf <-chan *Sample

	cClose chan bool
}

// New configures both chips and starts the polling goroutine. sampleRate
// is in Hz.
func New(eng *bus.Engine, cal *calib.Data, sampleRate int) (*Driver, error) {
	d := &Driver{eng: eng, cal: cal, sampleRate: sampleRate, cClose: make(chan bool)}

	if err := d.configureMPU(); err != nil {
		return nil, fmt.Errorf("sensors: configuring MPU6050: %w", err)
	}
	if err := d.configureHMC(); err != nil {
		return nil, fmt.Errorf("sensors: configuring HMC5883L: %w", err)
	}

	c := make(chan *Sample)
	cAvg := make(chan *Sample)
	cBuf := make(chan *Sample)
	d.C, d.CAvg, d.CBuf = c, cAvg, cBuf

	go d.readSensors(c, cAvg, cBuf)
	return d, nil
}

func (d *Driver) writeReg(reg, value byte) error {
	done := make(chan bus.Kind, 1)
	if err := d.eng.AsyncRegWrite(mpuAddr, reg, []byte{value}, func(k bus.Kind, _ []byte, _ int) {
		done <- k
	}); err != nil {
		return err
	}
	if k := <-done; k != bus.KindOK {
		return fmt.Errorf("sensors: register write to %#x failed: %s", reg, k)
	}
	return nil
}

func (d *Driver) configureMPU() error {
	if err := d.writeReg(regPwrMgmt1, 0x80); err != nil { // device reset
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := d.writeReg(regPwrMgmt1, 0x02); err != nil { // wake, clock from gyro Y PLL
		return err
	}
	if err := d.writeReg(regGyroConfig, 0x00); err != nil { // +/-250dps
		return err
	}
	if err := d.writeReg(regAccelConfig, 0x08); err != nil { // +/-4g
		return err
	}
	return nil
}

func (d *Driver) configureHMC() error {
	// Config A: 8-sample averaging, 15Hz output, normal measurement.
	if err := d.i2cWriteHMC(regHMCConfigA, 0x70); err != nil {
		return err
	}
	// Config B: gain for +/-1.3 Gauss range.
	if err := d.i2cWriteHMC(regHMCConfigB, 0x20); err != nil {
		return err
	}
	// Mode: continuous measurement.
	return d.i2cWriteHMC(regHMCMode, 0x00)
}

func (d *Driver) i2cWriteHMC(reg, value byte) error {
	done := make(chan bus.Kind, 1)
	if err := d.eng.AsyncRegWrite(hmcAddr, reg, []byte{value}, func(k bus.Kind, _ []byte, _ int) {
		done <- k
	}); err != nil {
		return err
	}
	if k := <-done; k != bus.KindOK {
		return fmt.Errorf("sensors: HMC5883L register write to %#x failed: %s", reg, k)
	}
	return nil
}

// Close stops the polling goroutine.
func (d *Driver) Close() { close(d.cClose) }

// CalibrateGyro averages n stationary frames (the spec calls for roughly
// 512) and stores the measured bias, matching the "keep the craft still
// while the gyro settles" sequence the teacher's own MPU drivers assume.
func (d *Driver) CalibrateGyro(n int) error {
	var sumX, sumY, sumZ float64
	for i := 0; i < n; i++ {
		raw, err := d.readRaw(mpuAddr, regGyroXOutH, 6)
		if err != nil {
			return fmt.Errorf("sensors: gyro calibration read: %w", err)
		}
		sumX += int16ToFloat(raw[0], raw[1]) / gyroScale250
		sumY += int16ToFloat(raw[2], raw[3]) / gyroScale250
		sumZ += int16ToFloat(raw[4], raw[5]) / gyroScale250
	}
	d.cal.SetGyroBias(sumX/float64(n), sumY/float64(n), sumZ/float64(n))
	return nil
}

func (d *Driver) readRaw(addr, reg byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	done := make(chan bus.Kind, 1)
	if err := d.eng.AsyncRegRead(addr, reg, buf, func(k bus.Kind, _ []byte, _ int) {
		done <- k
	}); err != nil {
		return nil, err
	}
	if k := <-done; k != bus.KindOK {
		return nil, fmt.Errorf("read from %#x/%#x failed: %s", addr, reg, k)
	}
	return buf, nil
}

func int16ToFloat(hi, lo byte) float64 {
	return float64(int16(uint16(hi)<<8 | uint16(lo)))
}

func (d *Driver) readSensors(c, cAvg, cBuf chan *Sample) {
	ticker := time.NewTicker(time.Second / time.Duration(d.sampleRate))
	defer ticker.Stop()

	var avgX, avgY, avgZ, avgGX, avgGY, avgGZ float64
	var avgN int
	buf := make([]*Sample, 0, bufSize)
	last := time.Now()

	for {
		select {
		case <-d.cClose:
			return
		case now := <-ticker.C:
			s := &Sample{T: now, DT: now.Sub(last), N: avgN + 1}
			last = now

			raw, err := d.readRaw(mpuAddr, regAccelXOutH, 14)
			if err != nil {
				s.GyroAccelErr = err
				log.Printf("sensors: MPU6050 read error: %s", err)
			} else {
				ax := int16ToFloat(raw[0], raw[1]) / accelScale4G
				ay := int16ToFloat(raw[2], raw[3]) / accelScale4G
				az := int16ToFloat(raw[4], raw[5]) / accelScale4G
				s.Temp = int16ToFloat(raw[6], raw[7])/340.0 + 36.53
				gx := int16ToFloat(raw[8], raw[9]) / gyroScale250
				gy := int16ToFloat(raw[10], raw[11]) / gyroScale250
				gz := int16ToFloat(raw[12], raw[13]) / gyroScale250

				s.AccelX, s.AccelY, s.AccelZ = d.cal.ApplyAccel(ax, ay, az)
				gx, gy, gz = d.cal.ApplyGyro(gx, gy, gz)
				s.GyroX = gx * math.Pi / 180
				s.GyroY = gy * math.Pi / 180
				s.GyroZ = gz * math.Pi / 180
			}

			mraw, merr := d.readRaw(hmcAddr, regHMCDataX, 6)
			if merr != nil {
				s.MagErr = merr
			} else {
				rawX := int16ToFloat(mraw[0], mraw[1]) / magScale1p3G
				rawY := int16ToFloat(mraw[2], mraw[3]) / magScale1p3G
				rawZ := int16ToFloat(mraw[4], mraw[5]) / magScale1p3G
				// Axis remap from the HMC5883L's sensor frame into the
				// airframe's right-handed NED-like convention.
				mx, my, mz := d.cal.ApplyMag(rawY, -rawX, rawZ)
				s.MagX, s.MagY, s.MagZ = mx, my, mz
			}

			if time.Since(s.T) > readTimeout && s.GyroAccelErr == nil {
				s.GyroAccelErr = fmt.Errorf("sensors: no fresh MPU6050 sample for over %s", readTimeout)
			}

			select {
			case c <- s:
			default:
			}

			avgX += s.AccelX
			avgY += s.AccelY
			avgZ += s.AccelZ
			avgGX += s.GyroX
			avgGY += s.GyroY
			avgGZ += s.GyroZ
			avgN++

			if len(buf) >= bufSize {
				buf = buf[1:]
			}
			buf = append(buf, s)

			select {
			case cAvg <- &Sample{
				AccelX: avgX / float64(avgN), AccelY: avgY / float64(avgN), AccelZ: avgZ / float64(avgN),
				GyroX: avgGX / float64(avgN), GyroY: avgGY / float64(avgN), GyroZ: avgGZ / float64(avgN),
				N: avgN, T: now,
			}:
				avgX, avgY, avgZ, avgGX, avgGY, avgGZ, avgN = 0, 0, 0, 0, 0, 0, 0
			default:
			}

			select {
			case cBuf <- s:
			default:
			}
		}
	}
}
