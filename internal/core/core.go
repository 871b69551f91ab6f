// Package core wires the transaction engine, sensor driver, attitude
// estimator, flight controller, input multiplexer, and telemetry adapter
// into one explicit aggregate, replacing the global singletons
// (IMU, PID, motors, QuadControl, the data-source table) the C sources
// relied on.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kidoman/embd"

	"github.com/tivacopter/flightcore/internal/attitude"
	"github.com/tivacopter/flightcore/internal/bus"
	"github.com/tivacopter/flightcore/internal/calib"
	"github.com/tivacopter/flightcore/internal/control"
	"github.com/tivacopter/flightcore/internal/input"
	"github.com/tivacopter/flightcore/internal/sensors"
	"github.com/tivacopter/flightcore/internal/telemetry"
)

// SampleRate is the sensor/control loop frequency in Hz.
const SampleRate = 250

// Core owns every component's lifetime and the QuadControl state they
// share.
type Core struct {
	Bus       *bus.Engine
	Cal       *calib.Data
	Sensors   *sensors.Driver
	Attitude  *attitude.Estimator
	Control   *control.Controller
	Input     *input.Mux
	Telemetry *telemetry.Adapter
	Shell     *telemetry.Shell

	qc control.QuadControl
}

// Config collects the hardware and tuning parameters New needs.
type Config struct {
	I2C         embd.I2CBus
	Motors      control.MotorDriver
	RadioPins   [5]embd.DigitalPin
	CalPath     string
	MadgwickBeta float64
}

// New constructs a Core with every subsystem configured. The bus engine's
// stepping goroutine and the sensor polling goroutine start here; call Run
// to start the attitude/control loop.
func New(cfg Config) (*Core, error) {
	c := &Core{
		Bus: bus.New(cfg.I2C),
		Cal: calib.New(cfg.CalPath),
	}

	var err error
	c.Sensors, err = sensors.New(c.Bus, c.Cal, SampleRate)
	if err != nil {
		return nil, fmt.Errorf("core: sensors: %w", err)
	}

	c.Attitude = attitude.New(cfg.MadgwickBeta)
	c.Control = control.NewController(cfg.Motors)
	c.qc = control.DefaultQuadControl()

	if cfg.RadioPins[0] != nil {
		c.Input, err = input.NewMux(cfg.RadioPins)
		if err != nil {
			return nil, fmt.Errorf("core: input: %w", err)
		}
	}

	c.Telemetry = telemetry.NewAdapter()
	c.Shell = telemetry.NewShell()
	telemetry.RegisterDefaultCommands(c.Shell, c.Telemetry, c.Control)
	telemetry.RegisterI2CCommands(c.Shell, c.Bus)
	c.registerSources()

	return c, nil
}

func (c *Core) registerSources() {
	c.Telemetry.RegisterSource("attitude", func() (interface{}, bool) {
		yaw, pitch, roll := c.Attitude.Euler()
		return struct{ Yaw, Pitch, Roll float64 }{yaw, pitch, roll}, true
	})
	c.Telemetry.RegisterSource("control", func() (interface{}, bool) {
		return c.qc, true
	})
	c.Telemetry.RegisterInput("remoteControl", func(raw json.RawMessage) error {
		var rc input.RemoteControl
		if err := json.Unmarshal(raw, &rc); err != nil {
			return err
		}
		if c.Input != nil {
			c.Input.SetRemoteControl(rc)
		}
		return nil
	})
}

// Run starts the sensor/attitude/control pipeline and blocks until ctx is
// canceled, mirroring the priority-ordered task startup of the original
// RTOS boot sequence (sensors first, then attitude, then control).
func (c *Core) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / SampleRate)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return c.Control.Shutoff()
		case s := <-c.Sensors.C:
			now := time.Now()
			dt := now.Sub(last)
			last = now

			if s.GyroAccelErr != nil {
				continue
			}
			c.Attitude.Update(s.GyroX, s.GyroY, s.GyroZ, s.AccelX, s.AccelY, s.AccelZ, s.MagX, s.MagY, s.MagZ, dt)

			if c.Input != nil {
				c.Input.Sample(&c.qc)
			}

			_, pitch, roll := c.Attitude.Euler()
			if err := c.Control.Step(pitch, roll, s.AccelZ, 1.0, &c.qc, dt); err != nil {
				return fmt.Errorf("core: control step: %w", err)
			}
		case <-ticker.C:
		}
	}
}
