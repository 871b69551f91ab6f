package main

import (
	"fmt"
	"log"

	"github.com/kidoman/embd"
)

// escMinPulse/escMaxPulse are the standard RC-ESC pulse-width range in
// nanoseconds that a motor power of 0/1 maps onto.
const (
	escMinPulse = 1000000 // 1ms
	escMaxPulse = 2000000 // 2ms
	pwmPeriod   = 20000000 // 20ms, 50Hz
)

// pwmMotorDriver drives four ESCs over embd.PWMPin outputs.
type pwmMotorDriver struct {
	pins [4]embd.PWMPin
}

func newPWMMotorDriver() *pwmMotorDriver {
	d := &pwmMotorDriver{}
	for i, key := range []string{"P9_14", "P9_16", "P9_21", "P9_22"} {
		pin, err := embd.NewPWMPin(key)
		if err != nil {
			log.Fatalf("flightcore: motor pin %s: %s", key, err)
		}
		if err := pin.SetPeriod(pwmPeriod); err != nil {
			log.Fatalf("flightcore: motor pin %s period: %s", key, err)
		}
		d.pins[i] = pin
	}
	return d
}

func (d *pwmMotorDriver) SetPower(motor int, power float64) error {
	if motor < 0 || motor > 3 {
		return fmt.Errorf("motors: invalid motor index %d", motor)
	}
	if power < 0 {
		power = 0
	} else if power > 1 {
		power = 1
	}
	duty := escMinPulse + int(power*float64(escMaxPulse-escMinPulse))
	return d.pins[motor].SetDuty(duty)
}

func (d *pwmMotorDriver) Shutoff() error {
	for _, p := range d.pins {
		if err := p.SetDuty(escMinPulse); err != nil {
			return err
		}
	}
	return nil
}
