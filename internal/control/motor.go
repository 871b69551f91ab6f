package control

import "fmt"

// motorOffsets are each motor's deadband offset: raw mixer output in
// [0,1] is remapped through its motor's own offset before being scaled
// onto the hardware's compare range, so a motor never receives a literal
// zero command while armed. The four values differ because each ESC/motor
// pair has its own measured deadband.
var motorOffsets = [4]float64{0.1845, 0.1075, 0.2330, 0.1080}

const (
	minMotorDuty = 0.0
	maxMotorDuty = 1.0
)

// MotorDriver abstracts the four ESC/PWM outputs, the way embd.I2CBus
// abstracts the I2C bus: one concrete implementation talks to real
// hardware, tests use an in-memory fake.
type MotorDriver interface {
	// SetPower commands motor (0-3) to power, in [0,1]; the controller has
	// already applied that motor's offset remap.
	SetPower(motor int, power float64) error
	// Shutoff drives every motor to the hardware's minimum compare value
	// directly, bypassing the offset remap.
	Shutoff() error
}

func remap(power, offset float64) float64 {
	if power < minMotorDuty {
		power = minMotorDuty
	} else if power > maxMotorDuty {
		power = maxMotorDuty
	}
	return power*(1-offset) + offset
}

// applyRemap commands all four motors through each motor's own offset remap.
func applyRemap(d MotorDriver, powers [4]float64) error {
	for i, p := range powers {
		if err := d.SetPower(i, remap(p, motorOffsets[i])); err != nil {
			return fmt.Errorf("control: motor %d: %w", i, err)
		}
	}
	return nil
}
