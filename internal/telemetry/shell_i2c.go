package telemetry

import (
	"fmt"
	"strconv"

	"github.com/tivacopter/flightcore/internal/bus"
)

// i2cShellState tracks the slave address selected by i2cSelect, since the
// original console commands operate on "the currently selected device"
// rather than taking an address every call.
type i2cShellState struct {
	eng   *bus.Engine
	slave byte
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q: %w", s, err)
	}
	return byte(v), nil
}

// RegisterI2CCommands wires i2cSelect/i2cregr/i2cregw/i2cregrmw/i2cw
// against eng, generalizing the console's raw I2C debugging commands.
func RegisterI2CCommands(sh *Shell, eng *bus.Engine) {
	st := &i2cShellState{eng: eng}

	sh.Register("i2cSelect", func(args []string) (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("usage: i2cSelect <addr>")
		}
		addr, err := parseByte(args[0])
		if err != nil {
			return "", err
		}
		st.slave = addr
		return "", nil
	})

	sh.Register("i2cregr", func(args []string) (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("usage: i2cregr <reg>")
		}
		reg, err := parseByte(args[0])
		if err != nil {
			return "", err
		}
		buf := make([]byte, 1)
		result := make(chan bus.Kind, 1)
		if err := st.eng.AsyncRegRead(st.slave, reg, buf, func(k bus.Kind, _ []byte, _ int) {
			result <- k
		}); err != nil {
			return "", err
		}
		if k := <-result; k != bus.KindOK {
			return "", fmt.Errorf("i2cregr: %s", k)
		}
		return fmt.Sprintf("0x%02x", buf[0]), nil
	})

	sh.Register("i2cregw", func(args []string) (string, error) {
		if len(args) != 2 {
			return "", fmt.Errorf("usage: i2cregw <reg> <value>")
		}
		reg, err := parseByte(args[0])
		if err != nil {
			return "", err
		}
		val, err := parseByte(args[1])
		if err != nil {
			return "", err
		}
		result := make(chan bus.Kind, 1)
		if err := st.eng.AsyncRegWrite(st.slave, reg, []byte{val}, func(k bus.Kind, _ []byte, _ int) {
			result <- k
		}); err != nil {
			return "", err
		}
		if k := <-result; k != bus.KindOK {
			return "", fmt.Errorf("i2cregw: %s", k)
		}
		return "", nil
	})

	sh.Register("i2cregrmw", func(args []string) (string, error) {
		if len(args) != 3 {
			return "", fmt.Errorf("usage: i2cregrmw <reg> <value> <mask>")
		}
		reg, err := parseByte(args[0])
		if err != nil {
			return "", err
		}
		val, err := parseByte(args[1])
		if err != nil {
			return "", err
		}
		mask, err := parseByte(args[2])
		if err != nil {
			return "", err
		}
		result := make(chan bus.Kind, 1)
		if err := st.eng.AsyncRegRMW(st.slave, reg, &val, mask, func(k bus.Kind, _ []byte, _ int) {
			result <- k
		}); err != nil {
			return "", err
		}
		if k := <-result; k != bus.KindOK {
			return "", fmt.Errorf("i2cregrmw: %s", k)
		}
		return fmt.Sprintf("0x%02x", val), nil
	})

	sh.Register("i2cw", func(args []string) (string, error) {
		if len(args) < 1 {
			return "", fmt.Errorf("usage: i2cw <byte...>")
		}
		buf := make([]byte, len(args))
		for i, a := range args {
			v, err := parseByte(a)
			if err != nil {
				return "", err
			}
			buf[i] = v
		}
		result := make(chan bus.Kind, 1)
		if err := st.eng.AsyncWrite(st.slave, buf, func(k bus.Kind, _ []byte, _ int) {
			result <- k
		}); err != nil {
			return "", err
		}
		if k := <-result; k != bus.KindOK {
			return "", fmt.Errorf("i2cw: %s", k)
		}
		return "", nil
	})
}
