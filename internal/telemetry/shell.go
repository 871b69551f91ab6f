package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tivacopter/flightcore/internal/control"
)

// CommandFunc implements one shell command. args excludes the command
// name itself.
type CommandFunc func(args []string) (string, error)

// Shell is a small command-line dispatcher generalizing
// Utils/UARTConsole.c and CmdLineWarper.c's fixed command table into a
// Go map, so tests can exercise it without a real serial console.
type Shell struct {
	commands map[string]CommandFunc
}

// NewShell returns an empty shell.
func NewShell() *Shell {
	return &Shell{commands: make(map[string]CommandFunc)}
}

// Register adds or replaces a command.
func (s *Shell) Register(name string, fn CommandFunc) {
	s.commands[name] = fn
}

// Run tokenizes line on whitespace and dispatches to the matching
// registered command.
func (s *Shell) Run(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, ok := s.commands[fields[0]]
	if !ok {
		return "", fmt.Errorf("shell: unknown command %q", fields[0])
	}
	return cmd(fields[1:])
}

// RegisterDefaultCommands wires the adapter's listSources/enable/disable/
// start and the controller's setYawPID/setPitchPID/setRollPID/
// setAltitudePID commands, matching SubscribePIDsCmds and the source
// management commands of the original console.
func RegisterDefaultCommands(sh *Shell, a *Adapter, c *control.Controller) {
	sh.Register("listSources", func(args []string) (string, error) {
		return strings.Join(a.SourceNames(), "\n"), nil
	})

	sh.Register("enable", func(args []string) (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("usage: enable <source>")
		}
		return "", a.Subscribe(args[0])
	})

	sh.Register("disable", func(args []string) (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("usage: disable <source>")
		}
		return "", a.Unsubscribe(args[0])
	})

	sh.Register("start", func(args []string) (string, error) {
		if len(args) != 2 {
			return "", fmt.Errorf("usage: start <source> <period_ms>")
		}
		ms, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("invalid period: %w", err)
		}
		return "", a.SubscribePeriodic(args[0], time.Duration(ms)*time.Millisecond)
	})

	sh.Register("setYawPID", pidSetter(c.Yaw))
	sh.Register("setPitchPID", pidSetter(c.Pitch))
	sh.Register("setRollPID", pidSetter(c.Roll))
	sh.Register("setAltitudePID", pidSetter(c.Altitude))
}

// pidSetter builds a "Kp Ki Kd [ILimit]" command for one PID loop; ILimit
// is optional and keeps the PID's current value when omitted.
func pidSetter(p *control.PID) CommandFunc {
	return func(args []string) (string, error) {
		if len(args) != 3 && len(args) != 4 {
			return "", fmt.Errorf("usage: <cmd> Kp Ki Kd [ILimit]")
		}
		vals := make([]float64, len(args))
		for i, a := range args {
			v, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return "", fmt.Errorf("invalid gain %q: %w", a, err)
			}
			vals[i] = v
		}
		iLimit := p.Gains.ILimit
		if len(vals) == 4 {
			iLimit = vals[3]
		}
		p.Gains = control.Gains{Kp: vals[0], Ki: vals[1], Kd: vals[2], ILimit: iLimit}
		return "", nil
	}
}
