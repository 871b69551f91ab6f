// Command flightcore boots the flight-control pipeline: it brings up the
// I2C bus and GPIO, wires a Core, and runs the sensor/attitude/control
// loop until interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"

	"github.com/tivacopter/flightcore/internal/core"
)

func main() {
	if err := embd.InitI2C(); err != nil {
		log.Fatalf("flightcore: InitI2C: %s", err)
	}
	defer embd.CloseI2C()

	if err := embd.InitGPIO(); err != nil {
		log.Fatalf("flightcore: InitGPIO: %s", err)
	}
	defer embd.CloseGPIO()

	i2cBus := embd.NewI2CBus(1)

	var radioPins [5]embd.DigitalPin
	for i, name := range []string{"GPIO_17", "GPIO_27", "GPIO_22", "GPIO_23", "GPIO_24"} {
		pin, err := embd.NewDigitalPin(name)
		if err != nil {
			log.Fatalf("flightcore: radio pin %s: %s", name, err)
		}
		if err := pin.SetDirection(embd.In); err != nil {
			log.Fatalf("flightcore: radio pin %s direction: %s", name, err)
		}
		radioPins[i] = pin
	}

	c, err := core.New(core.Config{
		I2C:          i2cBus,
		Motors:       newPWMMotorDriver(),
		RadioPins:    radioPins,
		CalPath:      "/etc/flightcore-cal.json",
		MadgwickBeta: 0,
	})
	if err != nil {
		log.Fatalf("flightcore: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("flightcore: shutting down")
		cancel()
	}()

	if err := c.Run(ctx); err != nil {
		log.Fatalf("flightcore: run: %s", err)
	}
}
