// Package telemetry implements the data source / data input registry
// described by JSONCommunication.h, carried over gorilla/websocket as the
// concrete transport for the JSON bus the original firmware speaks over a
// UART. Subscribing a source makes every future Publish of that name go
// out over the bus; subscribing periodically does the same on a fixed
// timer instead of on demand; subscribing an input lets inbound frames of
// that name reach a registered handler.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MaxDataSources and MaxDataInputs match JSONCommunication.h's
// MAX_DATASOURCE_COUNT / MAX_DATAINPUT_COUNT.
const (
	MaxDataSources = 10
	MaxDataInputs  = 2
)

// SourceFunc returns the current value for a data source. ok is false
// when the value is momentarily unavailable (e.g. a sensor read failed);
// Publish skips sending in that case.
type SourceFunc func() (value interface{}, ok bool)

// InputFunc handles one inbound frame's payload.
type InputFunc func(raw json.RawMessage) error

// Frame is the wire format of one line-delimited JSON message, both
// outbound (source name + value) and inbound (source name + value).
type Frame struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value,omitempty"`
}

type source struct {
	fn       SourceFunc
	enabled  bool
	periodic bool
	stop     chan struct{}
}

type input struct {
	fn         InputFunc
	subscribed bool
}

// Adapter is the local half of the JSON bus: it owns the registry and the
// single active websocket connection frames are written to / read from.
type Adapter struct {
	mu      sync.Mutex
	sources map[string]*source
	inputs  map[string]*input
	conn    *websocket.Conn
	done    chan struct{}
}

// NewAdapter returns an empty, unattached adapter.
func NewAdapter() *Adapter {
	return &Adapter{
		sources: make(map[string]*source),
		inputs:  make(map[string]*input),
	}
}

// RegisterSource adds a named data source. It does not start publishing
// until Subscribe or SubscribePeriodic is called for name.
func (a *Adapter) RegisterSource(name string, fn SourceFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sources) >= MaxDataSources {
		return fmt.Errorf("telemetry: data source table full (max %d)", MaxDataSources)
	}
	a.sources[name] = &source{fn: fn}
	return nil
}

// RegisterInput adds a named data input. Like sources, it stays inert
// until SubscribeInput is called.
func (a *Adapter) RegisterInput(name string, fn InputFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.inputs) >= MaxDataInputs {
		return fmt.Errorf("telemetry: data input table full (max %d)", MaxDataInputs)
	}
	a.inputs[name] = &input{fn: fn}
	return nil
}

// Attach binds the adapter to a live connection and starts its read loop.
// Any previous connection is dropped.
func (a *Adapter) Attach(conn *websocket.Conn) {
	a.mu.Lock()
	if a.done != nil {
		close(a.done)
	}
	if a.conn != nil && a.conn != conn {
		a.conn.Close()
	}
	a.conn = conn
	done := make(chan struct{})
	a.done = done
	a.mu.Unlock()
	go a.readLoop(conn, done)
}

func (a *Adapter) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			log.Printf("telemetry: read error: %s", err)
			return
		}
		a.dispatch(f)
	}
}

func (a *Adapter) dispatch(f Frame) {
	a.mu.Lock()
	in, ok := a.inputs[f.Name]
	a.mu.Unlock()
	if !ok || !in.subscribed {
		return
	}
	if err := in.fn(f.Value); err != nil {
		log.Printf("telemetry: input %q handler error: %s", f.Name, err)
	}
}

// Subscribe enables name so future Publish calls send it.
func (a *Adapter) Subscribe(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sources[name]
	if !ok {
		return fmt.Errorf("telemetry: unknown data source %q", name)
	}
	s.enabled = true
	return nil
}

// Unsubscribe disables name and stops any periodic timer for it.
func (a *Adapter) Unsubscribe(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sources[name]
	if !ok {
		return fmt.Errorf("telemetry: unknown data source %q", name)
	}
	s.enabled = false
	if s.periodic && s.stop != nil {
		close(s.stop)
		s.stop = nil
		s.periodic = false
	}
	return nil
}

// SubscribePeriodic enables name and publishes it on its own ticker
// instead of waiting for explicit Publish calls.
func (a *Adapter) SubscribePeriodic(name string, interval time.Duration) error {
	a.mu.Lock()
	s, ok := a.sources[name]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("telemetry: unknown data source %q", name)
	}
	if s.periodic && s.stop != nil {
		close(s.stop)
	}
	s.enabled = true
	s.periodic = true
	stop := make(chan struct{})
	s.stop = stop
	a.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				a.Publish(name)
			}
		}
	}()
	return nil
}

// UnsubscribePeriodic stops name's ticker without disabling on-demand
// Publish calls for it.
func (a *Adapter) UnsubscribePeriodic(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sources[name]
	if !ok {
		return fmt.Errorf("telemetry: unknown data source %q", name)
	}
	if s.periodic && s.stop != nil {
		close(s.stop)
		s.stop = nil
		s.periodic = false
	}
	return nil
}

// SubscribeInput marks name's registered input as accepting frames.
func (a *Adapter) SubscribeInput(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	in, ok := a.inputs[name]
	if !ok {
		return fmt.Errorf("telemetry: unknown data input %q", name)
	}
	in.subscribed = true
	return nil
}

// UnsubscribeInput stops name's registered input from accepting frames.
func (a *Adapter) UnsubscribeInput(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	in, ok := a.inputs[name]
	if !ok {
		return fmt.Errorf("telemetry: unknown data input %q", name)
	}
	in.subscribed = false
	return nil
}

// Publish evaluates name's source function and, if enabled and the value
// is currently available, writes a frame to the active connection.
func (a *Adapter) Publish(name string) error {
	a.mu.Lock()
	s, ok := a.sources[name]
	conn := a.conn
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("telemetry: unknown data source %q", name)
	}
	if !s.enabled || conn == nil {
		return nil
	}
	value, ok := s.fn()
	if !ok {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("telemetry: marshaling %q: %w", name, err)
	}
	return conn.WriteJSON(Frame{Name: name, Value: raw})
}

// SourceNames lists every registered source, for the shell's listSources
// command.
func (a *Adapter) SourceNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.sources))
	for n := range a.sources {
		names = append(names, n)
	}
	return names
}
