package bus

import (
	"errors"
	"sync"
	"time"

	"github.com/kidoman/embd"
)

// ErrBusClosed is returned by async primitives once the engine has been
// closed.
var ErrBusClosed = errors.New("bus: engine closed")

// Engine is an interrupt-driven I2C transaction engine. One Engine serves
// one physical bus; both sensors in internal/sensors share a single Engine
// the same way the teacher's icm20948 driver owns one embd.I2CBus.
//
// The queue is a singly linked FIFO of pool-backed transactions guarded by
// mu: the head is "current" and owned by the stepping goroutine, new
// transactions are linked at the tail. There is no real hardware interrupt
// on a Linux host, so the stepping goroutine plays the role of the bus ISR
// by calling step() back to back for the current transaction — each call
// performs exactly one FSM transition, and the underlying embd.I2CBus call
// happens at the transition that would, on real hardware, be the last
// byte of the burst.
type Engine struct {
	i2c embd.I2CBus

	mu     sync.Mutex
	pool   [MaxQueueingTransactions]transaction
	free   []int
	head   *transaction
	tail   *transaction
	queued int

	kick   chan struct{}
	closed bool
	done   chan struct{}
}

// New creates an Engine driving the given bus.
func New(i2c embd.I2CBus) *Engine {
	e := &Engine{
		i2c:  i2c,
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	e.free = make([]int, MaxQueueingTransactions)
	for i := range e.free {
		e.free[i] = i
	}
	go e.run()
	return e
}

// Close refuses further transactions (the async primitives then return
// ErrBusClosed) and stops the stepping goroutine without waiting for it: a
// queue the goroutine is already working through is still run to the end,
// callbacks included.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	close(e.done)
}

func (e *Engine) alloc() (*transaction, bool) {
	if len(e.free) == 0 {
		return nil, false
	}
	idx := e.free[len(e.free)-1]
	e.free = e.free[:len(e.free)-1]
	t := &e.pool[idx]
	t.reset()
	return t, true
}

func (e *Engine) release(t *transaction) {
	for i := range e.pool {
		if &e.pool[i] == t {
			e.free = append(e.free, i)
			return
		}
	}
}

// flushAll invokes every queued callback with KindMaxQueueingReached and
// empties the queue. Caller must hold mu.
func (e *Engine) flushAll() {
	cur := e.head
	for cur != nil {
		next := cur.next
		if cur.cb != nil {
			cur.cb(KindMaxQueueingReached, cur.data, cur.total)
		}
		e.release(cur)
		cur = next
	}
	e.head, e.tail, e.queued = nil, nil, 0
}

// enqueue appends t to the queue, applying the MAX_QUEUEING_TRANSACTIONS
// overflow policy, and wakes the stepping goroutine.
func (e *Engine) enqueue(t *transaction) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrBusClosed
	}
	if e.queued >= MaxQueueingTransactions {
		e.flushAll()
	}
	t.used = true
	if e.head == nil {
		e.head = t
	} else {
		e.tail.next = t
	}
	e.tail = t
	e.queued++
	e.mu.Unlock()

	select {
	case e.kick <- struct{}{}:
	default:
	}
	return nil
}

func newBuffered(n int) []byte { return make([]byte, n) }

// AsyncWrite enqueues a raw write of buf to slave.
func (e *Engine) AsyncWrite(slave byte, buf []byte, cb Callback) error {
	t, ok := e.alloc()
	if !ok {
		return e.overflowAlloc(cb, buf)
	}
	t.dir, t.typ, t.slave = dirWrite, typeRaw, slave
	t.data, t.total, t.remaining, t.cb = buf, len(buf), len(buf), cb
	return e.enqueue(t)
}

// AsyncRegWrite enqueues a register-addressed write.
func (e *Engine) AsyncRegWrite(slave, reg byte, buf []byte, cb Callback) error {
	t, ok := e.alloc()
	if !ok {
		return e.overflowAlloc(cb, buf)
	}
	t.dir, t.typ, t.slave, t.reg = dirWrite, typeRegister, slave, reg
	t.data, t.total, t.remaining, t.cb = buf, len(buf), len(buf), cb
	return e.enqueue(t)
}

// AsyncRegRead enqueues a register-addressed read of n bytes into buf.
func (e *Engine) AsyncRegRead(slave, reg byte, buf []byte, cb Callback) error {
	t, ok := e.alloc()
	if !ok {
		return e.overflowAlloc(cb, buf)
	}
	t.dir, t.typ, t.slave, t.reg = dirRead, typeRegister, slave, reg
	t.data, t.total, t.remaining, t.cb = buf, len(buf), len(buf), cb
	return e.enqueue(t)
}

// AsyncRegRMW enqueues a read-modify-write: reads one byte from reg, ORs
// *bytePtr into it under mask, writes the result back, and updates
// *bytePtr in place once the transaction completes.
func (e *Engine) AsyncRegRMW(slave, reg byte, bytePtr *byte, mask byte, cb Callback) error {
	t, ok := e.alloc()
	if !ok {
		return e.overflowAlloc(cb, nil)
	}
	t.dir, t.typ, t.slave, t.reg = dirReadModifyWrite, typeRegister, slave, reg
	t.mask, t.bytePtr = mask, bytePtr
	t.data = newBuffered(1)
	t.total, t.remaining, t.cb = 1, 1, cb
	return e.enqueue(t)
}

// overflowAlloc handles the case where the pool itself is already
// saturated (every slot in use, not just the logical queue count): it
// flushes the queue the way enqueue's count check does and then reports
// KindMaxQueueingReached to the new transaction's callback as well. Unlike
// the count check, it does not queue the new transaction.
func (e *Engine) overflowAlloc(cb Callback, buf []byte) error {
	e.mu.Lock()
	e.flushAll()
	e.mu.Unlock()
	if cb != nil {
		cb(KindMaxQueueingReached, buf, len(buf))
	}
	return nil
}

// Wait blocks the caller until the queue drains or timeout elapses. Used
// only during boot configuration, where spinning briefly is acceptable.
func (e *Engine) Wait(timeout time.Duration) Kind {
	deadline := time.Now().Add(timeout)
	for {
		e.mu.Lock()
		empty := e.head == nil
		e.mu.Unlock()
		if empty {
			return KindOK
		}
		if time.Now().After(deadline) {
			return KindTimeoutReached
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func (e *Engine) run() {
	for {
		select {
		case <-e.done:
			return
		case <-e.kick:
		}
		for {
			e.mu.Lock()
			cur := e.head
			e.mu.Unlock()
			if cur == nil {
				break
			}
			kind, done := e.step(cur)
			if !done {
				continue
			}
			e.complete(cur, kind)
		}
	}
}

// complete invokes cur's callback and pops it from the head of the queue,
// in strict enqueue order, matching the STATE_IDLE handling of
// I2CIntStateMachine.
func (e *Engine) complete(cur *transaction, kind Kind) {
	cb := cur.cb
	data := cur.data
	total := cur.total

	e.mu.Lock()
	e.head = cur.next
	if e.head == nil {
		e.tail = nil
	}
	e.queued--
	e.release(cur)
	e.mu.Unlock()

	if cb != nil {
		cb(kind, data, total)
	}
}

// step performs exactly one FSM transition for t and reports whether the
// transaction has completed (state has reached Idle or a bus error
// aborted it) and with what status.
func (e *Engine) step(t *transaction) (Kind, bool) {
	if !t.used {
		return KindUnknown, true
	}
	if t.state == stateIdle && t.remaining == t.total && !t.begun {
		t.begun = true
		switch t.dir {
		case dirWrite:
			if t.total <= 1 {
				t.state = stateWriteFinal
			} else {
				t.state = stateWriteNext
			}
		case dirReadModifyWrite:
			t.state = stateReadOne
		default: // dirRead
			switch {
			case t.total <= 1:
				t.state = stateReadOne
			default:
				t.state = stateReadFirst
			}
		}
		return KindUndetermined, false
	}

	switch t.state {
	case stateWriteNext:
		t.remaining--
		if t.remaining == 1 {
			t.state = stateWriteFinal
		}
		return KindUndetermined, false

	case stateWriteFinal:
		var err error
		if t.typ == typeRegister {
			err = e.i2c.WriteToReg(t.slave, t.reg, t.data)
		} else {
			err = e.i2c.WriteBytes(t.slave, t.data)
		}
		t.remaining = 0
		if err != nil {
			return KindUnknown, true
		}
		t.state = stateIdle
		return KindOK, true

	case stateReadOne:
		var v byte
		var err error
		if t.typ == typeRegister {
			v, err = e.i2c.ReadByteFromReg(t.slave, t.reg)
		} else {
			var buf []byte
			buf, err = e.i2c.ReadBytes(t.slave, 1)
			if err == nil {
				v = buf[0]
			}
		}
		if err != nil {
			return KindUnknown, true
		}
		t.data[0] = v
		if t.dir == dirReadModifyWrite {
			t.state = stateReadWait
			return KindUndetermined, false
		}
		t.state = stateIdle
		return KindOK, true

	case stateReadFirst:
		if t.remaining == 2 {
			t.state = stateReadFinal
		} else {
			t.state = stateReadNext
		}
		return KindUndetermined, false

	case stateReadNext:
		t.remaining--
		if t.remaining == 2 {
			t.state = stateReadFinal
		}
		return KindUndetermined, false

	case stateReadFinal:
		var buf []byte
		var err error
		if t.typ == typeRegister {
			buf, err = e.i2c.ReadFromReg(t.slave, t.reg, t.total)
		} else {
			buf, err = e.i2c.ReadBytes(t.slave, t.total)
		}
		if err != nil {
			return KindUnknown, true
		}
		copy(t.data, buf)
		t.remaining = 0
		t.state = stateReadWait
		return KindUndetermined, false

	case stateReadWait:
		if t.dir == dirRead {
			t.state = stateIdle
			return KindOK, true
		}
		// RMW tail: OR caller's byte into what was read, under mask,
		// then fall through to a final write of the combined byte.
		combined := t.data[0] | (*t.bytePtr & t.mask)
		t.data[0] = combined
		*t.bytePtr = combined
		t.total, t.remaining = 1, 1
		t.state = stateWriteFinal
		return KindUndetermined, false
	}
	return KindUnknown, true
}
