// Package bus implements an interrupt-driven I2C transaction engine: a FIFO
// queue of in-flight transactions advanced one step per bus interrupt,
// exposing async write/read/read-modify-write primitives plus a
// synchronous wait. Modeled on the channel-based publishing idiom of
// github.com/stratux/goflying/icm20948, generalized from "one sensor
// driver" to "a reusable bus scheduler".
package bus

// Kind is the status a transaction callback is invoked with.
type Kind int

const (
	// KindOK indicates the transaction completed and the buffer is valid.
	KindOK Kind = iota
	// KindUndetermined is used before any ack/nack has been observed.
	KindUndetermined
	// KindMaxQueueingReached means the queue overflowed; every pending
	// callback (including the one that triggered the overflow) receives
	// this kind and both queue halves are flushed.
	KindMaxQueueingReached
	// KindTimeoutReached is returned only by Wait.
	KindTimeoutReached
	// KindUnknown covers bus NACK or arbitration loss.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindUndetermined:
		return "UNDETERMINED"
	case KindMaxQueueingReached:
		return "MAX_QUEUEING_REACHED"
	case KindTimeoutReached:
		return "TIMEOUT_REACHED"
	case KindUnknown:
		return "UNKNOWN"
	default:
		return "INVALID_KIND"
	}
}

// direction of a transaction.
type direction int

const (
	dirRead direction = iota
	dirWrite
	dirReadModifyWrite
)

// kind of transaction target.
type txType int

const (
	typeRegister txType = iota
	typeRaw
)

// state is one step of the transaction FSM.
type state int

const (
	stateIdle state = iota
	stateWriteNext
	stateWriteFinal
	stateReadOne
	stateReadFirst
	stateReadNext
	stateReadFinal
	stateReadWait
)
