package cfdp

// TimerStatus is the lifecycle state of a countdown timer.
type TimerStatus uint8

const (
	// TimerUninitialized means the timer has never been set or was disabled.
	TimerUninitialized TimerStatus = iota
	// TimerRunning means the timer is counting down.
	TimerRunning
	// TimerExpired means the countdown reached zero.
	TimerExpired
)

// Timer is a tick-counted countdown. The engine has no notion of wall-clock
// time; a timer only advances when Tick is called from the engine's periodic
// entry point, which keeps timeout behavior deterministic under test and
// under scheduler jitter.
type Timer struct {
	status    TimerStatus
	remaining uint32
}

// Set starts the timer with the given number of ticks remaining. Setting a
// zero duration expires the timer on the next Tick's observation, by way of
// expiring immediately.
func (t *Timer) Set(ticks uint32) {
	if ticks == 0 {
		t.status = TimerExpired
		t.remaining = 0
		return
	}
	t.status = TimerRunning
	t.remaining = ticks
}

// Disable stops the timer without expiring it.
func (t *Timer) Disable() {
	t.status = TimerUninitialized
	t.remaining = 0
}

// Status returns the timer's current lifecycle state.
func (t *Timer) Status() TimerStatus { return t.status }

// Tick advances a running timer by one tick, expiring it at zero. Ticking a
// stopped or expired timer does nothing.
func (t *Timer) Tick() {
	if t.status != TimerRunning {
		return
	}
	if t.remaining == 0 {
		panic("cfdp: running timer with zero ticks remaining")
	}
	t.remaining--
	if t.remaining == 0 {
		t.status = TimerExpired
	}
}
