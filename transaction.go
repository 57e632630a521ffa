package cfdp

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/cfdp/clist"
	"github.com/opd-ai/cfdp/pdu"
)

// txnPhase is the sub-state within an active transaction state. The
// high-level TxnState selects direction and class; the phase tracks where in
// the protocol exchange the transaction currently is.
type txnPhase uint8

const (
	phaseIdle txnPhase = iota

	// send side
	phaseSendMetadata
	phaseSendFileData
	phaseSendEOF
	phaseWaitEOFAck
	phaseWaitFin

	// receive side
	phaseRecvFileData
	phaseSendFin
)

// Transaction is one file transfer in flight. Slots are pooled per channel;
// a slot is logically created when pulled off the free queue and destroyed
// when cleared and pushed back.
//
// A transaction is on exactly one queue at any time, recorded in qIndex. Its
// protocol identity lives in the History record it holds a reference to; the
// record outlives the slot.
type Transaction struct {
	node clist.Node[*Transaction]

	ch      *Channel
	state   TxnState
	phase   txnPhase
	qIndex  QueueID
	history *History

	priority uint8
	status   TxnStatus

	// file being transferred
	file     File
	fileOpen bool
	fsize    pdu.FileSize
	progress pdu.FileSize
	crc      pdu.Checksum

	// timers and retry accounting
	ackTimer   Timer
	nakTimer   Timer
	inactTimer Timer
	ackCount   uint8
	nakCount   uint8

	// receive-side record of the peer's EOF
	eofRecv     bool
	eofChecksum uint32
	eofSize     pdu.FileSize

	mdRecv   bool
	mdResend bool
	canceled bool

	// savedState restores the pre-suspension state on resume.
	savedState TxnState

	// tickSeen holds the channel tick generation this transaction was last
	// ticked in.
	tickSeen uint32

	// chunks tracks received ranges on the receive side and NAK-requested
	// retransmit ranges on the send side. Borrowed from the channel pool
	// for class 2 transactions only.
	chunks *ChunkWrapper
}

// ID returns the transaction's protocol identity.
func (t *Transaction) ID() TransactionID { return t.history.ID() }

// State returns the transaction's current high-level state.
func (t *Transaction) State() TxnState { return t.state }

// Priority returns the transaction's scheduling priority.
func (t *Transaction) Priority() uint8 { return t.priority }

// Status returns the transaction's extended status.
func (t *Transaction) Status() TxnStatus { return t.status }

// reset clears all per-transfer fields, preserving the channel back-reference
// and the list node. The history reference is dropped; the record stays on
// the channel's history queue.
func (t *Transaction) reset() {
	t.state = TxnUndefined
	t.phase = phaseIdle
	t.history = nil
	t.priority = 0
	t.status = StatusUndefined
	t.file = nil
	t.fileOpen = false
	t.fsize = 0
	t.progress = 0
	t.ackTimer.Disable()
	t.nakTimer.Disable()
	t.inactTimer.Disable()
	t.ackCount = 0
	t.nakCount = 0
	t.eofRecv = false
	t.eofChecksum = 0
	t.eofSize = 0
	t.mdRecv = false
	t.mdResend = false
	t.canceled = false
	t.savedState = TxnUndefined
	t.tickSeen = 0
	t.chunks = nil
}

// isSender reports whether this transaction sends the file.
func (t *Transaction) isSender() bool {
	return t.state == TxnS1 || t.state == TxnS2
}

// isAcknowledged reports whether this transaction runs in class 2.
func (t *Transaction) isAcknowledged() bool {
	return t.state == TxnS2 || t.state == TxnR2
}

// setStatus records a result, first error wins. Later errors never overwrite
// an earlier one so the root cause survives cascading failures.
func (t *Transaction) setStatus(s TxnStatus) {
	if t.status.IsError() {
		return
	}
	t.status = s
}

// armAckTimer starts the acknowledgement countdown.
func (t *Transaction) armAckTimer() {
	t.ackTimer.Set(t.ch.cfg.AckTimerTicks)
}

// armNakTimer starts the gap re-request countdown.
func (t *Transaction) armNakTimer() {
	t.nakTimer.Set(t.ch.cfg.NakTimerTicks)
}

// armInactTimer starts the peer-liveness countdown. When no inactivity
// interval is configured, twice the ack interval stands in so a quiet peer
// is still detected.
func (t *Transaction) armInactTimer() {
	ticks := t.ch.cfg.InactivityTimerTicks
	if ticks == 0 {
		ticks = 2 * t.ch.cfg.AckTimerTicks
	}
	t.inactTimer.Set(ticks)
}

// dispatch routes an inbound PDU to the state machine. Transactions in
// terminal or held states swallow traffic silently; a held transaction's
// peer keeps retransmitting and everything it sends will be re-requested
// after resume.
func (t *Transaction) dispatch(p *pdu.PDU) {
	switch t.state {
	case TxnS1, TxnS2:
		t.txRecv(p)
	case TxnR1, TxnR2:
		t.rxRecv(p)
	case TxnDrop, TxnHold:
		// drop silently
	default:
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"txn":      t.ID().String(),
			"state":    t.state.String(),
		}).Warn("PDU for transaction in inactive state")
	}
}

// tick advances the transaction's timers and performs any deferred protocol
// work that fits in the channel's remaining outgoing budget.
func (t *Transaction) tick() {
	switch t.state {
	case TxnS1, TxnS2:
		t.txTick()
	case TxnR1, TxnR2:
		t.rxTick()
	case TxnDrop:
		// linger until the peer goes quiet, then reclaim the slot
		t.inactTimer.Tick()
		if t.inactTimer.Status() == TimerExpired {
			t.finish()
		}
	case TxnHold:
		// timers frozen while suspended
	}
}

// cancel requests cooperative teardown. The status is recorded immediately;
// the protocol-level goodbye happens on the next dispatch or tick.
func (t *Transaction) cancel() {
	if t.canceled {
		return
	}
	t.canceled = true
	t.setStatus(StatusCancelRequestReceived)
	logrus.WithFields(logrus.Fields{
		"function": "cancel",
		"txn":      t.ID().String(),
		"state":    t.state.String(),
		"status":   t.status.String(),
	}).Info("Transaction cancellation requested")
}

// suspend parks the transaction in the hold state. Timers stop; inbound
// PDUs are dropped until resume.
func (t *Transaction) suspend() {
	if t.state == TxnHold {
		return
	}
	t.savedState = t.state
	t.state = TxnHold
}

// resume returns a held transaction to its saved state and restarts
// liveness tracking.
func (t *Transaction) resume() {
	if t.state != TxnHold {
		return
	}
	t.state = t.savedState
	t.savedState = TxnUndefined
	t.armInactTimer()
}

// finish freezes the result into the history record, reports it, tears down
// file state, and returns the slot to the free pool.
func (t *Transaction) finish() {
	if t.status == StatusUndefined {
		t.status = StatusNoError
	}
	h := t.history
	h.Status = t.status

	if t.fileOpen {
		if err := t.file.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "finish",
				"txn":      t.ID().String(),
				"error":    err.Error(),
			}).Warn("Closing transfer file failed")
		}
		t.fileOpen = false
		// an incomplete inbound file is not worth keeping
		if !t.isSender() && t.status.IsError() {
			if err := t.ch.eng.deps.Filestore.Remove(h.DestPath); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "finish",
					"txn":      t.ID().String(),
					"path":     h.DestPath,
					"error":    err.Error(),
				}).Warn("Removing partial file failed")
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "finish",
		"channel":  t.ch.id,
		"txn":      t.ID().String(),
		"dir":      h.Dir.String(),
		"status":   t.status.String(),
	}).Info("Transaction finished")

	t.ch.eng.deps.Events.TransactionFinished(t.ch.id, t.ID(), t.status)
	t.ch.releaseTransaction(t)
}
