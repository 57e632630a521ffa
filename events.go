package cfdp

import "github.com/opd-ai/cfdp/pdu"

// EventSink receives notifications about transaction lifecycle and resource
// pressure. Implementations must not call back into the engine and must not
// block; callbacks run on the engine's tick or receive path.
type EventSink interface {
	// TransactionStarted fires when a transaction begins, for both
	// directions.
	TransactionStarted(channelID uint8, id TransactionID, dir Direction)

	// TransactionFinished fires when a transaction reaches its final
	// disposition, successful or not.
	TransactionFinished(channelID uint8, id TransactionID, status TxnStatus)

	// QueueOverflow fires when a PDU or request is dropped because a pool
	// or queue had no room.
	QueueOverflow(channelID uint8, q QueueID)

	// TimerLimitExceeded fires when a transaction exhausts its ack or nak
	// retry budget.
	TimerLimitExceeded(channelID uint8, id TransactionID, status TxnStatus)

	// PDUDropped fires when an inbound PDU is discarded before reaching a
	// transaction. The reason is a short fixed description, suitable for
	// counting or logging.
	PDUDropped(channelID uint8, source pdu.EntityID, seq pdu.TransactionSeq, reason string)
}

// NopEventSink discards all events. It is the default when no sink is
// supplied.
type NopEventSink struct{}

func (NopEventSink) TransactionStarted(uint8, TransactionID, Direction)         {}
func (NopEventSink) TransactionFinished(uint8, TransactionID, TxnStatus)        {}
func (NopEventSink) QueueOverflow(uint8, QueueID)                               {}
func (NopEventSink) TimerLimitExceeded(uint8, TransactionID, TxnStatus)         {}
func (NopEventSink) PDUDropped(uint8, pdu.EntityID, pdu.TransactionSeq, string) {}
