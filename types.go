package cfdp

import (
	"fmt"

	"github.com/opd-ai/cfdp/clist"
	"github.com/opd-ai/cfdp/pdu"
)

// TxnState is the high-level state of a transaction slot.
type TxnState uint8

const (
	// TxnUndefined marks an unused slot on the free queue.
	TxnUndefined TxnState = iota
	// TxnInit marks a freshly allocated transaction whose role is not yet
	// determined.
	TxnInit
	// TxnR1 receives a file in unacknowledged (class 1) mode.
	TxnR1
	// TxnS1 sends a file in unacknowledged (class 1) mode.
	TxnS1
	// TxnR2 receives a file in acknowledged (class 2) mode.
	TxnR2
	// TxnS2 sends a file in acknowledged (class 2) mode.
	TxnS2
	// TxnDrop discards all further PDUs until the slot is reclaimed.
	TxnDrop
	// TxnHold suspends processing pending a resume directive.
	TxnHold

	txnStateCount
)

// String returns the state name for logging.
func (s TxnState) String() string {
	switch s {
	case TxnUndefined:
		return "UNDEFINED"
	case TxnInit:
		return "INIT"
	case TxnR1:
		return "R1"
	case TxnS1:
		return "S1"
	case TxnR2:
		return "R2"
	case TxnS2:
		return "S2"
	case TxnDrop:
		return "DROP"
	case TxnHold:
		return "HOLD"
	}
	return fmt.Sprintf("TxnState(%d)", uint8(s))
}

// Direction distinguishes send and receive transactions and their history
// entries.
type Direction uint8

const (
	// DirectionRx marks an inbound transfer.
	DirectionRx Direction = iota
	// DirectionTx marks an outbound transfer.
	DirectionTx

	directionCount
)

// String returns the direction name for logging.
func (d Direction) String() string {
	if d == DirectionTx {
		return "TX"
	}
	return "RX"
}

// QueueID names one of a channel's bounded queues. A transaction or history
// record is on exactly one queue at any time.
type QueueID uint8

const (
	// QueuePend holds allocated outbound transactions awaiting activation,
	// in descending priority order.
	QueuePend QueueID = iota
	// QueueTxActive holds the outbound transactions currently emitting file
	// data.
	QueueTxActive
	// QueueTxWait holds outbound transactions awaiting closure traffic.
	QueueTxWait
	// QueueRx holds inbound transactions.
	QueueRx
	// QueueHistory holds retained identity records of finished transfers,
	// oldest first.
	QueueHistory
	// QueueHistoryFree holds unused history records.
	QueueHistoryFree
	// QueueFree holds unused transaction slots.
	QueueFree

	queueCount

	// queueNone marks a transaction transiently off every queue, between a
	// remove and the insert that follows it.
	queueNone
)

// String returns the queue name for logging.
func (q QueueID) String() string {
	switch q {
	case QueuePend:
		return "PEND"
	case QueueTxActive:
		return "TXA"
	case QueueTxWait:
		return "TXW"
	case QueueRx:
		return "RX"
	case QueueHistory:
		return "HIST"
	case QueueHistoryFree:
		return "HIST_FREE"
	case QueueFree:
		return "FREE"
	}
	return fmt.Sprintf("QueueID(%d)", uint8(q))
}

// TransactionID is the protocol-wide identity of a transfer: the entity that
// originated it and its sequence number at that entity.
type TransactionID struct {
	Source pdu.EntityID
	Seq    pdu.TransactionSeq
}

// String formats the identity as source:sequence.
func (id TransactionID) String() string {
	return fmt.Sprintf("%d:%d", id.Source, id.Seq)
}

// History is the compact retained identity of an in-flight or finished
// transfer. It outlives its Transaction slot so that duplicate and identity
// queries keep answering after the slot is recycled.
type History struct {
	node clist.Node[*History]

	// Source is the entity that originated the transaction.
	Source pdu.EntityID
	// Peer is the remote partner; for inbound transfers it equals Source.
	Peer pdu.EntityID
	// Seq is the transaction sequence number, constant for the transfer.
	Seq pdu.TransactionSeq
	// Dir records whether this entry describes a send or a receive.
	Dir Direction
	// Status is the transaction status, frozen at finalization.
	Status TxnStatus
	// SourcePath and DestPath name the transferred file at each end.
	SourcePath string
	DestPath   string
}

// ID returns the protocol identity recorded in this entry.
func (h *History) ID() TransactionID {
	return TransactionID{Source: h.Source, Seq: h.Seq}
}

func (h *History) clear() {
	h.Source = 0
	h.Peer = 0
	h.Seq = 0
	h.Dir = DirectionRx
	h.Status = StatusUndefined
	h.SourcePath = ""
	h.DestPath = ""
}
