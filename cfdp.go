package cfdp

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/cfdp/clist"
	"github.com/opd-ai/cfdp/pdu"
)

// Engine API errors.
var (
	ErrUnknownChannel     = errors.New("cfdp: channel index out of configured range")
	ErrUnknownTransaction = errors.New("cfdp: no such transaction")
	ErrNoFreeTransactions = errors.New("cfdp: transaction pool exhausted")
	ErrMissingOutput      = errors.New("cfdp: no PDU output configured")
	ErrMissingFilestore   = errors.New("cfdp: no filestore configured")
	ErrEmptyPath          = errors.New("cfdp: put request with empty file path")
	ErrNotAddressedHere   = errors.New("cfdp: PDU not addressed to this entity")
)

// PDUOutput carries outbound PDUs to the link. The engine calls it
// synchronously from Tick and ReceivePDU; implementations serialize and
// transmit, or queue, and must not call back into the engine.
type PDUOutput interface {
	SendPDU(channelID uint8, p *pdu.PDU) error
}

// Deps are the engine's external collaborators. Output and Filestore are
// required; a nil Events defaults to NopEventSink.
type Deps struct {
	Output    PDUOutput
	Filestore Filestore
	Events    EventSink
}

// PutRequest starts an outbound file transfer.
type PutRequest struct {
	ChannelID  uint8
	DestEntity pdu.EntityID
	SourcePath string
	DestPath   string
	Mode       pdu.TransmissionMode
	Priority   uint8
	// Checksum selects the file checksum algorithm; the zero value is the
	// standard modular checksum.
	Checksum pdu.ChecksumType
}

// Engine is a CFDP transaction-management core. All resources are allocated
// in New; Tick and ReceivePDU never allocate transactions or histories.
//
// The caller must serialize every method: the engine expects run-to-
// completion dispatch on a single logical thread and holds no locks.
type Engine struct {
	cfg      Config
	deps     Deps
	channels []*Channel
}

// New builds an engine from a validated configuration and its
// collaborators.
func New(cfg *Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Output == nil {
		return nil, ErrMissingOutput
	}
	if deps.Filestore == nil {
		return nil, ErrMissingFilestore
	}
	if deps.Events == nil {
		deps.Events = NopEventSink{}
	}

	e := &Engine{
		cfg:      *cfg,
		deps:     deps,
		channels: make([]*Channel, len(cfg.Channels)),
	}
	for i := range cfg.Channels {
		e.channels[i] = newChannel(e, uint8(i), cfg.Channels[i])
	}

	logrus.WithFields(logrus.Fields{
		"function":  "New",
		"entity_id": cfg.LocalEntityID,
		"channels":  len(cfg.Channels),
	}).Info("CFDP engine created")
	return e, nil
}

// channel is the bound-checked lookup behind every public entry point.
// Channel indices can originate outside the process, so the check runs on
// every call.
func (e *Engine) channel(id uint8) (*Channel, error) {
	if int(id) >= len(e.channels) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	return e.channels[id], nil
}

// findTransaction resolves an active transaction by identity on one channel.
func (e *Engine) findTransaction(channelID uint8, id TransactionID) (*Transaction, error) {
	ch, err := e.channel(channelID)
	if err != nil {
		return nil, err
	}
	t := ch.findBySequence(id.Source, id.Seq)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	return t, nil
}

// Tick advances the engine by the given number of ticks. Each tick runs
// timers and deferred protocol work on every channel, then paces file data
// for the active outbound transaction, all within each channel's outgoing
// PDU budget.
func (e *Engine) Tick(ticks uint32) {
	for ; ticks > 0; ticks-- {
		for _, ch := range e.channels {
			ch.tickOnce()
		}
	}
}

// ReceivePDU dispatches one inbound PDU on a channel. A PDU for an unknown
// transaction starts a new receive when it is addressed to this entity;
// anything else is dropped and reported, never a fault.
func (e *Engine) ReceivePDU(channelID uint8, p *pdu.PDU) error {
	ch, err := e.channel(channelID)
	if err != nil {
		return err
	}

	if t := ch.findBySequence(p.Header.Source, p.Header.Sequence); t != nil {
		t.dispatch(p)
		return nil
	}

	// closeout traffic for a transaction we already released
	if p.Header.Source == e.cfg.LocalEntityID {
		e.dropPDU(ch, p, "transaction already closed")
		return nil
	}
	if p.Header.Dest != e.cfg.LocalEntityID {
		e.dropPDU(ch, p, "not addressed to this entity")
		return ErrNotAddressedHere
	}
	if h := ch.findHistory(p.Header.Source, p.Header.Sequence); h != nil {
		e.dropPDU(ch, p, "late traffic for finished transaction")
		return nil
	}

	t := ch.acquireTransaction(DirectionRx)
	if t == nil {
		e.dropPDU(ch, p, "transaction pool exhausted")
		return ErrNoFreeTransactions
	}
	t.initRecv(&p.Header)
	ch.moveTransaction(t, QueueRx)
	e.deps.Events.TransactionStarted(ch.id, t.ID(), DirectionRx)
	t.dispatch(p)
	return nil
}

// ReceiveRaw decodes one encoded PDU and dispatches it. Frames that do not
// decode are dropped with the decode error; a malformed peer cannot fault
// the engine.
func (e *Engine) ReceiveRaw(channelID uint8, raw []byte) error {
	var p pdu.PDU
	if err := pdu.Decode(raw, &p); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ReceiveRaw",
			"channel":  channelID,
			"error":    err,
		}).Debug("Undecodable PDU dropped")
		return err
	}
	return e.ReceivePDU(channelID, &p)
}

func (e *Engine) dropPDU(ch *Channel, p *pdu.PDU, reason string) {
	logrus.WithFields(logrus.Fields{
		"function": "dropPDU",
		"channel":  ch.id,
		"source":   p.Header.Source,
		"seq":      p.Header.Sequence,
		"reason":   reason,
	}).Debug("Inbound PDU dropped")
	e.deps.Events.PDUDropped(ch.id, p.Header.Source, p.Header.Sequence, reason)
}

// Put starts an outbound transfer. It fails synchronously with
// ErrNoFreeTransactions when the channel's pool is empty; nothing about
// running transactions is affected.
func (e *Engine) Put(req PutRequest) (TransactionID, error) {
	ch, err := e.channel(req.ChannelID)
	if err != nil {
		return TransactionID{}, err
	}
	if req.SourcePath == "" || req.DestPath == "" {
		return TransactionID{}, ErrEmptyPath
	}
	if !pdu.Supported(req.Checksum) {
		return TransactionID{}, fmt.Errorf("cfdp: unsupported checksum type %d", req.Checksum)
	}

	t := ch.acquireTransaction(DirectionTx)
	if t == nil {
		return TransactionID{}, ErrNoFreeTransactions
	}
	seq := ch.nextSeq
	ch.nextSeq++
	t.initSend(req, seq)
	ch.insertByPriority(t, QueuePend)
	e.deps.Events.TransactionStarted(ch.id, t.ID(), DirectionTx)
	return t.ID(), nil
}

// Cancel requests cooperative teardown of one transaction. The protocol
// goodbye happens on the transaction's next tick.
func (e *Engine) Cancel(channelID uint8, id TransactionID) error {
	t, err := e.findTransaction(channelID, id)
	if err != nil {
		return err
	}
	t.cancel()
	return nil
}

// CancelAll cancels every active transaction on a channel and returns how
// many were affected.
func (e *Engine) CancelAll(channelID uint8) (int, error) {
	ch, err := e.channel(channelID)
	if err != nil {
		return 0, err
	}
	n := ch.traverseAllTransactions(func(t *Transaction) clist.TraverseStatus {
		t.cancel()
		return clist.Continue
	})
	return n, nil
}

// Suspend parks a transaction: timers freeze and inbound PDUs are dropped
// until Resume.
func (e *Engine) Suspend(channelID uint8, id TransactionID) error {
	t, err := e.findTransaction(channelID, id)
	if err != nil {
		return err
	}
	t.suspend()
	return nil
}

// Resume returns a suspended transaction to its previous state.
func (e *Engine) Resume(channelID uint8, id TransactionID) error {
	t, err := e.findTransaction(channelID, id)
	if err != nil {
		return err
	}
	t.resume()
	return nil
}

// SetPriority changes a transaction's scheduling priority. A transaction
// still waiting on the pending queue is re-sorted immediately; one already
// past activation keeps its position but reports the new priority.
func (e *Engine) SetPriority(channelID uint8, id TransactionID, priority uint8) error {
	t, err := e.findTransaction(channelID, id)
	if err != nil {
		return err
	}
	t.priority = priority
	if t.qIndex == QueuePend {
		ch := e.channels[channelID]
		ch.insertByPriority(t, QueuePend)
	}
	return nil
}

// Freeze stops outbound transmission on a channel. Inbound processing and
// timers continue; a long freeze will run transactions into their timer
// limits.
func (e *Engine) Freeze(channelID uint8) error {
	ch, err := e.channel(channelID)
	if err != nil {
		return err
	}
	ch.frozen = true
	return nil
}

// Thaw re-enables outbound transmission on a frozen channel.
func (e *Engine) Thaw(channelID uint8) error {
	ch, err := e.channel(channelID)
	if err != nil {
		return err
	}
	ch.frozen = false
	return nil
}

// TraverseAllTransactions visits every active transaction on one channel
// and returns the visit count. The visitor may cancel or reschedule the
// transaction it is handed.
func (e *Engine) TraverseAllTransactions(channelID uint8, fn func(*Transaction) clist.TraverseStatus) (int, error) {
	ch, err := e.channel(channelID)
	if err != nil {
		return 0, err
	}
	return ch.traverseAllTransactions(fn), nil
}

// TraverseAllTransactionsAllChannels fans the traversal out across every
// channel and sums the counts.
func (e *Engine) TraverseAllTransactionsAllChannels(fn func(*Transaction) clist.TraverseStatus) int {
	total := 0
	for _, ch := range e.channels {
		total += ch.traverseAllTransactions(fn)
	}
	return total
}

// ResetHistory returns every retained record of finished transfers on a
// channel to the free pool. Records of transactions still in flight are
// kept.
func (e *Engine) ResetHistory(channelID uint8) error {
	ch, err := e.channel(channelID)
	if err != nil {
		return err
	}
	// the walk tolerates removal of the node it is visiting
	ch.hist.Traverse(func(n *clist.Node[*History]) clist.TraverseStatus {
		if ch.findBySequence(n.Value.Source, n.Value.Seq) == nil {
			ch.resetHistory(n.Value)
		}
		return clist.Continue
	})
	return nil
}

// LookupHistory answers identity queries for finished or in-flight
// transfers. It returns a copy; the underlying record may be recycled at
// any time.
func (e *Engine) LookupHistory(channelID uint8, id TransactionID) (History, bool, error) {
	ch, err := e.channel(channelID)
	if err != nil {
		return History{}, false, err
	}
	h := ch.findHistory(id.Source, id.Seq)
	if h == nil {
		return History{}, false, nil
	}
	cp := *h
	cp.node = clist.Node[*History]{}
	return cp, true, nil
}
