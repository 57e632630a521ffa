package cfdp

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/cfdp/clist"
	"github.com/opd-ai/cfdp/pdu"
)

// Channel owns one link's share of the engine's resources: the transaction
// and history pools, the seven bounded queues, the class 2 gap trackers, and
// the per-tick outgoing PDU budget. All storage is allocated in newChannel
// and reused for the life of the engine.
type Channel struct {
	eng *Engine
	id  uint8
	cfg ChannelConfig

	// transaction queues, indexed by QueueID; the two history slots stay
	// zero-valued and unused since history records link through their own
	// lists below
	txnQueues [queueCount]clist.List[*Transaction]

	hist     clist.List[*History]
	histFree clist.List[*History]

	txns      []Transaction
	histories []History

	chunkPool []ChunkWrapper
	chunkFree clist.List[*ChunkWrapper]

	// fdBuf is the scratch buffer file data is read into before it rides an
	// outbound PDU. The output collaborator consumes it synchronously.
	fdBuf []byte

	// nakSegs is the scratch backing for outbound NAK segment lists.
	nakSegs []pdu.SegmentRequest

	// outgoing counts PDUs emitted since the current tick began.
	outgoing uint32

	// tickGen identifies the current tick sweep. Transactions stamp it when
	// visited so a mid-sweep requeue cannot earn a second visit.
	tickGen uint32

	// frozen stops outbound transmission while inbound processing and
	// timers continue.
	frozen bool

	nextSeq pdu.TransactionSeq
}

// newChannel builds a channel and stocks its pools. Every slot starts on the
// matching free queue.
func newChannel(eng *Engine, id uint8, cfg ChannelConfig) *Channel {
	c := &Channel{
		eng:       eng,
		id:        id,
		cfg:       cfg,
		txns:      make([]Transaction, cfg.TransactionsPerChannel),
		histories: make([]History, cfg.HistoriesPerChannel),
		chunkPool: make([]ChunkWrapper, cfg.TransactionsPerChannel),
		fdBuf:     make([]byte, cfg.OutgoingChunkSize),
		nakSegs:   make([]pdu.SegmentRequest, 0, cfg.NakMaxSegments),
	}
	for i := range c.txns {
		t := &c.txns[i]
		t.ch = c
		t.node.Init()
		t.node.Value = t
		t.reset()
		t.qIndex = QueueFree
		c.txnQueues[QueueFree].PushBack(&t.node)
	}
	for i := range c.histories {
		h := &c.histories[i]
		h.node.Init()
		h.node.Value = h
		h.clear()
		c.histFree.PushBack(&h.node)
	}
	for i := range c.chunkPool {
		w := &c.chunkPool[i]
		w.node.Init()
		w.node.Value = w
		w.chunks = NewChunkList(cfg.ChunksPerTransaction)
		c.chunkFree.PushBack(&w.node)
	}
	return c
}

// queue returns the named transaction queue. History queues hold a different
// node type and are reached through their own fields; asking for one here is
// a programming error.
func (c *Channel) queue(q QueueID) *clist.List[*Transaction] {
	if q == QueueHistory || q == QueueHistoryFree || q >= queueCount {
		panic("cfdp: queue index does not name a transaction queue")
	}
	return &c.txnQueues[q]
}

// acquireTransaction pulls a free slot and pairs it with a history record.
// It returns nil when the transaction pool is empty; the caller treats that
// as backpressure. History exhaustion never blocks acquisition: the single
// oldest retained record is evicted instead.
func (c *Channel) acquireTransaction(dir Direction) *Transaction {
	n := c.queue(QueueFree).Pop()
	if n == nil {
		c.eng.deps.Events.QueueOverflow(c.id, QueueFree)
		return nil
	}
	t := n.Value

	var h *History
	if hn := c.histFree.Pop(); hn != nil {
		h = hn.Value
	} else {
		// oldest record is at the front, insertion order
		hn := c.hist.Pop()
		if hn == nil {
			panic("cfdp: history pool has no free and no retained records")
		}
		h = hn.Value
	}
	h.clear()
	h.Dir = dir
	c.hist.PushBack(&h.node)

	t.reset()
	t.state = TxnInit
	t.history = h
	t.qIndex = queueNone // the caller's first insert records membership
	return t
}

// releaseTransaction clears a slot and returns it to the free queue. The
// history record is untouched; it stays retained until evicted or reset.
func (c *Channel) releaseTransaction(t *Transaction) {
	if t.qIndex != queueNone {
		c.queue(t.qIndex).Remove(&t.node)
	}
	if t.chunks != nil {
		t.chunks.chunks.Reset()
		c.chunkFree.PushBack(&t.chunks.node)
	}
	t.reset()
	t.qIndex = QueueFree
	c.queue(QueueFree).PushBack(&t.node)
}

// resetHistory moves one retained record back to the free pool.
func (c *Channel) resetHistory(h *History) {
	c.hist.Remove(&h.node)
	h.clear()
	c.histFree.PushBack(&h.node)
}

// acquireChunks borrows a gap tracker from the pool. The pool is sized to
// the transaction pool, so this cannot fail while the caller holds a slot.
func (c *Channel) acquireChunks() *ChunkWrapper {
	n := c.chunkFree.Pop()
	if n == nil {
		panic("cfdp: chunk pool exhausted with transaction slots outstanding")
	}
	n.Value.chunks.Reset()
	return n.Value
}

// moveTransaction migrates a transaction to another queue, appending at the
// back. The queue-index flag always tracks actual membership.
func (c *Channel) moveTransaction(t *Transaction, to QueueID) {
	if t.qIndex != queueNone {
		c.queue(t.qIndex).Remove(&t.node)
	}
	c.queue(to).PushBack(&t.node)
	t.qIndex = to
}

// insertByPriority places t on the named queue keeping descending priority
// order with FIFO tie-break: scanning from the back, t lands right after the
// first member whose priority is at least t's, so equal priorities preserve
// arrival order. An empty queue or a uniformly lower-priority queue puts t
// at the front.
func (c *Channel) insertByPriority(t *Transaction, to QueueID) {
	if t.qIndex != queueNone {
		c.queue(t.qIndex).Remove(&t.node)
	}
	list := c.queue(to)
	var after *clist.Node[*Transaction]
	list.TraverseReverse(func(n *clist.Node[*Transaction]) clist.TraverseStatus {
		if n.Value.priority >= t.priority {
			after = n
			return clist.Exit
		}
		return clist.Continue
	})
	if after != nil {
		list.InsertAfter(after, &t.node)
	} else {
		list.PushFront(&t.node)
	}
	t.qIndex = to
}

// findBySequence locates an active transaction by its protocol identity. The
// scan order favors the common case of inbound file data: Rx first, then
// Pend, TxActive, TxWait.
func (c *Channel) findBySequence(src pdu.EntityID, seq pdu.TransactionSeq) *Transaction {
	var found *Transaction
	for _, q := range [...]QueueID{QueueRx, QueuePend, QueueTxActive, QueueTxWait} {
		c.queue(q).Traverse(func(n *clist.Node[*Transaction]) clist.TraverseStatus {
			h := n.Value.history
			if h.Source == src && h.Seq == seq {
				found = n.Value
				return clist.Exit
			}
			return clist.Continue
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// findHistory answers identity queries for transfers whose slot may already
// be recycled.
func (c *Channel) findHistory(src pdu.EntityID, seq pdu.TransactionSeq) *History {
	var found *History
	c.hist.Traverse(func(n *clist.Node[*History]) clist.TraverseStatus {
		if n.Value.Source == src && n.Value.Seq == seq {
			found = n.Value
			return clist.Exit
		}
		return clist.Continue
	})
	return found
}

// traverseAllTransactions visits every transaction on the Pend, TxActive,
// TxWait, and Rx queues and returns the visit count. The visitor may
// reschedule the visited transaction; the underlying walk tolerates removal
// of the current node.
func (c *Channel) traverseAllTransactions(fn func(*Transaction) clist.TraverseStatus) int {
	count := 0
	stopped := false
	for _, q := range [...]QueueID{QueuePend, QueueTxActive, QueueTxWait, QueueRx} {
		c.queue(q).Traverse(func(n *clist.Node[*Transaction]) clist.TraverseStatus {
			count++
			if fn(n.Value) != clist.Continue {
				stopped = true
				return clist.Exit
			}
			return clist.Continue
		})
		if stopped {
			break
		}
	}
	return count
}

// reserveOutgoing claims one slot of the per-tick transmission budget.
func (c *Channel) reserveOutgoing() bool {
	if c.frozen || c.outgoing >= c.cfg.MaxOutgoingPDUs {
		return false
	}
	c.outgoing++
	return true
}

// sendPDU hands one outbound PDU to the link output. A send failure is
// logged and reported to the caller; the protocol machinery treats it like a
// lost PDU and relies on its normal retransmission path.
func (c *Channel) sendPDU(p *pdu.PDU) error {
	err := c.eng.deps.Output.SendPDU(c.id, p)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendPDU",
			"channel":  c.id,
			"error":    err.Error(),
		}).Warn("Outbound PDU send failed")
	}
	return err
}

// tickOnce runs one engine tick on this channel: timers and deferred work
// first, then file data pacing for the active outbound transaction.
func (c *Channel) tickOnce() {
	c.outgoing = 0
	c.tickGen++

	c.traverseAllTransactions(func(t *Transaction) clist.TraverseStatus {
		// a transaction that moved to a later queue mid-sweep has already
		// had its timers run this tick
		if t.tickSeen == c.tickGen {
			return clist.Continue
		}
		t.tickSeen = c.tickGen
		t.tick()
		return clist.Continue
	})

	// promote a pending transaction when nothing is actively sending
	if c.queue(QueueTxActive).Empty() {
		if n := c.queue(QueuePend).Pop(); n != nil {
			t := n.Value
			t.qIndex = queueNone
			c.moveTransaction(t, QueueTxActive)
		}
	}

	if n := c.queue(QueueTxActive).Front(); n != nil {
		n.Value.txCycle()
	}
}

// countPooled sums transaction counts across all transaction queues, for
// accounting and tests.
func (c *Channel) countPooled() int {
	total := 0
	for _, q := range [...]QueueID{QueuePend, QueueTxActive, QueueTxWait, QueueRx, QueueFree} {
		total += c.queue(q).Len()
	}
	return total
}
