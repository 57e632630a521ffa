package cfdp

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/cfdp/pdu"
)

// initSend configures a freshly acquired slot as the sender of req. The
// caller has already validated the request and reserved the sequence number.
func (t *Transaction) initSend(req PutRequest, seq pdu.TransactionSeq) {
	h := t.history
	h.Source = t.ch.eng.cfg.LocalEntityID
	h.Peer = req.DestEntity
	h.Seq = seq
	h.SourcePath = req.SourcePath
	h.DestPath = req.DestPath

	t.priority = req.Priority
	t.crc = pdu.NewChecksum(req.Checksum)
	if req.Mode == pdu.ModeAcknowledged {
		t.state = TxnS2
		t.chunks = t.ch.acquireChunks()
	} else {
		t.state = TxnS1
	}
	t.phase = phaseSendMetadata

	logrus.WithFields(logrus.Fields{
		"function": "initSend",
		"channel":  t.ch.id,
		"txn":      t.ID().String(),
		"state":    t.state.String(),
		"priority": t.priority,
		"src_path": req.SourcePath,
	}).Info("Outbound transaction initialized")
}

// header builds the fixed PDU header for this transaction's outbound
// traffic. Senders emit toward the file receiver, receivers toward the file
// sender; the source entity and sequence number identify the transaction in
// both directions.
func (t *Transaction) header(ptype pdu.Type) pdu.Header {
	h := t.history
	hdr := pdu.Header{
		Version:  1,
		Type:     ptype,
		Source:   h.Source,
		Sequence: h.Seq,
	}
	if t.isAcknowledged() {
		hdr.Mode = pdu.ModeAcknowledged
	} else {
		hdr.Mode = pdu.ModeUnacknowledged
	}
	if t.isSender() {
		hdr.Direction = 0
		hdr.Dest = h.Peer
	} else {
		hdr.Direction = 1
		hdr.Dest = t.ch.eng.cfg.LocalEntityID
	}
	return hdr
}

// openSource opens the file to be sent and learns its size.
func (t *Transaction) openSource() error {
	f, err := t.ch.eng.deps.Filestore.Open(t.history.SourcePath)
	if err != nil {
		return err
	}
	size, err := f.Size()
	if err != nil {
		f.Close()
		return err
	}
	t.file = f
	t.fileOpen = true
	t.fsize = size
	return nil
}

// sendMetadata emits the metadata PDU that opens the transfer.
func (t *Transaction) sendMetadata() {
	p := &pdu.PDU{
		Header:    t.header(pdu.TypeFileDirective),
		Directive: pdu.DirectiveMetadata,
		Metadata: pdu.Metadata{
			Checksum:   t.crc.Type(),
			Size:       t.fsize,
			SourcePath: t.history.SourcePath,
			DestPath:   t.history.DestPath,
		},
	}
	t.ch.sendPDU(p)
}

// sendFileData reads one segment from the source file and emits it. The
// segment is clamped to the channel chunk size and the end of the range.
func (t *Transaction) sendFileData(offset, length pdu.FileSize) error {
	if length > t.ch.cfg.OutgoingChunkSize {
		length = t.ch.cfg.OutgoingChunkSize
	}
	buf := t.ch.fdBuf[:length]
	n, err := t.file.ReadAt(buf, int64(offset))
	if err != nil {
		return err
	}
	p := &pdu.PDU{
		Header: t.header(pdu.TypeFileData),
		FileData: pdu.FileData{
			Offset: offset,
			Data:   buf[:n],
		},
	}
	t.ch.sendPDU(p)
	return nil
}

// sendEOF emits the end-of-file directive carrying the accumulated checksum
// and whatever condition the transaction has reached.
func (t *Transaction) sendEOF() {
	p := &pdu.PDU{
		Header:    t.header(pdu.TypeFileDirective),
		Directive: pdu.DirectiveEOF,
		EOF: pdu.EOF{
			Condition: t.status.ConditionCode(),
			Checksum:  t.crc.Sum(),
			Size:      t.fsize,
		},
	}
	t.ch.sendPDU(p)
}

// sendAckFin acknowledges a received FIN.
func (t *Transaction) sendAckFin(cc pdu.ConditionCode) {
	p := &pdu.PDU{
		Header:    t.header(pdu.TypeFileDirective),
		Directive: pdu.DirectiveAck,
		Ack: pdu.Ack{
			AckDirective: pdu.DirectiveFin,
			Subtype:      1,
			Condition:    cc,
			TxnStatus:    pdu.AckTxnActive,
		},
	}
	t.ch.sendPDU(p)
}

// afterEOF moves a sender past the end-of-file point: class 1 is done as
// soon as the EOF leaves, class 2 waits on the closeout handshake.
func (t *Transaction) afterEOF() {
	if t.state == TxnS1 {
		t.finish()
		return
	}
	t.phase = phaseWaitEOFAck
	t.ackCount = 0
	t.armAckTimer()
	t.armInactTimer()
	if t.qIndex != QueueTxWait {
		t.ch.moveTransaction(t, QueueTxWait)
	}
}

// txCycle performs forward progress for the channel's active sender, bounded
// by the outgoing budget. File data is paced here rather than from a timer
// so an idle link drains the file as fast as the budget permits.
func (t *Transaction) txCycle() {
	if !t.isSender() || t.canceled {
		return
	}
	for {
		switch t.phase {
		case phaseSendMetadata:
			if !t.ch.reserveOutgoing() {
				return
			}
			if err := t.openSource(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "txCycle",
					"txn":      t.ID().String(),
					"path":     t.history.SourcePath,
					"error":    err.Error(),
				}).Error("Source file rejected")
				t.setStatus(StatusFilestoreRejection)
				t.abandonSend()
				return
			}
			t.sendMetadata()
			t.phase = phaseSendFileData

		case phaseSendFileData:
			if t.progress >= t.fsize {
				t.phase = phaseSendEOF
				continue
			}
			if !t.ch.reserveOutgoing() {
				return
			}
			length := minSize(t.fsize-t.progress, t.ch.cfg.OutgoingChunkSize)
			if err := t.sendFileData(t.progress, length); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "txCycle",
					"txn":      t.ID().String(),
					"offset":   t.progress,
					"error":    err.Error(),
				}).Error("Reading source file failed")
				t.setStatus(StatusFilestoreRejection)
				t.abandonSend()
				return
			}
			t.crc.Digest(t.progress, t.ch.fdBuf[:length])
			t.progress += length

		case phaseSendEOF:
			if !t.ch.reserveOutgoing() {
				return
			}
			t.sendEOF()
			t.afterEOF()
			return

		default:
			return
		}
	}
}

// abandonSend ends a sender that failed locally before the normal closeout:
// class 1 just finalizes, class 2 tells the peer via an EOF carrying the
// error condition and then waits for its acknowledgement.
func (t *Transaction) abandonSend() {
	if t.state == TxnS1 {
		t.finish()
		return
	}
	if t.ch.reserveOutgoing() {
		t.sendEOF()
	}
	t.afterEOF()
}

// txRecv consumes one inbound PDU on the send side.
func (t *Transaction) txRecv(p *pdu.PDU) {
	if p.IsFileData() {
		// file data flows the other way; a copy of our own traffic looped
		// back is a link misconfiguration worth noticing but not a fault
		logrus.WithFields(logrus.Fields{
			"function": "txRecv",
			"txn":      t.ID().String(),
		}).Warn("File data PDU delivered to sender")
		return
	}
	t.armInactTimer()

	switch p.Directive {
	case pdu.DirectiveAck:
		if p.Ack.AckDirective == pdu.DirectiveEOF && t.phase == phaseWaitEOFAck {
			t.ackTimer.Disable()
			if t.canceled || t.status.IsError() {
				// the cancel EOF is acknowledged; nothing further to wait on
				t.finish()
				return
			}
			t.phase = phaseWaitFin
			t.armInactTimer()
		}

	case pdu.DirectiveFin:
		t.handleFin(p)

	case pdu.DirectiveNak:
		t.handleNak(p)

	case pdu.DirectiveKeepAlive:
		// progress report only; liveness already refreshed above

	default:
		logrus.WithFields(logrus.Fields{
			"function":  "txRecv",
			"txn":       t.ID().String(),
			"directive": uint8(p.Directive),
		}).Warn("Unexpected directive on send side")
		t.setStatus(StatusProtocolError)
	}
}

// handleFin closes out a class 2 send. A FIN before the file finished going
// out means the peer gave up early.
func (t *Transaction) handleFin(p *pdu.PDU) {
	if t.state != TxnS2 {
		t.setStatus(StatusProtocolError)
		return
	}
	if t.ch.reserveOutgoing() {
		t.sendAckFin(p.Fin.Condition)
	}
	switch {
	case t.phase == phaseSendMetadata || t.phase == phaseSendFileData:
		t.setStatus(StatusEarlyFin)
	case p.Fin.Condition != pdu.ConditionNoError:
		t.setStatus(StatusFromConditionCode(p.Fin.Condition))
	}
	t.finish()
}

// handleNak queues retransmission work. The zero-length range at offset
// zero conventionally requests the metadata PDU again; everything else is a
// file data range replayed from the channel's retransmit tracker.
func (t *Transaction) handleNak(p *pdu.PDU) {
	if t.state != TxnS2 || t.chunks == nil {
		t.setStatus(StatusProtocolError)
		return
	}
	for _, seg := range p.Nak.Segments {
		if seg.Start == 0 && seg.End == 0 {
			t.mdResend = true
			continue
		}
		if seg.End <= seg.Start || seg.End > t.fsize {
			logrus.WithFields(logrus.Fields{
				"function": "handleNak",
				"txn":      t.ID().String(),
				"start":    seg.Start,
				"end":      seg.End,
			}).Warn("NAK segment outside file bounds")
			t.setStatus(StatusNakResponseError)
			continue
		}
		t.chunks.chunks.Add(seg.Start, seg.End-seg.Start)
	}
}

// serviceRetransmits replays NAK-requested data within the current budget.
func (t *Transaction) serviceRetransmits() {
	if t.chunks == nil {
		return
	}
	if t.mdResend {
		if !t.ch.reserveOutgoing() {
			return
		}
		t.sendMetadata()
		t.mdResend = false
	}
	for t.chunks.chunks.Count() > 0 {
		if !t.ch.reserveOutgoing() {
			return
		}
		c := t.chunks.chunks.First()
		length := minSize(c.Size, t.ch.cfg.OutgoingChunkSize)
		if err := t.sendFileData(c.Offset, length); err != nil {
			t.setStatus(StatusNakResponseError)
			t.chunks.chunks.RemoveFirst()
			continue
		}
		if length >= c.Size {
			t.chunks.chunks.RemoveFirst()
		} else {
			t.chunks.chunks.RemoveFirst()
			t.chunks.chunks.Add(c.Offset+length, c.Size-length)
		}
	}
}

// txTick advances send-side timers and does deferred work.
func (t *Transaction) txTick() {
	t.inactTimer.Tick()
	if t.inactTimer.Status() == TimerExpired {
		t.setStatus(StatusInactivityDetected)
		t.ch.eng.deps.Events.TimerLimitExceeded(t.ch.id, t.ID(), t.status)
		t.finish()
		return
	}

	if t.canceled && t.phase != phaseWaitEOFAck {
		if t.phase == phaseSendMetadata {
			// nothing has been announced to the peer yet
			t.finish()
			return
		}
		// cooperative teardown: say goodbye with an EOF carrying the cancel
		// condition, then wait for its acknowledgement in class 2
		if !t.ch.reserveOutgoing() {
			return
		}
		t.sendEOF()
		t.afterEOF()
		return
	}

	switch t.phase {
	case phaseWaitEOFAck:
		t.ackTimer.Tick()
		if t.ackTimer.Status() == TimerExpired {
			t.ackCount++
			if t.ackCount >= t.ch.cfg.AckLimit {
				t.setStatus(StatusAckLimitNoEOF)
				t.ch.eng.deps.Events.TimerLimitExceeded(t.ch.id, t.ID(), t.status)
				t.finish()
				return
			}
			if t.ch.reserveOutgoing() {
				t.sendEOF()
			}
			t.armAckTimer()
		}

	case phaseWaitFin:
		t.serviceRetransmits()
	}
}
