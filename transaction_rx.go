package cfdp

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/cfdp/pdu"
)

// initRecv configures a freshly acquired slot as the receiver for the
// transaction identified by hdr. The PDU that triggered allocation is
// dispatched by the caller afterwards.
func (t *Transaction) initRecv(hdr *pdu.Header) {
	h := t.history
	h.Source = hdr.Source
	h.Peer = hdr.Source
	h.Seq = hdr.Sequence

	if hdr.Mode == pdu.ModeAcknowledged {
		t.state = TxnR2
		t.chunks = t.ch.acquireChunks()
	} else {
		t.state = TxnR1
	}
	t.phase = phaseRecvFileData
	t.armInactTimer()

	logrus.WithFields(logrus.Fields{
		"function": "initRecv",
		"channel":  t.ch.id,
		"txn":      t.ID().String(),
		"state":    t.state.String(),
	}).Info("Inbound transaction initialized")
}

// sendAckEOF acknowledges a received EOF.
func (t *Transaction) sendAckEOF(cc pdu.ConditionCode) {
	p := &pdu.PDU{
		Header:    t.header(pdu.TypeFileDirective),
		Directive: pdu.DirectiveAck,
		Ack: pdu.Ack{
			AckDirective: pdu.DirectiveEOF,
			Subtype:      1,
			Condition:    cc,
			TxnStatus:    pdu.AckTxnActive,
		},
	}
	t.ch.sendPDU(p)
}

// sendFin emits the finished directive describing what became of the file.
func (t *Transaction) sendFin() {
	delivery := pdu.FinDeliveryComplete
	fileStatus := pdu.FinFileRetained
	if t.status.IsError() {
		delivery = pdu.FinDeliveryIncomplete
		fileStatus = pdu.FinFileDiscarded
	}
	p := &pdu.PDU{
		Header:    t.header(pdu.TypeFileDirective),
		Directive: pdu.DirectiveFin,
		Fin: pdu.Fin{
			Condition:    t.status.ConditionCode(),
			DeliveryCode: delivery,
			FileStatus:   fileStatus,
		},
	}
	t.ch.sendPDU(p)
}

// sendNak requests retransmission of everything still missing: the metadata
// PDU if it never arrived, then each gap in the received file ranges up to
// the configured segment cap.
func (t *Transaction) sendNak() {
	p := &pdu.PDU{
		Header:    t.header(pdu.TypeFileDirective),
		Directive: pdu.DirectiveNak,
		Nak: pdu.Nak{
			ScopeStart: 0,
			ScopeEnd:   t.eofSize,
			Segments:   t.ch.nakSegs[:0],
		},
	}
	limit := t.ch.cfg.NakMaxSegments
	if !t.mdRecv {
		p.Nak.Segments = append(p.Nak.Segments, pdu.SegmentRequest{})
		limit--
	}
	t.chunks.chunks.ComputeGaps(t.eofSize, 0, limit, func(c Chunk) {
		p.Nak.Segments = append(p.Nak.Segments, pdu.SegmentRequest{
			Start: c.Offset,
			End:   c.End(),
		})
	})
	if len(p.Nak.Segments) == 0 {
		return
	}
	t.ch.sendPDU(p)
}

// rxRecv consumes one inbound PDU on the receive side.
func (t *Transaction) rxRecv(p *pdu.PDU) {
	t.armInactTimer()

	if p.IsFileData() {
		t.recvFileData(&p.FileData)
		return
	}

	switch p.Directive {
	case pdu.DirectiveMetadata:
		t.recvMetadata(&p.Metadata)

	case pdu.DirectiveEOF:
		t.recvEOF(&p.EOF)

	case pdu.DirectiveAck:
		if p.Ack.AckDirective == pdu.DirectiveFin && t.phase == phaseSendFin {
			t.ackTimer.Disable()
			t.finish()
		}

	default:
		logrus.WithFields(logrus.Fields{
			"function":  "rxRecv",
			"txn":       t.ID().String(),
			"directive": uint8(p.Directive),
		}).Warn("Unexpected directive on receive side")
		t.setStatus(StatusProtocolError)
		t.drop()
	}
}

// recvMetadata learns the transfer parameters and opens the destination
// file. Duplicates (retransmitted after a NAK we no longer need) are
// ignored.
func (t *Transaction) recvMetadata(md *pdu.Metadata) {
	if t.mdRecv {
		return
	}
	if !pdu.Supported(md.Checksum) {
		logrus.WithFields(logrus.Fields{
			"function": "recvMetadata",
			"txn":      t.ID().String(),
			"checksum": uint8(md.Checksum),
		}).Error("Checksum algorithm not supported")
		t.setStatus(StatusUnsupportedChecksumType)
		t.rxAbort()
		return
	}
	f, err := t.ch.eng.deps.Filestore.Create(md.DestPath)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "recvMetadata",
			"txn":      t.ID().String(),
			"path":     md.DestPath,
			"error":    err.Error(),
		}).Error("Destination file rejected")
		t.setStatus(StatusFilestoreRejection)
		t.rxAbort()
		return
	}
	t.file = f
	t.fileOpen = true
	t.fsize = md.Size
	t.crc = pdu.NewChecksum(md.Checksum)
	t.history.SourcePath = md.SourcePath
	t.history.DestPath = md.DestPath
	t.mdRecv = true
}

// recvFileData writes one segment at its offset. Data arriving before
// metadata has nowhere to go; class 2 recovers it through the gap list, and
// class 1 has lost it for good.
func (t *Transaction) recvFileData(fd *pdu.FileData) {
	if !t.mdRecv {
		return
	}
	if _, err := t.file.WriteAt(fd.Data, int64(fd.Offset)); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "recvFileData",
			"txn":      t.ID().String(),
			"offset":   fd.Offset,
			"error":    err.Error(),
		}).Error("Writing file data failed")
		t.setStatus(StatusFilestoreRejection)
		t.rxAbort()
		return
	}
	end := fd.Offset + pdu.FileSize(len(fd.Data))
	if t.chunks != nil {
		t.chunks.chunks.Add(fd.Offset, pdu.FileSize(len(fd.Data)))
	}
	if end > t.progress {
		t.progress = end
	}

	// class 2 closeout may already be waiting on this segment
	if t.state == TxnR2 && t.eofRecv && t.rxComplete() {
		t.r2Complete()
	}
}

// recvEOF records the sender's view of the file and starts closeout.
func (t *Transaction) recvEOF(eof *pdu.EOF) {
	if t.eofRecv {
		// retransmitted EOF means our acknowledgement was lost
		if t.state == TxnR2 && t.ch.reserveOutgoing() {
			t.sendAckEOF(eof.Condition)
		}
		return
	}
	if eof.Condition != pdu.ConditionNoError {
		// the sender cancelled; adopt its condition and shut down
		t.setStatus(StatusFromConditionCode(eof.Condition))
		if t.state == TxnR2 && t.ch.reserveOutgoing() {
			t.sendAckEOF(eof.Condition)
		}
		t.finish()
		return
	}

	t.eofRecv = true
	t.eofChecksum = eof.Checksum
	t.eofSize = eof.Size

	if t.mdRecv && t.fsize != eof.Size {
		logrus.WithFields(logrus.Fields{
			"function": "recvEOF",
			"txn":      t.ID().String(),
			"md_size":  t.fsize,
			"eof_size": eof.Size,
		}).Error("EOF size disagrees with metadata")
		t.setStatus(StatusFileSizeError)
		t.rxAbort()
		return
	}

	if t.state == TxnR1 {
		if t.mdRecv && t.progress >= t.eofSize && t.verifyChecksum() {
			t.setStatus(StatusNoError)
		} else if t.mdRecv && t.progress >= t.eofSize {
			t.setStatus(StatusFileChecksumFailure)
		} else {
			t.setStatus(StatusFileSizeError)
		}
		t.finish()
		return
	}

	if t.ch.reserveOutgoing() {
		t.sendAckEOF(eof.Condition)
	}
	if t.rxComplete() {
		t.r2Complete()
		return
	}
	// ask for what is missing and keep asking on a timer
	if t.ch.reserveOutgoing() {
		t.sendNak()
	}
	t.armNakTimer()
}

// rxComplete reports whether metadata arrived and the gap list covers the
// whole announced file.
func (t *Transaction) rxComplete() bool {
	return t.mdRecv && t.chunks.chunks.Complete(t.eofSize)
}

// r2Complete verifies the delivered file and enters the FIN handshake.
func (t *Transaction) r2Complete() {
	t.nakTimer.Disable()
	if !t.verifyChecksum() {
		logrus.WithFields(logrus.Fields{
			"function": "r2Complete",
			"txn":      t.ID().String(),
			"expected": t.eofChecksum,
		}).Error("File checksum mismatch")
		t.setStatus(StatusFileChecksumFailure)
	}
	t.startFin()
}

// startFin sends the FIN and waits for its acknowledgement, re-sending on
// the ack timer.
func (t *Transaction) startFin() {
	t.phase = phaseSendFin
	t.ackCount = 0
	if t.ch.reserveOutgoing() {
		t.sendFin()
	}
	t.armAckTimer()
}

// rxAbort ends a receive after a local failure: class 1 just finalizes,
// class 2 reports the condition through the FIN handshake first.
func (t *Transaction) rxAbort() {
	if t.state == TxnR1 {
		t.finish()
		return
	}
	t.startFin()
}

// verifyChecksum recomputes the file checksum by reading the delivered
// bytes back, so out-of-order arrival cannot skew the result.
func (t *Transaction) verifyChecksum() bool {
	if !t.fileOpen {
		return false
	}
	t.crc.Reset()
	buf := t.ch.fdBuf
	var off pdu.FileSize
	for off < t.eofSize {
		n := minSize(t.eofSize-off, pdu.FileSize(len(buf)))
		if _, err := t.file.ReadAt(buf[:n], int64(off)); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "verifyChecksum",
				"txn":      t.ID().String(),
				"offset":   off,
				"error":    err.Error(),
			}).Error("Reading delivered file back failed")
			return false
		}
		t.crc.Digest(off, buf[:n])
		off += n
	}
	return t.crc.Matches(t.eofChecksum)
}

// drop abandons protocol processing but keeps the slot parked until the
// peer goes quiet, so late retransmissions are swallowed instead of
// spawning a fresh transaction.
func (t *Transaction) drop() {
	t.state = TxnDrop
	t.armInactTimer()
}

// rxTick advances receive-side timers and does deferred work.
func (t *Transaction) rxTick() {
	t.inactTimer.Tick()
	if t.inactTimer.Status() == TimerExpired {
		t.setStatus(StatusInactivityDetected)
		t.ch.eng.deps.Events.TimerLimitExceeded(t.ch.id, t.ID(), t.status)
		t.finish()
		return
	}

	if t.canceled && t.phase != phaseSendFin {
		if t.state == TxnR1 {
			t.finish()
			return
		}
		t.startFin()
		return
	}

	switch t.phase {
	case phaseRecvFileData:
		if t.state != TxnR2 || !t.eofRecv {
			return
		}
		t.nakTimer.Tick()
		if t.nakTimer.Status() == TimerExpired {
			t.nakCount++
			if t.nakCount >= t.ch.cfg.NakLimit {
				t.setStatus(StatusNakLimitReached)
				t.ch.eng.deps.Events.TimerLimitExceeded(t.ch.id, t.ID(), t.status)
				t.startFin()
				return
			}
			if t.ch.reserveOutgoing() {
				t.sendNak()
			}
			t.armNakTimer()
		}

	case phaseSendFin:
		t.ackTimer.Tick()
		if t.ackTimer.Status() == TimerExpired {
			t.ackCount++
			if t.ackCount >= t.ch.cfg.AckLimit {
				t.setStatus(StatusAckLimitNoFin)
				t.ch.eng.deps.Events.TimerLimitExceeded(t.ch.id, t.ID(), t.status)
				t.finish()
				return
			}
			if t.ch.reserveOutgoing() {
				t.sendFin()
			}
			t.armAckTimer()
		}
	}
}
