package pdu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTooShort indicates that a buffer ended before the structure it should
// contain.
var ErrTooShort = errors.New("pdu: buffer too short")

// ErrBufferTooSmall indicates that an encode destination cannot hold the PDU.
var ErrBufferTooSmall = errors.New("pdu: destination buffer too small")

// ErrBadDirective indicates a file directive code outside the defined range.
var ErrBadDirective = errors.New("pdu: invalid file directive code")

// ErrPathTooLong indicates a metadata file path longer than one LV field can
// carry.
var ErrPathTooLong = errors.New("pdu: file path exceeds 255 octets")

// HeaderSize is the encoded size of a Header with 32-bit entity identifiers
// and sequence numbers.
const HeaderSize = 16

// MaxPathLen is the longest file path one metadata LV field can carry.
const MaxPathLen = 255

// MaxPDUSize is the encode buffer size this implementation uses for every
// outgoing PDU.
const MaxPDUSize = 2048

// MaxFileDataLen is the most file content one file data PDU can carry within
// MaxPDUSize.
const MaxFileDataLen = MaxPDUSize - HeaderSize - 4

// NakMaxSegments bounds the segment requests one NAK PDU may carry.
const NakMaxSegments = 58

// header octet 0 bit positions
const (
	hdrVersionShift = 5
	hdrTypeShift    = 4
	hdrDirShift     = 3
	hdrModeShift    = 2
)

// encoded length code for 4-octet entity IDs and sequence numbers:
// (len-1)<<4 | (len-1)
const hdrLengthCodes = 0x33

// EncodeHeader writes h into buf and returns HeaderSize.
func EncodeHeader(h *Header, buf []byte) (int, error) {
	if len(buf) < HeaderSize {
		return 0, ErrBufferTooSmall
	}
	buf[0] = h.Version<<hdrVersionShift |
		uint8(h.Type)<<hdrTypeShift |
		h.Direction<<hdrDirShift |
		uint8(h.Mode)<<hdrModeShift
	binary.BigEndian.PutUint16(buf[1:3], h.DataLength)
	buf[3] = hdrLengthCodes
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.Source))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.Sequence))
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.Dest))
	return HeaderSize, nil
}

// DecodeHeader parses a Header from buf.
func DecodeHeader(buf []byte, h *Header) (int, error) {
	if len(buf) < HeaderSize {
		return 0, ErrTooShort
	}
	h.Version = buf[0] >> hdrVersionShift
	h.Type = Type(buf[0] >> hdrTypeShift & 1)
	h.Direction = buf[0] >> hdrDirShift & 1
	h.Mode = TransmissionMode(buf[0] >> hdrModeShift & 1)
	h.DataLength = binary.BigEndian.Uint16(buf[1:3])
	if buf[3] != hdrLengthCodes {
		return 0, fmt.Errorf("pdu: unsupported EID/TSN length code 0x%02x", buf[3])
	}
	h.Source = EntityID(binary.BigEndian.Uint32(buf[4:8]))
	h.Sequence = TransactionSeq(binary.BigEndian.Uint32(buf[8:12]))
	h.Dest = EntityID(binary.BigEndian.Uint32(buf[12:16]))
	return HeaderSize, nil
}

// Encode serializes p into buf and returns the number of bytes written.
// The header DataLength field is computed from the payload; the caller does
// not need to set it.
func Encode(p *PDU, buf []byte) (int, error) {
	n, err := encodeBody(p, buf)
	if err != nil {
		return 0, err
	}
	p.Header.DataLength = uint16(n)
	if _, err := EncodeHeader(&p.Header, buf); err != nil {
		return 0, err
	}
	return HeaderSize + n, nil
}

func encodeBody(p *PDU, buf []byte) (int, error) {
	body := buf
	if len(body) >= HeaderSize {
		body = buf[HeaderSize:]
	} else {
		return 0, ErrBufferTooSmall
	}

	if p.Header.Type == TypeFileData {
		fd := &p.FileData
		if len(body) < 4+len(fd.Data) {
			return 0, ErrBufferTooSmall
		}
		binary.BigEndian.PutUint32(body[0:4], uint32(fd.Offset))
		copy(body[4:], fd.Data)
		return 4 + len(fd.Data), nil
	}

	if len(body) < 1 {
		return 0, ErrBufferTooSmall
	}
	body[0] = byte(p.Directive)
	rest := body[1:]

	switch p.Directive {
	case DirectiveEOF:
		if len(rest) < 9 {
			return 0, ErrBufferTooSmall
		}
		rest[0] = byte(p.EOF.Condition) << 4
		binary.BigEndian.PutUint32(rest[1:5], p.EOF.Checksum)
		binary.BigEndian.PutUint32(rest[5:9], uint32(p.EOF.Size))
		return 1 + 9, nil

	case DirectiveFin:
		if len(rest) < 1 {
			return 0, ErrBufferTooSmall
		}
		rest[0] = byte(p.Fin.Condition)<<4 |
			byte(p.Fin.DeliveryCode)<<2 |
			byte(p.Fin.FileStatus)
		return 1 + 1, nil

	case DirectiveAck:
		if len(rest) < 2 {
			return 0, ErrBufferTooSmall
		}
		rest[0] = byte(p.Ack.AckDirective)<<4 | p.Ack.Subtype&0x0f
		rest[1] = byte(p.Ack.Condition)<<4 | byte(p.Ack.TxnStatus)&0x03
		return 1 + 2, nil

	case DirectiveMetadata:
		md := &p.Metadata
		if len(md.SourcePath) > MaxPathLen || len(md.DestPath) > MaxPathLen {
			return 0, ErrPathTooLong
		}
		need := 5 + 1 + len(md.SourcePath) + 1 + len(md.DestPath)
		if len(rest) < need {
			return 0, ErrBufferTooSmall
		}
		var closure byte
		if md.ClosureRequested {
			closure = 1 << 6
		}
		rest[0] = closure | byte(md.Checksum)&0x0f
		binary.BigEndian.PutUint32(rest[1:5], uint32(md.Size))
		off := 5
		off += putLV(rest[off:], md.SourcePath)
		off += putLV(rest[off:], md.DestPath)
		return 1 + off, nil

	case DirectiveNak:
		nak := &p.Nak
		need := 8 + 8*len(nak.Segments)
		if len(rest) < need {
			return 0, ErrBufferTooSmall
		}
		binary.BigEndian.PutUint32(rest[0:4], uint32(nak.ScopeStart))
		binary.BigEndian.PutUint32(rest[4:8], uint32(nak.ScopeEnd))
		off := 8
		for _, seg := range nak.Segments {
			binary.BigEndian.PutUint32(rest[off:off+4], uint32(seg.Start))
			binary.BigEndian.PutUint32(rest[off+4:off+8], uint32(seg.End))
			off += 8
		}
		return 1 + off, nil

	case DirectiveKeepAlive:
		if len(rest) < 4 {
			return 0, ErrBufferTooSmall
		}
		binary.BigEndian.PutUint32(rest[0:4], uint32(p.KeepAlive.Progress))
		return 1 + 4, nil
	}

	return 0, fmt.Errorf("%w: 0x%02x", ErrBadDirective, uint8(p.Directive))
}

// Decode parses one PDU from buf. FileData payloads and Nak segment storage
// alias or reuse memory owned by p, so a single PDU value can be reused
// across calls without allocation.
func Decode(buf []byte, p *PDU) error {
	n, err := DecodeHeader(buf, &p.Header)
	if err != nil {
		return err
	}
	body := buf[n:]
	if len(body) < int(p.Header.DataLength) {
		return fmt.Errorf("%w: header claims %d payload octets, %d present",
			ErrTooShort, p.Header.DataLength, len(body))
	}
	body = body[:p.Header.DataLength]

	p.Directive = DirectiveInvalidMin
	if p.Header.Type == TypeFileData {
		if len(body) < 4 {
			return fmt.Errorf("pdu: file data: %w", ErrTooShort)
		}
		p.FileData.Offset = FileSize(binary.BigEndian.Uint32(body[0:4]))
		p.FileData.Data = body[4:]
		return nil
	}

	if len(body) < 1 {
		return fmt.Errorf("pdu: directive code: %w", ErrTooShort)
	}
	dir := FileDirective(body[0])
	if dir <= DirectiveInvalidMin || dir >= DirectiveInvalidMax {
		return fmt.Errorf("%w: 0x%02x", ErrBadDirective, uint8(dir))
	}
	p.Directive = dir
	rest := body[1:]

	switch dir {
	case DirectiveEOF:
		if len(rest) < 9 {
			return fmt.Errorf("pdu: EOF: %w", ErrTooShort)
		}
		p.EOF.Condition = ConditionCode(rest[0] >> 4)
		p.EOF.Checksum = binary.BigEndian.Uint32(rest[1:5])
		p.EOF.Size = FileSize(binary.BigEndian.Uint32(rest[5:9]))

	case DirectiveFin:
		if len(rest) < 1 {
			return fmt.Errorf("pdu: FIN: %w", ErrTooShort)
		}
		p.Fin.Condition = ConditionCode(rest[0] >> 4)
		p.Fin.DeliveryCode = FinDeliveryCode(rest[0] >> 2 & 1)
		p.Fin.FileStatus = FinFileStatus(rest[0] & 0x03)

	case DirectiveAck:
		if len(rest) < 2 {
			return fmt.Errorf("pdu: ACK: %w", ErrTooShort)
		}
		p.Ack.AckDirective = FileDirective(rest[0] >> 4)
		p.Ack.Subtype = rest[0] & 0x0f
		p.Ack.Condition = ConditionCode(rest[1] >> 4)
		p.Ack.TxnStatus = AckTxnStatus(rest[1] & 0x03)

	case DirectiveMetadata:
		if len(rest) < 5 {
			return fmt.Errorf("pdu: metadata: %w", ErrTooShort)
		}
		md := &p.Metadata
		md.ClosureRequested = rest[0]>>6&1 == 1
		md.Checksum = ChecksumType(rest[0] & 0x0f)
		md.Size = FileSize(binary.BigEndian.Uint32(rest[1:5]))
		off := 5
		var ok bool
		if md.SourcePath, off, ok = getLV(rest, off); !ok {
			return fmt.Errorf("pdu: metadata source path: %w", ErrTooShort)
		}
		if md.DestPath, _, ok = getLV(rest, off); !ok {
			return fmt.Errorf("pdu: metadata destination path: %w", ErrTooShort)
		}

	case DirectiveNak:
		if len(rest) < 8 || (len(rest)-8)%8 != 0 {
			return fmt.Errorf("pdu: NAK: %w", ErrTooShort)
		}
		nak := &p.Nak
		nak.ScopeStart = FileSize(binary.BigEndian.Uint32(rest[0:4]))
		nak.ScopeEnd = FileSize(binary.BigEndian.Uint32(rest[4:8]))
		nak.Segments = nak.Segments[:0]
		for off := 8; off < len(rest); off += 8 {
			nak.Segments = append(nak.Segments, SegmentRequest{
				Start: FileSize(binary.BigEndian.Uint32(rest[off : off+4])),
				End:   FileSize(binary.BigEndian.Uint32(rest[off+4 : off+8])),
			})
		}

	case DirectiveKeepAlive:
		if len(rest) < 4 {
			return fmt.Errorf("pdu: keep alive: %w", ErrTooShort)
		}
		p.KeepAlive.Progress = FileSize(binary.BigEndian.Uint32(rest[0:4]))

	default:
		// Prompt is defined but not consumed by this engine; surface it as
		// a decode error so the caller counts it as unsupported.
		return fmt.Errorf("%w: unsupported directive 0x%02x", ErrBadDirective, uint8(dir))
	}
	return nil
}

// putLV writes one length-value string field and returns the octets used.
func putLV(buf []byte, s string) int {
	buf[0] = byte(len(s))
	copy(buf[1:], s)
	return 1 + len(s)
}

// getLV reads one length-value string field starting at off.
func getLV(buf []byte, off int) (string, int, bool) {
	if off >= len(buf) {
		return "", off, false
	}
	n := int(buf[off])
	off++
	if off+n > len(buf) {
		return "", off, false
	}
	return string(buf[off : off+n]), off + n, true
}
