package pdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader(ptype Type) Header {
	return Header{
		Version:  1,
		Type:     ptype,
		Mode:     ModeAcknowledged,
		Source:   10,
		Dest:     24,
		Sequence: 77,
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Version:    1,
		Type:       TypeFileData,
		Direction:  1,
		Mode:       ModeUnacknowledged,
		Source:     0xDEADBEEF,
		Dest:       2,
		Sequence:   0xCAFE,
		DataLength: 512,
	}
	buf := make([]byte, HeaderSize)
	n, err := EncodeHeader(&h, buf)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize, n)

	var got Header
	n, err = DecodeHeader(buf, &got)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize, n)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderRejectsUnknownLengthCodes(t *testing.T) {
	h := testHeader(TypeFileDirective)
	buf := make([]byte, HeaderSize)
	_, err := EncodeHeader(&h, buf)
	require.NoError(t, err)

	buf[3] = 0x11 // 2-octet IDs, not supported
	var got Header
	_, err = DecodeHeader(buf, &got)
	assert.Error(t, err)
}

func TestEOFRoundTrip(t *testing.T) {
	p := PDU{
		Header:    testHeader(TypeFileDirective),
		Directive: DirectiveEOF,
		EOF: EOF{
			Condition: ConditionCancelRequestReceived,
			Checksum:  0x12345678,
			Size:      9000,
		},
	}
	buf := make([]byte, MaxPDUSize)
	n, err := Encode(&p, buf)
	require.NoError(t, err)

	var got PDU
	require.NoError(t, Decode(buf[:n], &got))
	assert.Equal(t, DirectiveEOF, got.Directive)
	assert.Equal(t, p.EOF, got.EOF)
}

func TestMetadataRoundTrip(t *testing.T) {
	p := PDU{
		Header:    testHeader(TypeFileDirective),
		Directive: DirectiveMetadata,
		Metadata: Metadata{
			ClosureRequested: true,
			Checksum:         ChecksumCRC32,
			Size:             4096,
			SourcePath:       "telemetry/day042.bin",
			DestPath:         "downlink/day042.bin",
		},
	}
	buf := make([]byte, MaxPDUSize)
	n, err := Encode(&p, buf)
	require.NoError(t, err)

	var got PDU
	require.NoError(t, Decode(buf[:n], &got))
	assert.Equal(t, p.Metadata, got.Metadata)
}

func TestMetadataEmptyPaths(t *testing.T) {
	p := PDU{
		Header:    testHeader(TypeFileDirective),
		Directive: DirectiveMetadata,
		Metadata:  Metadata{Size: 1},
	}
	buf := make([]byte, MaxPDUSize)
	n, err := Encode(&p, buf)
	require.NoError(t, err)

	var got PDU
	require.NoError(t, Decode(buf[:n], &got))
	assert.Empty(t, got.Metadata.SourcePath)
	assert.Empty(t, got.Metadata.DestPath)
}

func TestMetadataPathTooLong(t *testing.T) {
	long := make([]byte, MaxPathLen+1)
	for i := range long {
		long[i] = 'a'
	}
	p := PDU{
		Header:    testHeader(TypeFileDirective),
		Directive: DirectiveMetadata,
		Metadata:  Metadata{SourcePath: string(long), DestPath: "x"},
	}
	buf := make([]byte, MaxPDUSize)
	_, err := Encode(&p, buf)
	assert.ErrorIs(t, err, ErrPathTooLong)
}

func TestFinAndAckRoundTrip(t *testing.T) {
	fin := PDU{
		Header:    testHeader(TypeFileDirective),
		Directive: DirectiveFin,
		Fin: Fin{
			Condition:    ConditionFileChecksumFailure,
			DeliveryCode: FinDeliveryIncomplete,
			FileStatus:   FinFileDiscarded,
		},
	}
	buf := make([]byte, MaxPDUSize)
	n, err := Encode(&fin, buf)
	require.NoError(t, err)
	var gotFin PDU
	require.NoError(t, Decode(buf[:n], &gotFin))
	assert.Equal(t, fin.Fin, gotFin.Fin)

	ack := PDU{
		Header:    testHeader(TypeFileDirective),
		Directive: DirectiveAck,
		Ack: Ack{
			AckDirective: DirectiveEOF,
			Subtype:      1,
			Condition:    ConditionNoError,
			TxnStatus:    AckTxnActive,
		},
	}
	n, err = Encode(&ack, buf)
	require.NoError(t, err)
	var gotAck PDU
	require.NoError(t, Decode(buf[:n], &gotAck))
	assert.Equal(t, ack.Ack, gotAck.Ack)
}

func TestNakRoundTripReusesSegmentStorage(t *testing.T) {
	p := PDU{
		Header:    testHeader(TypeFileDirective),
		Directive: DirectiveNak,
		Nak: Nak{
			ScopeStart: 0,
			ScopeEnd:   10000,
			Segments: []SegmentRequest{
				{Start: 0, End: 0}, // metadata re-request convention
				{Start: 1024, End: 2048},
				{Start: 4096, End: 5120},
			},
		},
	}
	buf := make([]byte, MaxPDUSize)
	n, err := Encode(&p, buf)
	require.NoError(t, err)

	var got PDU
	got.Nak.Segments = make([]SegmentRequest, 0, NakMaxSegments)
	backing := &got.Nak.Segments[:1][0]

	require.NoError(t, Decode(buf[:n], &got))
	assert.Equal(t, p.Nak.Segments, got.Nak.Segments)
	// decode must refill the existing backing array, not allocate
	assert.Same(t, backing, &got.Nak.Segments[0])
}

func TestFileDataAliasesBuffer(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	p := PDU{
		Header:   testHeader(TypeFileData),
		FileData: FileData{Offset: 1234, Data: payload},
	}
	buf := make([]byte, MaxPDUSize)
	n, err := Encode(&p, buf)
	require.NoError(t, err)

	var got PDU
	require.NoError(t, Decode(buf[:n], &got))
	assert.True(t, got.IsFileData())
	assert.Equal(t, FileSize(1234), got.FileData.Offset)
	assert.Equal(t, payload, got.FileData.Data)
	// the decoded payload aliases the input buffer
	assert.Same(t, &buf[HeaderSize+4], &got.FileData.Data[0])
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		buf  func() []byte
	}{
		{
			name: "truncated_header",
			buf:  func() []byte { return make([]byte, HeaderSize-1) },
		},
		{
			name: "payload_shorter_than_header_claims",
			buf: func() []byte {
				h := testHeader(TypeFileDirective)
				h.DataLength = 100
				b := make([]byte, HeaderSize+10)
				EncodeHeader(&h, b)
				return b
			},
		},
		{
			name: "directive_code_zero",
			buf: func() []byte {
				h := testHeader(TypeFileDirective)
				h.DataLength = 1
				b := make([]byte, HeaderSize+1)
				EncodeHeader(&h, b)
				b[HeaderSize] = 0
				return b
			},
		},
		{
			name: "directive_code_reserved",
			buf: func() []byte {
				h := testHeader(TypeFileDirective)
				h.DataLength = 1
				b := make([]byte, HeaderSize+1)
				EncodeHeader(&h, b)
				b[HeaderSize] = byte(DirectiveInvalidMax)
				return b
			},
		},
		{
			name: "nak_with_ragged_segment",
			buf: func() []byte {
				h := testHeader(TypeFileDirective)
				h.DataLength = 1 + 8 + 3
				b := make([]byte, HeaderSize+int(h.DataLength))
				EncodeHeader(&h, b)
				b[HeaderSize] = byte(DirectiveNak)
				return b
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p PDU
			assert.Error(t, Decode(tt.buf(), &p))
		})
	}
}

func TestEncodeBufferTooSmall(t *testing.T) {
	p := PDU{
		Header:    testHeader(TypeFileDirective),
		Directive: DirectiveEOF,
	}
	_, err := Encode(&p, make([]byte, HeaderSize+3))
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}
