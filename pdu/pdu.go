// Package pdu defines the structural form of CCSDS File Delivery Protocol
// (CFDP) protocol data units and a byte codec for them.
//
// The enumerated values in this package are fixed by CCSDS 727.0-B and are
// not locally changeable. The codec is structural: entity identifiers and
// transaction sequence numbers are carried at a fixed 32-bit width, which is
// a configuration of this implementation rather than a protocol ceiling.
package pdu

// EntityID is a protocol-level address identifying a CFDP participant.
type EntityID uint32

// TransactionSeq identifies one transaction originated by a source entity.
// The pair (source EntityID, TransactionSeq) is unique for the life of a
// transfer.
type TransactionSeq uint32

// FileSize is a file size or offset in octets.
type FileSize uint32

// Type discriminates file-directive PDUs from file-data PDUs.
type Type uint8

const (
	// TypeFileDirective marks a PDU carrying a protocol directive.
	TypeFileDirective Type = 0
	// TypeFileData marks a PDU carrying file content.
	TypeFileData Type = 1
)

// TransmissionMode selects acknowledged (class 2) or unacknowledged
// (class 1) transfer.
type TransmissionMode uint8

const (
	// ModeAcknowledged is class 2: reliable, with ACK/NAK/FIN closure.
	ModeAcknowledged TransmissionMode = 0
	// ModeUnacknowledged is class 1: best-effort, no closure handshake.
	ModeUnacknowledged TransmissionMode = 1
)

// FileDirective codes per CCSDS 727.0-B section 5.2 table 5-4.
type FileDirective uint8

const (
	DirectiveInvalidMin FileDirective = 0
	DirectiveEOF        FileDirective = 4
	DirectiveFin        FileDirective = 5
	DirectiveAck        FileDirective = 6
	DirectiveMetadata   FileDirective = 7
	DirectiveNak        FileDirective = 8
	DirectivePrompt     FileDirective = 9
	DirectiveKeepAlive  FileDirective = 12
	DirectiveInvalidMax FileDirective = 13
)

// ConditionCode is the 4-bit code describing why or whether a transfer ended
// abnormally, per CCSDS 727.0-B section 5.2.2 table 5-5. Values 12 and 13
// are reserved by the book and intentionally absent.
type ConditionCode uint8

const (
	ConditionNoError                 ConditionCode = 0
	ConditionPosAckLimitReached      ConditionCode = 1
	ConditionKeepAliveLimitReached   ConditionCode = 2
	ConditionInvalidTransmissionMode ConditionCode = 3
	ConditionFilestoreRejection      ConditionCode = 4
	ConditionFileChecksumFailure     ConditionCode = 5
	ConditionFileSizeError           ConditionCode = 6
	ConditionNakLimitReached         ConditionCode = 7
	ConditionInactivityDetected      ConditionCode = 8
	ConditionInvalidFileStructure    ConditionCode = 9
	ConditionCheckLimitReached       ConditionCode = 10
	ConditionUnsupportedChecksumType ConditionCode = 11
	ConditionSuspendRequestReceived  ConditionCode = 14
	ConditionCancelRequestReceived   ConditionCode = 15
)

// AckTxnStatus is the transaction status reported in an ACK PDU, per
// section 5.2.4 table 5-8.
type AckTxnStatus uint8

const (
	AckTxnUndefined    AckTxnStatus = 0
	AckTxnActive       AckTxnStatus = 1
	AckTxnTerminated   AckTxnStatus = 2
	AckTxnUnrecognized AckTxnStatus = 3
)

// FinDeliveryCode reports data completeness in a FIN PDU, per section 5.2.3
// table 5-7.
type FinDeliveryCode uint8

const (
	FinDeliveryComplete   FinDeliveryCode = 0
	FinDeliveryIncomplete FinDeliveryCode = 1
)

// FinFileStatus reports the disposition of the delivered file in a FIN PDU.
type FinFileStatus uint8

const (
	FinFileDiscarded          FinFileStatus = 0
	FinFileDiscardedFilestore FinFileStatus = 1
	FinFileRetained           FinFileStatus = 2
	FinFileUnreported         FinFileStatus = 3
)

// ChecksumType selects the file checksum algorithm, per section 5.2.5
// table 5-9.
type ChecksumType uint8

const (
	ChecksumModular ChecksumType = 0
	ChecksumCRC32   ChecksumType = 1
	ChecksumNull    ChecksumType = 15
)

// Header is the fixed part of every CFDP PDU, per section 5.1.
type Header struct {
	Version    uint8
	Type       Type
	Direction  uint8 // 0 toward file receiver, 1 toward file sender
	Mode       TransmissionMode
	Source     EntityID
	Dest       EntityID
	Sequence   TransactionSeq
	DataLength uint16
}

// Metadata is the metadata directive payload that initiates a transfer.
type Metadata struct {
	ClosureRequested bool
	Checksum         ChecksumType
	Size             FileSize
	SourcePath       string
	DestPath         string
}

// FileData is a file-data PDU payload. Data aliases the decode buffer; a
// consumer that retains it past the dispatch call must copy it.
type FileData struct {
	Offset FileSize
	Data   []byte
}

// EOF is the end-of-file directive payload.
type EOF struct {
	Condition ConditionCode
	Checksum  uint32
	Size      FileSize
}

// Fin is the finished directive payload sent by the file receiver.
type Fin struct {
	Condition    ConditionCode
	DeliveryCode FinDeliveryCode
	FileStatus   FinFileStatus
}

// Ack acknowledges an EOF or FIN directive.
type Ack struct {
	AckDirective FileDirective // directive being acknowledged (EOF or FIN)
	Subtype      uint8
	Condition    ConditionCode
	TxnStatus    AckTxnStatus
}

// SegmentRequest is one retransmission request range in a NAK PDU. End is
// exclusive.
type SegmentRequest struct {
	Start FileSize
	End   FileSize
}

// Nak requests retransmission of missing metadata or file segments. The
// metadata segment is encoded as the (0,0) range.
type Nak struct {
	ScopeStart FileSize
	ScopeEnd   FileSize
	Segments   []SegmentRequest
}

// KeepAlive reports receive progress for class 2 liveness checks.
type KeepAlive struct {
	Progress FileSize
}

// PDU is one decoded protocol data unit. Directive selects which payload
// field is meaningful; DirectiveInvalidMin means the PDU carries FileData.
type PDU struct {
	Header    Header
	Directive FileDirective

	Metadata  Metadata
	FileData  FileData
	EOF       EOF
	Fin       Fin
	Ack       Ack
	Nak       Nak
	KeepAlive KeepAlive
}

// IsFileData reports whether the PDU carries file content rather than a
// directive.
func (p *PDU) IsFileData() bool { return p.Header.Type == TypeFileData }
