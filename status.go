package cfdp

import (
	"fmt"

	"github.com/opd-ai/cfdp/pdu"
)

// TxnStatus is the engine's transaction result code. It is a superset of the
// protocol condition codes: values 0 through 15 are numerically identical to
// pdu.ConditionCode and can be placed directly in the 4-bit CC field of an
// EOF, FIN, or ACK PDU, while values above 15 describe local conditions the
// protocol cannot represent and must be translated before transmission.
type TxnStatus int

const (
	// StatusUndefined is the placeholder before any result is known. It is
	// not an error and encodes as NO_ERROR on the wire.
	StatusUndefined TxnStatus = -1

	StatusNoError                 = TxnStatus(pdu.ConditionNoError)
	StatusPosAckLimitReached      = TxnStatus(pdu.ConditionPosAckLimitReached)
	StatusKeepAliveLimitReached   = TxnStatus(pdu.ConditionKeepAliveLimitReached)
	StatusInvalidTransmissionMode = TxnStatus(pdu.ConditionInvalidTransmissionMode)
	StatusFilestoreRejection      = TxnStatus(pdu.ConditionFilestoreRejection)
	StatusFileChecksumFailure     = TxnStatus(pdu.ConditionFileChecksumFailure)
	StatusFileSizeError           = TxnStatus(pdu.ConditionFileSizeError)
	StatusNakLimitReached         = TxnStatus(pdu.ConditionNakLimitReached)
	StatusInactivityDetected      = TxnStatus(pdu.ConditionInactivityDetected)
	StatusInvalidFileStructure    = TxnStatus(pdu.ConditionInvalidFileStructure)
	StatusCheckLimitReached       = TxnStatus(pdu.ConditionCheckLimitReached)
	StatusUnsupportedChecksumType = TxnStatus(pdu.ConditionUnsupportedChecksumType)
	StatusSuspendRequestReceived  = TxnStatus(pdu.ConditionSuspendRequestReceived)
	StatusCancelRequestReceived   = TxnStatus(pdu.ConditionCancelRequestReceived)

	// Extended status codes for conditions with no protocol representation.
	// These arise on transactions that never reached the point of sending a
	// FIN or EOF.

	// StatusProtocolError is a state machine or decoding violation.
	StatusProtocolError TxnStatus = 16
	// StatusAckLimitNoFin means the retry limit was reached re-sending FIN
	// without ever seeing its acknowledgement.
	StatusAckLimitNoFin TxnStatus = 17
	// StatusAckLimitNoEOF means the retry limit was reached re-sending EOF
	// without ever seeing its acknowledgement.
	StatusAckLimitNoEOF TxnStatus = 18
	// StatusNakResponseError means a NAK retransmission request could not be
	// honored.
	StatusNakResponseError TxnStatus = 19
	// StatusSendEOFFailure means the EOF PDU could not be built or sent.
	StatusSendEOFFailure TxnStatus = 20
	// StatusEarlyFin means a FIN arrived before the file was fully sent.
	StatusEarlyFin TxnStatus = 21

	statusMax TxnStatus = 22
)

// IsError reports whether s represents a failure. StatusUndefined means no
// result has been recorded yet and StatusNoError means clean completion;
// both answer false.
func (s TxnStatus) IsError() bool {
	return s > StatusNoError
}

// ConditionCode translates s to the 4-bit protocol condition code carried in
// outbound EOF, FIN, and ACK PDUs. This is the single place that mapping is
// defined; PDU builders must use it rather than casting.
func (s TxnStatus) ConditionCode() pdu.ConditionCode {
	if !s.IsError() {
		// covers StatusUndefined as well: no result yet reads as NO_ERROR
		return pdu.ConditionNoError
	}
	switch s {
	case StatusPosAckLimitReached,
		StatusKeepAliveLimitReached,
		StatusInvalidTransmissionMode,
		StatusFilestoreRejection,
		StatusFileChecksumFailure,
		StatusFileSizeError,
		StatusNakLimitReached,
		StatusInactivityDetected,
		StatusInvalidFileStructure,
		StatusCheckLimitReached,
		StatusUnsupportedChecksumType,
		StatusSuspendRequestReceived,
		StatusCancelRequestReceived:
		return pdu.ConditionCode(s)

	case StatusAckLimitNoFin, StatusAckLimitNoEOF:
		// closest protocol meaning: the peer went quiet
		return pdu.ConditionInactivityDetected

	default:
		// any other local failure cancels the transaction, so the cancel
		// code is the closest protocol meaning for everything unhandled
		return pdu.ConditionCancelRequestReceived
	}
}

// StatusFromConditionCode lifts a received protocol condition code into the
// engine status space. It is the inverse of ConditionCode over 0-15.
func StatusFromConditionCode(cc pdu.ConditionCode) TxnStatus {
	return TxnStatus(cc)
}

// String returns the status name for logging and events.
func (s TxnStatus) String() string {
	switch s {
	case StatusUndefined:
		return "UNDEFINED"
	case StatusNoError:
		return "NO_ERROR"
	case StatusPosAckLimitReached:
		return "POS_ACK_LIMIT_REACHED"
	case StatusKeepAliveLimitReached:
		return "KEEP_ALIVE_LIMIT_REACHED"
	case StatusInvalidTransmissionMode:
		return "INVALID_TRANSMISSION_MODE"
	case StatusFilestoreRejection:
		return "FILESTORE_REJECTION"
	case StatusFileChecksumFailure:
		return "FILE_CHECKSUM_FAILURE"
	case StatusFileSizeError:
		return "FILE_SIZE_ERROR"
	case StatusNakLimitReached:
		return "NAK_LIMIT_REACHED"
	case StatusInactivityDetected:
		return "INACTIVITY_DETECTED"
	case StatusInvalidFileStructure:
		return "INVALID_FILE_STRUCTURE"
	case StatusCheckLimitReached:
		return "CHECK_LIMIT_REACHED"
	case StatusUnsupportedChecksumType:
		return "UNSUPPORTED_CHECKSUM_TYPE"
	case StatusSuspendRequestReceived:
		return "SUSPEND_REQUEST_RECEIVED"
	case StatusCancelRequestReceived:
		return "CANCEL_REQUEST_RECEIVED"
	case StatusProtocolError:
		return "PROTOCOL_ERROR"
	case StatusAckLimitNoFin:
		return "ACK_LIMIT_NO_FIN"
	case StatusAckLimitNoEOF:
		return "ACK_LIMIT_NO_EOF"
	case StatusNakResponseError:
		return "NAK_RESPONSE_ERROR"
	case StatusSendEOFFailure:
		return "SEND_EOF_FAILURE"
	case StatusEarlyFin:
		return "EARLY_FIN"
	}
	return fmt.Sprintf("TxnStatus(%d)", int(s))
}
