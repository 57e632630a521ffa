// Package cfdp implements the transaction-management core of a CCSDS File
// Delivery Protocol (CFDP) engine for bandwidth-constrained, lossy links.
//
// The engine multiplexes many concurrent file transfers across a small fixed
// number of channels. Every resource (transactions, history records, gap
// trackers) is drawn from pools sized at construction; exhaustion is a
// recoverable backpressure condition, never a fault, and nothing is
// heap-allocated per transfer once an Engine is built.
//
// An Engine is driven from exactly two entry points that the caller must
// serialize: a periodic Tick for timers and outbound pacing, and ReceivePDU
// for inbound traffic. There is no internal locking.
//
// Example:
//
//	eng, err := cfdp.New(cfg, cfdp.Deps{
//	    Output:    link,
//	    Filestore: cfdp.NewOsFilestore("/data"),
//	    Events:    sink,
//	})
//	if err != nil {
//	    return err
//	}
//	id, err := eng.Put(cfdp.PutRequest{
//	    ChannelID:  0,
//	    DestEntity: 24,
//	    SourcePath: "telemetry.bin",
//	    DestPath:   "downlink/telemetry.bin",
//	    Mode:       pdu.ModeAcknowledged,
//	    Priority:   10,
//	})
package cfdp
