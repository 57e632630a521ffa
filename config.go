package cfdp

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/cfdp/pdu"
)

// Configuration validation errors.
var (
	ErrNoChannels      = errors.New("cfdp: configuration has no channels")
	ErrBadChannelIndex = errors.New("cfdp: channel index out of range")
)

// ChannelConfig sets the fixed resource pools and timing parameters of one
// channel. Pool sizes are allocated once when the engine is built and never
// grow.
type ChannelConfig struct {
	// TransactionsPerChannel is the size of the transaction pool. A channel
	// can run at most this many concurrent transactions.
	TransactionsPerChannel int `yaml:"transactions_per_channel"`

	// HistoriesPerChannel bounds the records kept about finished
	// transactions. When the pool is exhausted the oldest record is
	// recycled.
	HistoriesPerChannel int `yaml:"histories_per_channel"`

	// AckTimerTicks is how many engine ticks to wait for an acknowledgement
	// before retransmitting.
	AckTimerTicks uint32 `yaml:"ack_timer_ticks"`

	// NakTimerTicks is how many engine ticks a receiver waits before
	// re-requesting missing file data.
	NakTimerTicks uint32 `yaml:"nak_timer_ticks"`

	// InactivityTimerTicks is how long a transaction may sit without
	// hearing from its peer before it is abandoned.
	InactivityTimerTicks uint32 `yaml:"inactivity_timer_ticks"`

	// AckLimit caps how many times an unacknowledged PDU is resent before
	// the transaction gives up.
	AckLimit uint8 `yaml:"ack_limit"`

	// NakLimit caps how many NAK rounds a receiver attempts.
	NakLimit uint8 `yaml:"nak_limit"`

	// MaxOutgoingPDUs bounds how many PDUs one call to Tick may emit on
	// this channel.
	MaxOutgoingPDUs uint32 `yaml:"max_outgoing_pdus"`

	// NakMaxSegments caps the segment requests carried in one NAK.
	NakMaxSegments int `yaml:"nak_max_segments"`

	// OutgoingChunkSize is the file data bytes carried per file data PDU.
	OutgoingChunkSize pdu.FileSize `yaml:"outgoing_chunk_size"`

	// ChunksPerTransaction is the capacity of each transaction's gap or
	// retransmit tracker.
	ChunksPerTransaction int `yaml:"chunks_per_transaction"`
}

// Config is the engine-wide configuration.
type Config struct {
	// LocalEntityID identifies this engine on the network. PDUs addressed
	// to any other entity are dropped.
	LocalEntityID pdu.EntityID `yaml:"local_entity_id"`

	// Channels configures each channel. The slice index is the channel
	// number used throughout the API.
	Channels []ChannelConfig `yaml:"channels"`
}

// DefaultChannelConfig returns a ChannelConfig with workable defaults for a
// low-rate link.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		TransactionsPerChannel: 8,
		HistoriesPerChannel:    16,
		AckTimerTicks:          10,
		NakTimerTicks:          10,
		InactivityTimerTicks:   100,
		AckLimit:               4,
		NakLimit:               4,
		MaxOutgoingPDUs:        16,
		NakMaxSegments:         pdu.NakMaxSegments,
		OutgoingChunkSize:      1024,
		ChunksPerTransaction:   16,
	}
}

// LoadConfig reads a YAML configuration file and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}
	for i := range c.Channels {
		if err := c.Channels[i].validate(); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return nil
}

func (cc *ChannelConfig) validate() error {
	if cc.TransactionsPerChannel <= 0 {
		return errors.New("transactions_per_channel must be positive")
	}
	if cc.HistoriesPerChannel <= 0 {
		return errors.New("histories_per_channel must be positive")
	}
	if cc.AckLimit == 0 {
		return errors.New("ack_limit must be positive")
	}
	if cc.MaxOutgoingPDUs == 0 {
		return errors.New("max_outgoing_pdus must be positive")
	}
	if cc.OutgoingChunkSize == 0 {
		return errors.New("outgoing_chunk_size must be positive")
	}
	if cc.OutgoingChunkSize > pdu.MaxFileDataLen {
		return fmt.Errorf("outgoing_chunk_size %d exceeds PDU limit %d",
			cc.OutgoingChunkSize, pdu.MaxFileDataLen)
	}
	if cc.NakMaxSegments <= 0 || cc.NakMaxSegments > pdu.NakMaxSegments {
		return fmt.Errorf("nak_max_segments must be in 1..%d", pdu.NakMaxSegments)
	}
	if cc.ChunksPerTransaction <= 0 {
		return errors.New("chunks_per_transaction must be positive")
	}
	return nil
}
