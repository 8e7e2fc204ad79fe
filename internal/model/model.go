// Package model implements the boundary-scoring network: a bidirectional GRU
// encoder over per-token features, a one-step GRU decoder, and a pointer
// attention layer that turns the decoder state into a per-token distribution.
//
// Parameters are initialized from an explicit seed and are read-only after
// construction, so a single *SegBot may be shared by concurrent callers.
package model

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	// ErrSequenceTooShort is returned when a sequence has fewer than two
	// positions; the softmax and min-max normalization are undefined there.
	ErrSequenceTooShort = errors.New("sequence must have at least 2 positions")

	// ErrStartUnitOutOfRange is returned when the decoder start position is
	// not a valid row of the encoded sequence.
	ErrStartUnitOutOfRange = errors.New("decoder start unit out of range")

	// ErrDimensionMismatch is returned when an input's width does not match
	// the layer it is fed to.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// DefaultSeed is the seed used when none is configured.
const DefaultSeed uint64 = 42

// Config holds the network shape.
type Config struct {
	InputDim  int // per-token feature width
	HiddenDim int // GRU hidden width; encoder output is 2*HiddenDim
	StartUnit int // encoder position fed to the decoder
}

// DefaultConfig returns the shape used by the reference model.
func DefaultConfig() Config {
	return Config{InputDim: 128, HiddenDim: 256, StartUnit: 0}
}

func (c Config) validate() error {
	if c.InputDim <= 0 {
		return fmt.Errorf("input dim must be positive, got %d", c.InputDim)
	}
	if c.HiddenDim <= 0 {
		return fmt.Errorf("hidden dim must be positive, got %d", c.HiddenDim)
	}
	if c.StartUnit < 0 {
		return fmt.Errorf("start unit must be >= 0, got %d", c.StartUnit)
	}
	return nil
}

// SegBot bundles the encoder and pointer scorer built from one seed.
type SegBot struct {
	cfg     Config
	encoder *BiGRU
	scorer  *PointerScorer
}

// New initializes a SegBot with parameters drawn from seed. Two SegBots built
// with the same config and seed are identical.
func New(cfg Config, seed uint64) (*SegBot, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	enc := newBiGRU(cfg.InputDim, cfg.HiddenDim, rng)
	dec := newGRUCell(2*cfg.HiddenDim, cfg.HiddenDim, rng)
	ptr := newPointer(2*cfg.HiddenDim, cfg.HiddenDim, rng)

	return &SegBot{
		cfg:     cfg,
		encoder: enc,
		scorer:  &PointerScorer{decoder: dec, pointer: ptr, startUnit: cfg.StartUnit},
	}, nil
}

// Config returns the network shape.
func (m *SegBot) Config() Config { return m.cfg }

// Encoder returns the bidirectional encoder.
func (m *SegBot) Encoder() *BiGRU { return m.encoder }

// Scorer returns the pointer-attention boundary scorer.
func (m *SegBot) Scorer() *PointerScorer { return m.scorer }
