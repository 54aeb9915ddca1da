package work

import (
	"fmt"
	"math"
)

// Subtype is the kind of block work is generated for. Thresholds differ per
// subtype since epoch v2.
type Subtype int32

// Block subtypes.
const (
	SubtypeSend Subtype = iota
	SubtypeReceive
	SubtypeOpen
	SubtypeChange
	SubtypeEpoch
)

func (s Subtype) String() string {
	switch s {
	case SubtypeSend:
		return "send"
	case SubtypeReceive:
		return "receive"
	case SubtypeOpen:
		return "open"
	case SubtypeChange:
		return "change"
	case SubtypeEpoch:
		return "epoch"
	default:
		return fmt.Sprintf("subtype(%d)", int32(s))
	}
}

// IsReceive returns whether the subtype uses the receive threshold.
func (s Subtype) IsReceive() bool {
	return s == SubtypeReceive || s == SubtypeOpen
}

// Block is any block or transaction model that can yield the root work is
// generated against. Its structure is never inspected beyond these methods.
type Block interface {
	WorkRoot() Root
	WorkSubtype() Subtype
}

// DifficultyPolicy supplies the difficulty a block needs. Implementations may
// do network I/O and the values may change over time, so generators only
// query a policy when a request is about to be computed.
type DifficultyPolicy interface {
	DifficultyFor(block Block) (Difficulty, error)
	DifficultyForAny() (Difficulty, error)
	RecommendedMultiplier() (float64, error)
}

// ConstantPolicy is a DifficultyPolicy with fixed thresholds and a
// recommended multiplier of 1.
type ConstantPolicy struct {
	Send    Difficulty // send, change and epoch blocks
	Receive Difficulty // receive and open blocks
}

// PolicyV1 returns the pre epoch v2 policy where every block uses the same
// threshold.
func PolicyV1() *ConstantPolicy {
	return &ConstantPolicy{Send: DifficultyV1, Receive: DifficultyV1}
}

// PolicyV2 returns the epoch v2 policy.
func PolicyV2() *ConstantPolicy {
	return &ConstantPolicy{Send: DifficultyV2Send, Receive: DifficultyV2Receive}
}

// DifficultyFor returns the threshold for the block subtype.
func (p *ConstantPolicy) DifficultyFor(block Block) (Difficulty, error) {
	return thresholdFor(block.WorkSubtype(), p.Send, p.Receive)
}

// DifficultyForAny returns the highest threshold, which is valid for every
// block subtype.
func (p *ConstantPolicy) DifficultyForAny() (Difficulty, error) {
	if p.Send > p.Receive {
		return p.Send, nil
	}
	return p.Receive, nil
}

// RecommendedMultiplier always returns 1.
func (p *ConstantPolicy) RecommendedMultiplier() (float64, error) {
	return 1, nil
}

func thresholdFor(subtype Subtype, send, receive Difficulty) (Difficulty, error) {
	switch subtype {
	case SubtypeSend, SubtypeChange, SubtypeEpoch:
		return send, nil
	case SubtypeReceive, SubtypeOpen:
		return receive, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownSubtype, subtype)
}

type sourceKind int

const (
	sourceLiteral sourceKind = iota
	sourcePolicy
)

// DifficultySource is where a request gets its difficulty from: either a
// literal value, or a policy (with an optional block) evaluated later. It is
// captured when a request is submitted and resolved by the generator right
// before the search starts.
type DifficultySource struct {
	kind       sourceKind
	literal    Difficulty
	policy     DifficultyPolicy
	block      Block
	multiplier float64
}

// LiteralDifficulty returns a source that always resolves to d with a
// multiplier of 1.
func LiteralDifficulty(d Difficulty) DifficultySource {
	return DifficultySource{kind: sourceLiteral, literal: d, multiplier: 1}
}

// PolicyDifficulty returns a source resolved from policy. If block is nil the
// policy's "any" difficulty is used. The multiplier stacks on top of the
// policy's recommended multiplier.
func PolicyDifficulty(policy DifficultyPolicy, block Block, multiplier float64) DifficultySource {
	return DifficultySource{kind: sourcePolicy, policy: policy, block: block, multiplier: multiplier}
}

// Resolve evaluates the source and returns the base difficulty and the total
// multiplier to apply to it.
func (s DifficultySource) Resolve() (Difficulty, float64, error) {
	if s.kind == sourceLiteral {
		return s.literal, 1, nil
	}
	if s.policy == nil {
		return 0, 0, ErrNoDifficultyPolicy
	}
	if !validMultiplier(s.multiplier) {
		return 0, 0, ErrInvalidMultiplier
	}

	var base Difficulty
	var err error
	if s.block != nil {
		base, err = s.policy.DifficultyFor(s.block)
	} else {
		base, err = s.policy.DifficultyForAny()
	}
	if err != nil {
		return 0, 0, err
	}

	recommended, err := s.policy.RecommendedMultiplier()
	if err != nil {
		return 0, 0, err
	}
	multiplier := recommended * s.multiplier
	if !validMultiplier(multiplier) {
		return 0, 0, ErrInvalidMultiplier
	}
	return base, multiplier, nil
}

// Target resolves the source and applies the multiplier.
func (s DifficultySource) Target() (Difficulty, error) {
	base, multiplier, err := s.Resolve()
	if err != nil {
		return 0, err
	}
	return base.Multiply(multiplier)
}

func validMultiplier(m float64) bool {
	return m > 0 && !math.IsInf(m, 0)
}
