package work

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	// RootSize is the size of a work root in bytes.
	RootSize = 32

	// SolutionSize is the size of a work solution (nonce) in bytes.
	SolutionSize = 8
)

// Well-known network thresholds.
const (
	// DifficultyV1 is the single threshold used before epoch v2.
	DifficultyV1 Difficulty = 0xffffffc000000000

	// DifficultyV2Send is the epoch v2 threshold for send, change and epoch
	// blocks.
	DifficultyV2Send Difficulty = 0xfffffff800000000

	// DifficultyV2Receive is the epoch v2 threshold for receive and open
	// blocks.
	DifficultyV2Receive Difficulty = 0xfffffe0000000000
)

var (
	two64     = new(big.Int).Lsh(big.NewInt(1), 64)
	maxUint64 = new(big.Int).SetUint64(math.MaxUint64)
	floatPrec = uint(128)
)

// Root is the 32 byte value (account public key or previous block hash) that
// work is generated against.
type Root [RootSize]byte

// NewRoot creates a Root from a byte slice of exactly RootSize bytes.
func NewRoot(b []byte) (Root, error) {
	var r Root
	if len(b) != RootSize {
		return r, ErrInvalidRootSize
	}
	copy(r[:], b)
	return r, nil
}

// ParseRoot parses a 64 character hex string into a Root.
func ParseRoot(s string) (Root, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Root{}, err
	}
	return NewRoot(b)
}

// Bytes returns a copy of the root bytes.
func (r Root) Bytes() []byte {
	b := make([]byte, RootSize)
	copy(b, r[:])
	return b
}

// String returns the upper case hex representation of the root.
func (r Root) String() string {
	return strings.ToUpper(hex.EncodeToString(r[:]))
}

// Solution is a 64 bit work nonce. It is meaningless without the root it was
// generated for.
type Solution uint64

// ParseSolution parses a hex encoded work value.
func ParseSolution(s string) (Solution, error) {
	v, err := parseHex64(s)
	return Solution(v), err
}

// String returns the work as 16 lower case hex characters.
func (s Solution) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// Bytes returns the little endian encoding hashed together with the root.
func (s Solution) Bytes() []byte {
	b := make([]byte, SolutionSize)
	binary.LittleEndian.PutUint64(b, uint64(s))
	return b
}

// Difficulty is the minimum acceptable magnitude of a work digest.
type Difficulty uint64

// ParseDifficulty parses a hex encoded difficulty of at most 16 characters.
func ParseDifficulty(s string) (Difficulty, error) {
	v, err := parseHex64(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDifficulty, err)
	}
	return Difficulty(v), nil
}

// String returns the difficulty as 16 lower case hex characters.
func (d Difficulty) String() string {
	return fmt.Sprintf("%016x", uint64(d))
}

// Multiply returns the difficulty scaled by a multiplier, i.e.
// 2^64 - (2^64 - d) / m. The result is rounded toward the higher, stricter
// value and clamped to the uint64 range.
func (d Difficulty) Multiply(multiplier float64) (Difficulty, error) {
	if !(multiplier > 0) || math.IsInf(multiplier, 0) {
		return 0, ErrInvalidMultiplier
	}
	gap := new(big.Float).SetPrec(floatPrec).SetInt(d.gap())
	gap.Quo(gap, new(big.Float).SetPrec(floatPrec).SetFloat64(multiplier))
	floor, _ := gap.Int(nil)
	res := new(big.Int).Sub(two64, floor)
	switch {
	case res.Sign() < 0:
		return 0, nil
	case res.Cmp(maxUint64) > 0:
		return math.MaxUint64, nil
	}
	return Difficulty(res.Uint64()), nil
}

// Multiplier returns how many times harder d is than base, i.e.
// (2^64 - base) / (2^64 - d).
func (d Difficulty) Multiplier(base Difficulty) float64 {
	num := new(big.Float).SetPrec(floatPrec).SetInt(base.gap())
	num.Quo(num, new(big.Float).SetPrec(floatPrec).SetInt(d.gap()))
	f, _ := num.Float64()
	return f
}

// Satisfies returns whether solution meets this difficulty for root.
func (d Difficulty) Satisfies(root Root, solution Solution) bool {
	return DifficultyOf(root, solution) >= d
}

func (d Difficulty) gap() *big.Int {
	return new(big.Int).Sub(two64, new(big.Int).SetUint64(uint64(d)))
}

// DifficultyOf returns the difficulty achieved by a solution for a root: the
// blake2b 8 byte digest of solution (little endian) followed by root, read as
// a little endian integer.
func DifficultyOf(root Root, solution Solution) Difficulty {
	var buf [SolutionSize + RootSize]byte
	binary.LittleEndian.PutUint64(buf[:SolutionSize], uint64(solution))
	copy(buf[SolutionSize:], root[:])
	h, _ := blake2b.New(SolutionSize, nil)
	h.Write(buf[:])
	return Difficulty(binary.LittleEndian.Uint64(h.Sum(nil)))
}

// Result is a generated solution together with the request parameters that
// produced it.
type Result struct {
	Solution   Solution
	Root       Root
	Difficulty Difficulty // base difficulty the request resolved to
	Multiplier float64    // multiplier applied on top of Difficulty
}

// Target returns the difficulty the search actually ran against.
func (r *Result) Target() Difficulty {
	target, err := r.Difficulty.Multiply(r.Multiplier)
	if err != nil {
		return r.Difficulty
	}
	return target
}

// AchievedDifficulty re-hashes the solution and returns its difficulty.
func (r *Result) AchievedDifficulty() Difficulty {
	return DifficultyOf(r.Root, r.Solution)
}

// AchievedMultiplier returns the achieved difficulty relative to the base
// difficulty of the request.
func (r *Result) AchievedMultiplier() float64 {
	return r.AchievedDifficulty().Multiplier(r.Difficulty)
}

func (r *Result) String() string {
	return fmt.Sprintf("work %s for %s (base %s x%.4g)", r.Solution, r.Root, r.Difficulty, r.Multiplier)
}

func parseHex64(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) == 0 || len(s) > 16 {
		return 0, fmt.Errorf("invalid hex length %d", len(s))
	}
	return strconv.ParseUint(s, 16, 64)
}
