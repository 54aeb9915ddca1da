package work

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBlock struct {
	root    Root
	subtype Subtype
}

func (b *testBlock) WorkRoot() Root       { return b.root }
func (b *testBlock) WorkSubtype() Subtype { return b.subtype }

// testPolicy is a DifficultyPolicy whose values can change at any time.
type testPolicy struct {
	lock       sync.Mutex
	send       Difficulty
	receive    Difficulty
	multiplier float64
	err        error
	calls      int
}

func (p *testPolicy) set(send, receive Difficulty) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.send, p.receive = send, receive
}

func (p *testPolicy) DifficultyFor(block Block) (Difficulty, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	return thresholdFor(block.WorkSubtype(), p.send, p.receive)
}

func (p *testPolicy) DifficultyForAny() (Difficulty, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	if p.send > p.receive {
		return p.send, nil
	}
	return p.receive, nil
}

func (p *testPolicy) RecommendedMultiplier() (float64, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.multiplier == 0 {
		return 1, nil
	}
	return p.multiplier, nil
}

func TestConstantPolicy(t *testing.T) {
	v2 := PolicyV2()
	tests := []struct {
		subtype Subtype
		want    Difficulty
	}{
		{SubtypeSend, DifficultyV2Send},
		{SubtypeChange, DifficultyV2Send},
		{SubtypeEpoch, DifficultyV2Send},
		{SubtypeReceive, DifficultyV2Receive},
		{SubtypeOpen, DifficultyV2Receive},
	}
	for _, tt := range tests {
		d, err := v2.DifficultyFor(&testBlock{subtype: tt.subtype})
		require.NoError(t, err)
		assert.Equal(t, tt.want, d, tt.subtype.String())
	}

	_, err := v2.DifficultyFor(&testBlock{subtype: Subtype(42)})
	assert.ErrorIs(t, err, ErrUnknownSubtype)

	anyDifficulty, err := v2.DifficultyForAny()
	require.NoError(t, err)
	assert.Equal(t, DifficultyV2Send, anyDifficulty)

	m, err := v2.RecommendedMultiplier()
	require.NoError(t, err)
	assert.Equal(t, 1.0, m)

	d, err := PolicyV1().DifficultyFor(&testBlock{subtype: SubtypeOpen})
	require.NoError(t, err)
	assert.Equal(t, DifficultyV1, d)
}

func TestSubtype(t *testing.T) {
	assert.True(t, SubtypeReceive.IsReceive())
	assert.True(t, SubtypeOpen.IsReceive())
	assert.False(t, SubtypeSend.IsReceive())
	assert.Equal(t, "subtype(9)", Subtype(9).String())
}

func TestDifficultySourceResolve(t *testing.T) {
	base, m, err := LiteralDifficulty(DifficultyV1).Resolve()
	require.NoError(t, err)
	assert.Equal(t, DifficultyV1, base)
	assert.Equal(t, 1.0, m)

	policy := &testPolicy{send: DifficultyV2Send, receive: DifficultyV2Receive, multiplier: 2}

	base, m, err = PolicyDifficulty(policy, nil, 1.5).Resolve()
	require.NoError(t, err)
	assert.Equal(t, DifficultyV2Send, base)
	assert.Equal(t, 3.0, m)

	source := PolicyDifficulty(policy, &testBlock{subtype: SubtypeReceive}, 1)
	base, m, err = source.Resolve()
	require.NoError(t, err)
	assert.Equal(t, DifficultyV2Receive, base)
	assert.Equal(t, 2.0, m)

	target, err := source.Target()
	require.NoError(t, err)
	want, err := DifficultyV2Receive.Multiply(2)
	require.NoError(t, err)
	assert.Equal(t, want, target)

	policy.set(DifficultyV1, DifficultyV1)
	base, _, err = source.Resolve()
	require.NoError(t, err)
	assert.Equal(t, DifficultyV1, base, "policy is evaluated on every resolve")

	_, _, err = PolicyDifficulty(nil, nil, 1).Resolve()
	assert.ErrorIs(t, err, ErrNoDifficultyPolicy)

	_, _, err = PolicyDifficulty(policy, nil, 0).Resolve()
	assert.ErrorIs(t, err, ErrInvalidMultiplier)

	errPolicy := errors.New("policy down")
	policy.err = errPolicy
	_, _, err = PolicyDifficulty(policy, nil, 1).Resolve()
	assert.ErrorIs(t, err, errPolicy)
}
