package work

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const activeDifficultyCacheKey = "active_difficulty"

// ActiveDifficulty is a snapshot of the network difficulty reported by a node.
// It implements DifficultyPolicy using the minimum thresholds and the
// reported multiplier.
type ActiveDifficulty struct {
	Multiplier            float64
	NetworkCurrent        Difficulty
	NetworkMinimum        Difficulty
	NetworkReceiveCurrent Difficulty
	NetworkReceiveMinimum Difficulty
}

// DifficultyFor returns the network minimum for the block subtype.
func (d *ActiveDifficulty) DifficultyFor(block Block) (Difficulty, error) {
	return thresholdFor(block.WorkSubtype(), d.NetworkMinimum, d.NetworkReceiveMinimum)
}

// DifficultyForAny returns the highest network minimum.
func (d *ActiveDifficulty) DifficultyForAny() (Difficulty, error) {
	if d.NetworkMinimum > d.NetworkReceiveMinimum {
		return d.NetworkMinimum, nil
	}
	return d.NetworkReceiveMinimum, nil
}

// RecommendedMultiplier returns the multiplier reported by the node.
func (d *ActiveDifficulty) RecommendedMultiplier() (float64, error) {
	return d.Multiplier, nil
}

type activeDifficultyResponse struct {
	Multiplier            string `json:"multiplier"`
	NetworkCurrent        string `json:"network_current"`
	NetworkMinimum        string `json:"network_minimum"`
	NetworkReceiveCurrent string `json:"network_receive_current"`
	NetworkReceiveMinimum string `json:"network_receive_minimum"`
}

// parse converts the wire representation. Nodes that predate receive
// thresholds omit the receive fields, in which case the send values are used.
func (r *activeDifficultyResponse) parse() (*ActiveDifficulty, error) {
	multiplier, err := strconv.ParseFloat(r.Multiplier, 64)
	if err != nil {
		return nil, err
	}
	if !validMultiplier(multiplier) {
		return nil, ErrInvalidMultiplier
	}
	d := &ActiveDifficulty{Multiplier: multiplier}
	if d.NetworkCurrent, err = ParseDifficulty(r.NetworkCurrent); err != nil {
		return nil, err
	}
	if d.NetworkMinimum, err = ParseDifficulty(r.NetworkMinimum); err != nil {
		return nil, err
	}
	d.NetworkReceiveCurrent, d.NetworkReceiveMinimum = d.NetworkCurrent, d.NetworkMinimum
	if len(r.NetworkReceiveCurrent) > 0 {
		if d.NetworkReceiveCurrent, err = ParseDifficulty(r.NetworkReceiveCurrent); err != nil {
			return nil, err
		}
	}
	if len(r.NetworkReceiveMinimum) > 0 {
		if d.NetworkReceiveMinimum, err = ParseDifficulty(r.NetworkReceiveMinimum); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// NodePolicy is a DifficultyPolicy that asks a node for the active network
// difficulty. Answers are reused for DifficultyCacheExpiration.
type NodePolicy struct {
	config *NodeConfig
	client *http.Client
	cache  *cache.Cache
}

// NewNodePolicy creates a NodePolicy. A nil config uses the default config.
func NewNodePolicy(conf *NodeConfig) (*NodePolicy, error) {
	config, err := MergeNodeConfig(conf)
	if err != nil {
		return nil, err
	}
	expiration := time.Duration(config.DifficultyCacheExpiration) * time.Millisecond
	return &NodePolicy{
		config: config,
		client: &http.Client{Timeout: time.Duration(config.RPCTimeout) * time.Millisecond},
		cache:  cache.New(expiration, 2*expiration),
	}, nil
}

// ActiveDifficulty wraps ActiveDifficultyContext with background context.
func (p *NodePolicy) ActiveDifficulty() (*ActiveDifficulty, error) {
	return p.ActiveDifficultyContext(context.Background())
}

// ActiveDifficultyContext returns the network difficulty, from cache if a
// recent answer exists.
func (p *NodePolicy) ActiveDifficultyContext(ctx context.Context) (*ActiveDifficulty, error) {
	if d, ok := p.cache.Get(activeDifficultyCacheKey); ok {
		return d.(*ActiveDifficulty), nil
	}
	d, err := GetActiveDifficultyContext(ctx, p.client, p.config.RPCServerAddr)
	if err != nil {
		return nil, err
	}
	p.cache.Set(activeDifficultyCacheKey, d, cache.DefaultExpiration)
	return d, nil
}

// DifficultyFor returns the current network minimum for the block subtype.
func (p *NodePolicy) DifficultyFor(block Block) (Difficulty, error) {
	d, err := p.ActiveDifficulty()
	if err != nil {
		return 0, err
	}
	return d.DifficultyFor(block)
}

// DifficultyForAny returns the current highest network minimum.
func (p *NodePolicy) DifficultyForAny() (Difficulty, error) {
	d, err := p.ActiveDifficulty()
	if err != nil {
		return 0, err
	}
	return d.DifficultyForAny()
}

// RecommendedMultiplier returns the current network multiplier.
func (p *NodePolicy) RecommendedMultiplier() (float64, error) {
	d, err := p.ActiveDifficulty()
	if err != nil {
		return 0, err
	}
	return d.RecommendedMultiplier()
}

// GetActiveDifficultyContext calls the active_difficulty action of a node RPC
// server.
func GetActiveDifficultyContext(ctx context.Context, client *http.Client, address string) (*ActiveDifficulty, error) {
	resp := &activeDifficultyResponse{}
	err := callWithCode(ctx, client, address, "active_difficulty", nil, resp)
	if err != nil {
		return nil, err
	}
	d, err := resp.parse()
	if err != nil {
		return nil, errorWithCode{err: err, code: errCodeDecodeError}
	}
	return d, nil
}

// NodeGenerator delegates work generation to a node's work_generate action.
// Cancelling a request sends work_cancel for its root.
type NodeGenerator struct {
	*baseGenerator
	config *NodeConfig
}

// NewNodeGenerator creates a generator backed by a node RPC server. A nil
// config uses the default config.
func NewNodeGenerator(conf *NodeConfig) (*NodeGenerator, error) {
	config, err := MergeNodeConfig(conf)
	if err != nil {
		return nil, err
	}
	s := &nodeSearcher{
		config:    config,
		client:    &http.Client{},
		rpcClient: &http.Client{Timeout: time.Duration(config.RPCTimeout) * time.Millisecond},
	}
	g := &NodeGenerator{
		baseGenerator: newBaseGenerator("node", s, config.Generator),
		config:        config,
	}
	s.log = g.log
	return g, nil
}

// RPCServerAddr returns the node RPC server address.
func (g *NodeGenerator) RPCServerAddr() string {
	return g.config.RPCServerAddr
}

type workGenerateResponse struct {
	Work       string `json:"work"`
	Difficulty string `json:"difficulty"`
	Multiplier string `json:"multiplier"`
	Hash       string `json:"hash"`
}

type nodeSearcher struct {
	config    *NodeConfig
	client    *http.Client // work_generate, bound by the request context only
	rpcClient *http.Client
	log       *zap.Logger
}

func (s *nodeSearcher) search(ctx context.Context, root Root, target Difficulty) (Solution, error) {
	resp := &workGenerateResponse{}
	err := callWithCode(ctx, s.client, s.config.RPCServerAddr, "work_generate", map[string]interface{}{
		"hash":       root.String(),
		"difficulty": target.String(),
	}, resp)
	if err != nil {
		if ctx.Err() != nil {
			s.cancel(root)
			return 0, ctx.Err()
		}
		return 0, err
	}

	solution, err := ParseSolution(resp.Work)
	if err != nil {
		return 0, errorWithCode{err: err, code: errCodeDecodeError}
	}
	return solution, nil
}

// cancel asks the node to stop generating work for root. Errors are logged and
// otherwise ignored.
func (s *nodeSearcher) cancel(root Root) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.config.RPCTimeout)*time.Millisecond)
	defer cancel()
	err := callWithCode(ctx, s.rpcClient, s.config.RPCServerAddr, "work_cancel", map[string]interface{}{
		"hash": root.String(),
	}, nil)
	if err != nil {
		s.log.Debug("work_cancel error", zap.Stringer("root", root), zap.Error(err))
	}
}

func (s *nodeSearcher) release() error {
	s.client.CloseIdleConnections()
	s.rpcClient.CloseIdleConnections()
	return nil
}
