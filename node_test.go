package work

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testNode is a fake node RPC server.
type testNode struct {
	lock    sync.Mutex
	actions map[string]int
	handler map[string]func(params map[string]interface{}) interface{}
}

func newTestNode(t *testing.T) (*testNode, *httptest.Server) {
	n := &testNode{
		actions: make(map[string]int),
		handler: make(map[string]func(map[string]interface{}) interface{}),
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := make(map[string]interface{})
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		action, _ := params["action"].(string)

		n.lock.Lock()
		n.actions[action]++
		h := n.handler[action]
		n.lock.Unlock()

		var resp interface{} = map[string]string{"error": "Unknown command"}
		if h != nil {
			resp = h(params)
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return n, ts
}

func (n *testNode) handle(action string, h func(params map[string]interface{}) interface{}) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.handler[action] = h
}

func (n *testNode) count(action string) int {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.actions[action]
}

func activeDifficultyHandler(params map[string]interface{}) interface{} {
	return map[string]string{
		"multiplier":              "1.5",
		"network_current":         "fffffffaaaaaaaab",
		"network_minimum":         "fffffff800000000",
		"network_receive_current": "fffffe5555555556",
		"network_receive_minimum": "fffffe0000000000",
	}
}

func TestNodePolicy(t *testing.T) {
	node, ts := newTestNode(t)
	node.handle("active_difficulty", activeDifficultyHandler)

	p, err := NewNodePolicy(&NodeConfig{RPCServerAddr: ts.URL, DifficultyCacheExpiration: 60000})
	require.NoError(t, err)

	d, err := p.ActiveDifficulty()
	require.NoError(t, err)
	assert.Equal(t, 1.5, d.Multiplier)
	assert.Equal(t, Difficulty(0xfffffffaaaaaaaab), d.NetworkCurrent)
	assert.Equal(t, DifficultyV2Send, d.NetworkMinimum)
	assert.Equal(t, DifficultyV2Receive, d.NetworkReceiveMinimum)

	send, err := p.DifficultyFor(&testBlock{subtype: SubtypeSend})
	require.NoError(t, err)
	assert.Equal(t, DifficultyV2Send, send)
	receive, err := p.DifficultyFor(&testBlock{subtype: SubtypeOpen})
	require.NoError(t, err)
	assert.Equal(t, DifficultyV2Receive, receive)
	anyDifficulty, err := p.DifficultyForAny()
	require.NoError(t, err)
	assert.Equal(t, DifficultyV2Send, anyDifficulty)
	m, err := p.RecommendedMultiplier()
	require.NoError(t, err)
	assert.Equal(t, 1.5, m)

	assert.Equal(t, 1, node.count("active_difficulty"), "answers are cached")
}

func TestNodePolicyExpiration(t *testing.T) {
	node, ts := newTestNode(t)
	node.handle("active_difficulty", activeDifficultyHandler)

	p, err := NewNodePolicy(&NodeConfig{RPCServerAddr: ts.URL, DifficultyCacheExpiration: 20})
	require.NoError(t, err)

	_, err = p.DifficultyForAny()
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = p.DifficultyForAny()
	require.NoError(t, err)
	assert.Equal(t, 2, node.count("active_difficulty"))
}

func TestNodePolicyLegacyNode(t *testing.T) {
	node, ts := newTestNode(t)
	node.handle("active_difficulty", func(map[string]interface{}) interface{} {
		return map[string]string{
			"multiplier":      "1",
			"network_current": "ffffffc000000000",
			"network_minimum": "ffffffc000000000",
		}
	})

	d, err := GetActiveDifficultyContext(context.Background(), http.DefaultClient, ts.URL)
	require.NoError(t, err)
	assert.Equal(t, DifficultyV1, d.NetworkReceiveMinimum)
}

func TestNodePolicyError(t *testing.T) {
	_, ts := newTestNode(t)

	p, err := NewNodePolicy(&NodeConfig{RPCServerAddr: ts.URL})
	require.NoError(t, err)

	_, err = p.DifficultyForAny()
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "active_difficulty", rpcErr.Action)
	assert.Equal(t, "Unknown command", rpcErr.Message)
	assert.Equal(t, int32(-1), rpcErr.Code())
}

func TestNodeGenerator(t *testing.T) {
	node, ts := newTestNode(t)
	params := make(chan map[string]interface{}, 1)
	node.handle("work_generate", func(p map[string]interface{}) interface{} {
		params <- p
		return map[string]string{
			"work":       testWork.String(),
			"difficulty": testWorkDiff.String(),
			"multiplier": "1.39",
			"hash":       testRootHex,
		}
	})

	g, err := NewNodeGenerator(&NodeConfig{RPCServerAddr: ts.URL})
	require.NoError(t, err)
	defer g.Shutdown()
	assert.Equal(t, ts.URL, g.RPCServerAddr())

	h, err := g.Generate(testRoot(t), DifficultyV1)
	require.NoError(t, err)
	result, err := waitResult(t, h)
	require.NoError(t, err)
	assert.Equal(t, testWork, result.Solution)

	p := <-params
	assert.Equal(t, testRootHex, p["hash"])
	assert.Equal(t, "ffffffc000000000", p["difficulty"])
}

func TestNodeGeneratorCancel(t *testing.T) {
	node, ts := newTestNode(t)
	release := make(chan struct{})
	cancelled := make(chan string, 1)
	node.handle("work_generate", func(map[string]interface{}) interface{} {
		<-release
		return map[string]string{"error": "Cancelled"}
	})
	node.handle("work_cancel", func(p map[string]interface{}) interface{} {
		cancelled <- p["hash"].(string)
		return map[string]string{"success": ""}
	})
	defer close(release)

	g, err := NewNodeGenerator(&NodeConfig{RPCServerAddr: ts.URL})
	require.NoError(t, err)
	defer g.Shutdown()

	h, err := g.Generate(testRoot(t), DifficultyV1)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	h.Cancel()

	select {
	case hash := <-cancelled:
		assert.Equal(t, testRootHex, hash)
	case <-time.After(5 * time.Second):
		t.Fatal("work_cancel not sent")
	}
	_, err = waitResult(t, h)
	assert.True(t, IsCancelled(err))
}

func TestMeasureNodes(t *testing.T) {
	node, ts := newTestNode(t)
	node.handle("active_difficulty", activeDifficultyHandler)
	_, bad := newTestNode(t)

	results, err := MeasureNodes(context.Background(), []string{bad.URL, ts.URL}, 1000)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ts.URL, results[0].Addr)
}
