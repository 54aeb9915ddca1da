package work

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRemoteServer(t *testing.T, handler func(req *remoteRequest) (int, interface{})) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		req := &remoteRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		status, resp := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if s, ok := resp.(string); ok {
			w.Write([]byte(s))
			return
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestRemote(t *testing.T, url string) *RemoteGenerator {
	g, err := NewRemoteGenerator(&RemoteConfig{URL: url, User: "user", APIKey: "key", Timeout: 3})
	require.NoError(t, err)
	t.Cleanup(g.Shutdown)
	return g
}

func TestRemoteGenerator(t *testing.T) {
	root := testRoot(t)
	reqs := make(chan *remoteRequest, 1)
	ts := newRemoteServer(t, func(req *remoteRequest) (int, interface{}) {
		reqs <- req
		return http.StatusOK, map[string]string{"work": testWork.String()}
	})

	g := newTestRemote(t, ts.URL)
	assert.Equal(t, ts.URL, g.URL())

	h, err := g.Generate(root, DifficultyV1)
	require.NoError(t, err)
	result, err := waitResult(t, h)
	require.NoError(t, err)
	assert.Equal(t, testWork, result.Solution)

	got := <-reqs
	assert.Equal(t, "user", got.User)
	assert.Equal(t, "key", got.APIKey)
	assert.Equal(t, int32(3), got.Timeout)
	assert.Equal(t, testRootHex, got.Hash)
	assert.Equal(t, "ffffffc000000000", got.Difficulty)
}

func TestRemoteGeneratorErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		resp      interface{}
		timeout   bool
		temporary bool
	}{
		{"timeout", http.StatusOK, map[string]interface{}{"error": "Timeout reached without work", "timeout": true}, true, true},
		{"credentials", http.StatusOK, map[string]interface{}{"error": "Invalid credentials"}, false, false},
		{"status", http.StatusServiceUnavailable, "maintenance", false, false},
		{"no work", http.StatusOK, map[string]interface{}{}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newRemoteServer(t, func(req *remoteRequest) (int, interface{}) {
				return tt.status, tt.resp
			})
			g := newTestRemote(t, ts.URL)

			h, err := g.Generate(testRoot(t), DifficultyV1)
			require.NoError(t, err)
			_, err = waitResult(t, h)
			require.Error(t, err)
			assert.Equal(t, StateFailed, h.State())

			var remoteErr *RemoteError
			require.True(t, errors.As(err, &remoteErr), "got %T: %v", err, err)
			assert.Equal(t, tt.timeout, remoteErr.Timeout())
			assert.Equal(t, tt.temporary, remoteErr.Temporary())
		})
	}
}

func TestRemoteGeneratorInvalidWork(t *testing.T) {
	ts := newRemoteServer(t, func(req *remoteRequest) (int, interface{}) {
		return http.StatusOK, map[string]string{"work": "0000000000000000"}
	})
	g := newTestRemote(t, ts.URL)

	h, err := g.Generate(testRoot(t), DifficultyV1)
	require.NoError(t, err)
	_, err = waitResult(t, h)
	assert.ErrorIs(t, err, ErrInvalidSolution)
}

func TestRemoteGeneratorNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	g := newTestRemote(t, url)
	h, err := g.Generate(testRoot(t), DifficultyV1)
	require.NoError(t, err)
	_, err = waitResult(t, h)
	require.Error(t, err)

	var codeErr ErrorWithCode
	require.True(t, errors.As(err, &codeErr))
	assert.Equal(t, errCodeNetworkError, codeErr.Code())
}

func TestRemoteGeneratorCancel(t *testing.T) {
	release := make(chan struct{})
	ts := newRemoteServer(t, func(req *remoteRequest) (int, interface{}) {
		<-release
		return http.StatusOK, map[string]string{"work": testWork.String()}
	})
	defer close(release)
	g := newTestRemote(t, ts.URL)

	h, err := g.Generate(testRoot(t), DifficultyV1)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	h.Cancel()

	_, err = waitResult(t, h)
	assert.True(t, IsCancelled(err))
}

func TestRemoteConfig(t *testing.T) {
	_, err := NewRemoteGenerator(&RemoteConfig{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrInvalidRemoteConfig)

	conf := DPoWConfig("user", "key")
	assert.Equal(t, DPoWServiceURL, conf.URL)
	merged, err := MergeRemoteConfig(BPoWConfig("user", "key"))
	require.NoError(t, err)
	assert.Equal(t, BPoWServiceURL, merged.URL)
	assert.Equal(t, int32(15), merged.Timeout)
	assert.Equal(t, int32(5000), merged.TransportMargin)
}
