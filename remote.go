package work

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// RemoteGenerator delegates work generation to a DPoW/BPoW style service.
// Cancelling a request abandons the in-flight HTTP call; the service is not
// told.
type RemoteGenerator struct {
	*baseGenerator
	config *RemoteConfig
}

// NewRemoteGenerator creates a generator backed by a remote work service.
func NewRemoteGenerator(conf *RemoteConfig) (*RemoteGenerator, error) {
	config, err := MergeRemoteConfig(conf)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRemoteConfig, err)
	}
	s := &remoteSearcher{
		service: u.Host,
		config:  config,
		client: &http.Client{
			Timeout: time.Duration(config.Timeout)*time.Second + time.Duration(config.TransportMargin)*time.Millisecond,
		},
	}
	g := &RemoteGenerator{
		baseGenerator: newBaseGenerator("remote", s, config.Generator),
		config:        config,
	}
	s.log = g.log
	return g, nil
}

// URL returns the service endpoint.
func (g *RemoteGenerator) URL() string {
	return g.config.URL
}

type remoteRequest struct {
	User       string `json:"user"`
	APIKey     string `json:"api_key"`
	Timeout    int32  `json:"timeout"`
	Hash       string `json:"hash"`
	Difficulty string `json:"difficulty"`
}

type remoteResponse struct {
	Work    string `json:"work"`
	Error   string `json:"error"`
	Timeout bool   `json:"timeout"`
}

type remoteSearcher struct {
	service string
	config  *RemoteConfig
	client  *http.Client
	log     *zap.Logger
}

func (s *remoteSearcher) search(ctx context.Context, root Root, target Difficulty) (Solution, error) {
	body, err := json.Marshal(&remoteRequest{
		User:       s.config.User,
		APIKey:     s.config.APIKey,
		Timeout:    s.config.Timeout,
		Hash:       root.String(),
		Difficulty: target.String(),
	})
	if err != nil {
		return 0, errorWithCode{err: err, code: errCodeEncodeError}
	}

	status, data, err := post(ctx, s.client, s.config.URL, body)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errorWithCode{err: err, code: errCodeNetworkError}
	}

	resp := &remoteResponse{}
	if err := json.Unmarshal(data, resp); err != nil {
		if status/100 != 2 {
			return 0, NewRemoteError(s.service, http.StatusText(status), false)
		}
		return 0, errorWithCode{err: err, code: errCodeDecodeError}
	}
	if len(resp.Error) > 0 {
		s.log.Debug("Remote work service error", zap.String("error", resp.Error), zap.Bool("timeout", resp.Timeout))
		return 0, NewRemoteError(s.service, resp.Error, resp.Timeout)
	}
	if status/100 != 2 {
		return 0, NewRemoteError(s.service, http.StatusText(status), false)
	}
	if len(resp.Work) == 0 {
		return 0, NewRemoteError(s.service, "response contains no work", false)
	}

	solution, err := ParseSolution(resp.Work)
	if err != nil {
		return 0, errorWithCode{err: err, code: errCodeDecodeError}
	}
	return solution, nil
}

func (s *remoteSearcher) release() error {
	s.client.CloseIdleConnections()
	return nil
}
