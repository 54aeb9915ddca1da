package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	work "github.com/nanowork/nano-work-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// backend is every generator built from the config plus what has to be
// closed with it.
type backend struct {
	generator work.Generator
	cache     *work.WorkCache
	policy    work.DifficultyPolicy
	closers   []func() error
}

func (b *backend) Close() error {
	if b.generator != nil {
		b.generator.Shutdown()
	}
	var errs *multierror.Error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func newPolicy(conf *Config, b *backend) (work.DifficultyPolicy, error) {
	switch conf.Policy {
	case "v1":
		return work.PolicyV1(), nil
	case "node":
		return work.NewNodePolicy(&work.NodeConfig{RPCServerAddr: conf.Node.RPC})
	case "tracker":
		tracker, err := work.NewDifficultyTracker(&work.TrackerConfig{WebsocketAddr: conf.Node.Websocket, Logger: logger})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, tracker.Close)
		select {
		case <-tracker.Ready():
		case <-time.After(5 * time.Second):
			logger.Warn("No active difficulty received, using fallback policy")
		}
		return tracker, nil
	default:
		return work.PolicyV2(), nil
	}
}

func newMetrics(addr string, b *backend) (*work.Metrics, error) {
	if len(addr) == 0 {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	metrics, err := work.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	b.closers = append(b.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return metrics, nil
}

// newBackend builds the configured generators. More than one enabled backend
// are raced by a CombinedGenerator.
func newBackend(conf *Config) (*backend, error) {
	b := &backend{}
	err := func() error {
		policy, err := newPolicy(conf, b)
		if err != nil {
			return err
		}
		b.policy = policy

		metrics, err := newMetrics(conf.Metrics, b)
		if err != nil {
			return err
		}
		genConf := &work.GeneratorConfig{Policy: policy, Logger: logger, Metrics: metrics}

		if conf.Cache > 0 {
			b.cache, err = work.NewWorkCache(conf.Cache)
			if err != nil {
				return err
			}
			b.cache.SetMetrics(metrics)
		}

		var gens []work.Generator
		shutdown := func() {
			for _, g := range gens {
				g.Shutdown()
			}
		}

		if conf.CPU.Enabled {
			g, err := work.NewCPUGenerator(&work.CPUConfig{Threads: conf.CPU.Threads, Generator: genConf})
			if err != nil {
				return err
			}
			gens = append(gens, g)
		}
		if conf.OpenCL.Enabled {
			g, err := work.NewOpenCLGenerator(&work.OpenCLConfig{
				Platform:       conf.OpenCL.Platform,
				Device:         conf.OpenCL.Device,
				GlobalWorkSize: conf.OpenCL.GlobalWorkSize,
				Generator:      genConf,
			})
			if err != nil {
				shutdown()
				return err
			}
			gens = append(gens, g)
		}
		if conf.Remote.Enabled {
			g, err := work.NewRemoteGenerator(&work.RemoteConfig{
				URL:       conf.Remote.URL,
				User:      conf.Remote.User,
				APIKey:    conf.Remote.APIKey,
				Timeout:   conf.Remote.Timeout,
				Generator: genConf,
			})
			if err != nil {
				shutdown()
				return err
			}
			gens = append(gens, g)
		}
		if conf.Node.Enabled {
			g, err := work.NewNodeGenerator(&work.NodeConfig{RPCServerAddr: conf.Node.RPC, Generator: genConf})
			if err != nil {
				shutdown()
				return err
			}
			gens = append(gens, g)
		}

		if len(gens) == 1 {
			b.generator = gens[0]
			return nil
		}
		combined, err := work.NewCombinedGeneratorWithConfig(genConf, gens...)
		if err != nil {
			shutdown()
			return err
		}
		b.generator = combined
		return nil
	}()
	if err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}
