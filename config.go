package work

import (
	"runtime"

	"github.com/imdario/mergo"
	"go.uber.org/zap"
)

const (
	maxCPUThreads = 256

	// DPoWServiceURL is the endpoint of the Nano distributed proof of work
	// service.
	DPoWServiceURL = "https://dpow.nanocenter.org/service/"

	// BPoWServiceURL is the endpoint of the Banano proof of work service.
	BPoWServiceURL = "https://bpow.banano.cc/service/"
)

// GeneratorConfig is the configuration shared by every generator backend.
type GeneratorConfig struct {
	Policy  DifficultyPolicy // Policy used by multiplier and block based requests. Nil means PolicyV2.
	Logger  *zap.Logger      // Logger for request lifecycle events. Nil means no logging.
	Metrics *Metrics         // Optional prometheus metrics.
}

// DefaultGeneratorConfig is the default generator config.
var DefaultGeneratorConfig = GeneratorConfig{
	Policy:  nil,
	Logger:  nil,
	Metrics: nil,
}

// GetDefaultGeneratorConfig returns the default generator config.
func GetDefaultGeneratorConfig() *GeneratorConfig {
	genConf := DefaultGeneratorConfig
	return &genConf
}

// CPUConfig is the CPU generator configuration.
type CPUConfig struct {
	Threads   int32            // Number of search goroutines, between 1 and 256. Zero means number of CPUs minus one.
	Generator *GeneratorConfig // Generator config. Nil means default.
}

// DefaultCPUConfig is the default CPU generator config. Threads is filled in
// by GetDefaultCPUConfig from the number of available CPUs.
var DefaultCPUConfig = CPUConfig{
	Threads:   0,
	Generator: nil,
}

// GetDefaultCPUConfig returns the default CPU generator config.
func GetDefaultCPUConfig() *CPUConfig {
	cpuConf := DefaultCPUConfig
	cpuConf.Threads = defaultThreads()
	return &cpuConf
}

func defaultThreads() int32 {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	if n > maxCPUThreads {
		n = maxCPUThreads
	}
	return int32(n)
}

// OpenCLConfig is the OpenCL generator configuration.
type OpenCLConfig struct {
	Platform       int32            // OpenCL platform index.
	Device         int32            // Device index within the platform.
	GlobalWorkSize int32            // Number of nonces tried per kernel dispatch.
	Generator      *GeneratorConfig // Generator config. Nil means default.
}

// DefaultOpenCLConfig is the default OpenCL generator config.
var DefaultOpenCLConfig = OpenCLConfig{
	Platform:       0,
	Device:         0,
	GlobalWorkSize: 1 << 20,
	Generator:      nil,
}

// GetDefaultOpenCLConfig returns the default OpenCL generator config.
func GetDefaultOpenCLConfig() *OpenCLConfig {
	clConf := DefaultOpenCLConfig
	return &clConf
}

// RemoteConfig is the configuration of a remote (DPoW/BPoW style) work
// service.
type RemoteConfig struct {
	URL             string           // Service endpoint.
	User            string           // Service user name.
	APIKey          string           // Service API key.
	Timeout         int32            // Timeout in second sent to the service.
	TransportMargin int32            // Extra time in millisecond allowed for the HTTP round trip on top of Timeout.
	Generator       *GeneratorConfig // Generator config. Nil means default.
}

// DefaultRemoteConfig is the default remote service config.
var DefaultRemoteConfig = RemoteConfig{
	URL:             "",
	User:            "",
	APIKey:          "",
	Timeout:         15,
	TransportMargin: 5000,
	Generator:       nil,
}

// GetDefaultRemoteConfig returns the default remote service config.
func GetDefaultRemoteConfig() *RemoteConfig {
	remoteConf := DefaultRemoteConfig
	return &remoteConf
}

// DPoWConfig returns a remote config for the Nano DPoW service.
func DPoWConfig(user, apiKey string) *RemoteConfig {
	return &RemoteConfig{URL: DPoWServiceURL, User: user, APIKey: apiKey}
}

// BPoWConfig returns a remote config for the BPoW service.
func BPoWConfig(user, apiKey string) *RemoteConfig {
	return &RemoteConfig{URL: BPoWServiceURL, User: user, APIKey: apiKey}
}

// NodeConfig is the configuration for talking to a node RPC server, used by
// NodeGenerator and NodePolicy.
type NodeConfig struct {
	RPCServerAddr             string           // Node RPC server address.
	RPCTimeout                int32            // Timeout for each RPC call in millisecond. work_generate calls are bound by the request instead.
	DifficultyCacheExpiration int32            // How long an active_difficulty answer is reused, in millisecond.
	Generator                 *GeneratorConfig // Generator config. Nil means default.
}

// DefaultNodeConfig is the default node config.
var DefaultNodeConfig = NodeConfig{
	RPCServerAddr:             "http://127.0.0.1:7076",
	RPCTimeout:                10000,
	DifficultyCacheExpiration: 5000,
	Generator:                 nil,
}

// GetDefaultNodeConfig returns the default node config.
func GetDefaultNodeConfig() *NodeConfig {
	nodeConf := DefaultNodeConfig
	return &nodeConf
}

// TrackerConfig is the configuration of a websocket DifficultyTracker.
type TrackerConfig struct {
	WebsocketAddr        string           // Node websocket address.
	WsHandshakeTimeout   int32            // WebSocket handshake timeout in millisecond.
	MinReconnectInterval int32            // Min reconnect interval in millisecond.
	MaxReconnectInterval int32            // Max reconnect interval in millisecond.
	Fallback             DifficultyPolicy // Policy used until the first update arrives. Nil means PolicyV2.
	Logger               *zap.Logger      // Nil means no logging.
}

// DefaultTrackerConfig is the default tracker config.
var DefaultTrackerConfig = TrackerConfig{
	WebsocketAddr:        "ws://127.0.0.1:7078",
	WsHandshakeTimeout:   5000,
	MinReconnectInterval: 1000,
	MaxReconnectInterval: 64000,
	Fallback:             nil,
	Logger:               nil,
}

// GetDefaultTrackerConfig returns the default tracker config.
func GetDefaultTrackerConfig() *TrackerConfig {
	trackerConf := DefaultTrackerConfig
	return &trackerConf
}

// MergeGeneratorConfig merges a given generator config with the default
// generator config. Any non zero value fields will override the default
// config.
func MergeGeneratorConfig(conf *GeneratorConfig) (*GeneratorConfig, error) {
	merged := GetDefaultGeneratorConfig()
	if conf != nil {
		err := mergo.Merge(merged, conf, mergo.WithOverride)
		if err != nil {
			return nil, err
		}
	}
	if merged.Policy == nil {
		merged.Policy = PolicyV2()
	}
	if merged.Logger == nil {
		merged.Logger = zap.NewNop()
	}
	return merged, nil
}

// MergeCPUConfig merges a given CPU config with the default CPU config. Any
// non zero value fields will override the default config.
func MergeCPUConfig(conf *CPUConfig) (*CPUConfig, error) {
	merged := GetDefaultCPUConfig()
	if conf != nil {
		err := mergo.Merge(merged, conf, mergo.WithOverride)
		if err != nil {
			return nil, err
		}
	}
	if merged.Threads < 1 || merged.Threads > maxCPUThreads {
		return nil, ErrInvalidThreadCount
	}
	genConf, err := MergeGeneratorConfig(merged.Generator)
	if err != nil {
		return nil, err
	}
	merged.Generator = genConf
	return merged, nil
}

// MergeOpenCLConfig merges a given OpenCL config with the default OpenCL
// config. Any non zero value fields will override the default config.
func MergeOpenCLConfig(conf *OpenCLConfig) (*OpenCLConfig, error) {
	merged := GetDefaultOpenCLConfig()
	if conf != nil {
		err := mergo.Merge(merged, conf, mergo.WithOverride)
		if err != nil {
			return nil, err
		}
	}
	if merged.Platform < 0 || merged.Device < 0 || merged.GlobalWorkSize < 0 {
		return nil, ErrInvalidDevice
	}
	genConf, err := MergeGeneratorConfig(merged.Generator)
	if err != nil {
		return nil, err
	}
	merged.Generator = genConf
	return merged, nil
}

// MergeRemoteConfig merges a given remote config with the default remote
// config. Any non zero value fields will override the default config.
func MergeRemoteConfig(conf *RemoteConfig) (*RemoteConfig, error) {
	merged := GetDefaultRemoteConfig()
	if conf != nil {
		err := mergo.Merge(merged, conf, mergo.WithOverride)
		if err != nil {
			return nil, err
		}
	}
	if len(merged.URL) == 0 || len(merged.User) == 0 || len(merged.APIKey) == 0 {
		return nil, ErrInvalidRemoteConfig
	}
	genConf, err := MergeGeneratorConfig(merged.Generator)
	if err != nil {
		return nil, err
	}
	merged.Generator = genConf
	return merged, nil
}

// MergeNodeConfig merges a given node config with the default node config.
// Any non zero value fields will override the default config.
func MergeNodeConfig(conf *NodeConfig) (*NodeConfig, error) {
	merged := GetDefaultNodeConfig()
	if conf != nil {
		err := mergo.Merge(merged, conf, mergo.WithOverride)
		if err != nil {
			return nil, err
		}
	}
	if len(merged.RPCServerAddr) == 0 {
		return nil, ErrInvalidNodeConfig
	}
	genConf, err := MergeGeneratorConfig(merged.Generator)
	if err != nil {
		return nil, err
	}
	merged.Generator = genConf
	return merged, nil
}

// MergeTrackerConfig merges a given tracker config with the default tracker
// config. Any non zero value fields will override the default config.
func MergeTrackerConfig(conf *TrackerConfig) (*TrackerConfig, error) {
	merged := GetDefaultTrackerConfig()
	if conf != nil {
		err := mergo.Merge(merged, conf, mergo.WithOverride)
		if err != nil {
			return nil, err
		}
	}
	if merged.Fallback == nil {
		merged.Fallback = PolicyV2()
	}
	if merged.Logger == nil {
		merged.Logger = zap.NewNop()
	}
	return merged, nil
}
