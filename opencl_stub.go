//go:build !opencl

package work

// OpenCLGenerator generates work on an OpenCL device. This build has no
// OpenCL support; build with the opencl tag to enable it.
type OpenCLGenerator struct {
	*baseGenerator
}

// NewOpenCLGenerator validates conf and returns ErrOpenCLUnavailable.
func NewOpenCLGenerator(conf *OpenCLConfig) (*OpenCLGenerator, error) {
	if _, err := MergeOpenCLConfig(conf); err != nil {
		return nil, err
	}
	return nil, ErrOpenCLUnavailable
}

// Device returns the zero DeviceInfo.
func (g *OpenCLGenerator) Device() DeviceInfo {
	return DeviceInfo{}
}

// OpenCLDevices returns ErrOpenCLUnavailable.
func OpenCLDevices() ([]DeviceInfo, error) {
	return nil, ErrOpenCLUnavailable
}
