//go:build opencl

package work

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
	"go.uber.org/zap"
)

// OpenCLGenerator generates work on an OpenCL device. The device context,
// command queue, kernel and buffers live as long as the generator and are
// only used by its single consumer goroutine.
type OpenCLGenerator struct {
	*baseGenerator
	searcher *openclSearcher
}

// NewOpenCLGenerator creates an OpenCL work generator on the configured
// platform and device. It fails with ErrOpenCLUnavailable when no platform is
// present and with ErrInvalidDevice when an index is out of range.
func NewOpenCLGenerator(conf *OpenCLConfig) (*OpenCLGenerator, error) {
	config, err := MergeOpenCLConfig(conf)
	if err != nil {
		return nil, err
	}
	s, err := newOpenCLSearcher(config)
	if err != nil {
		return nil, err
	}
	g := &OpenCLGenerator{
		baseGenerator: newBaseGenerator("opencl", s, config.Generator),
		searcher:      s,
	}
	g.log.Debug("OpenCL generator created",
		zap.String("device", s.info.Name),
		zap.String("platform", s.info.PlatformName),
		zap.Int("global_work_size", s.globalWorkSize))
	return g, nil
}

// Device returns the device the generator runs on.
func (g *OpenCLGenerator) Device() DeviceInfo {
	return g.searcher.info
}

// OpenCLDevices lists every device of every OpenCL platform.
func OpenCLDevices() ([]DeviceInfo, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil || len(platforms) == 0 {
		return nil, ErrOpenCLUnavailable
	}
	var infos []DeviceInfo
	for i, p := range platforms {
		devices, err := p.GetDevices(cl.DeviceTypeAll)
		if err != nil {
			continue
		}
		for j, d := range devices {
			infos = append(infos, DeviceInfo{
				Platform:     i,
				Device:       j,
				PlatformName: p.Name(),
				Name:         d.Name(),
				ComputeUnits: d.MaxComputeUnits(),
			})
		}
	}
	return infos, nil
}

type openclSearcher struct {
	info           DeviceInfo
	globalWorkSize int

	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	kernel  *cl.Kernel

	rootBuf      *cl.MemObject
	thresholdBuf *cl.MemObject
	attemptBuf   *cl.MemObject
	resultBuf    *cl.MemObject

	releaseOnce sync.Once
}

func newOpenCLSearcher(config *OpenCLConfig) (*openclSearcher, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil || len(platforms) == 0 {
		return nil, ErrOpenCLUnavailable
	}
	if int(config.Platform) >= len(platforms) {
		return nil, fmt.Errorf("%w: platform %d of %d", ErrInvalidDevice, config.Platform, len(platforms))
	}
	platform := platforms[config.Platform]

	devices, err := platform.GetDevices(cl.DeviceTypeAll)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenCLUnavailable, err)
	}
	if int(config.Device) >= len(devices) {
		return nil, fmt.Errorf("%w: device %d of %d on platform %d", ErrInvalidDevice, config.Device, len(devices), config.Platform)
	}
	device := devices[config.Device]

	s := &openclSearcher{
		info: DeviceInfo{
			Platform:     int(config.Platform),
			Device:       int(config.Device),
			PlatformName: platform.Name(),
			Name:         device.Name(),
			ComputeUnits: device.MaxComputeUnits(),
		},
		globalWorkSize: int(config.GlobalWorkSize),
	}
	if err := s.init(device); err != nil {
		s.release()
		return nil, err
	}
	return s, nil
}

func (s *openclSearcher) init(device *cl.Device) error {
	var err error
	s.context, err = cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return err
	}
	s.queue, err = s.context.CreateCommandQueue(device, 0)
	if err != nil {
		return err
	}
	s.program, err = s.context.CreateProgramWithSource([]string{openCLKernelSource})
	if err != nil {
		return err
	}
	if err = s.program.BuildProgram(nil, ""); err != nil {
		return fmt.Errorf("build kernel: %w", err)
	}
	s.kernel, err = s.program.CreateKernel(openCLKernelName)
	if err != nil {
		return err
	}

	if s.rootBuf, err = s.context.CreateEmptyBuffer(cl.MemReadOnly, RootSize); err != nil {
		return err
	}
	if s.thresholdBuf, err = s.context.CreateEmptyBuffer(cl.MemReadOnly, 8); err != nil {
		return err
	}
	if s.attemptBuf, err = s.context.CreateEmptyBuffer(cl.MemReadOnly, 8); err != nil {
		return err
	}
	if s.resultBuf, err = s.context.CreateEmptyBuffer(cl.MemWriteOnly, 8); err != nil {
		return err
	}
	return s.kernel.SetArgs(s.rootBuf, s.thresholdBuf, s.attemptBuf, s.resultBuf)
}

func (s *openclSearcher) write(buf *cl.MemObject, size int, ptr unsafe.Pointer) error {
	ev, err := s.queue.EnqueueWriteBuffer(buf, true, 0, size, ptr, nil)
	if err != nil {
		return err
	}
	ev.Release()
	return nil
}

func (s *openclSearcher) read(buf *cl.MemObject, size int, ptr unsafe.Pointer) error {
	ev, err := s.queue.EnqueueReadBuffer(buf, true, 0, size, ptr, nil)
	if err != nil {
		return err
	}
	ev.Release()
	return nil
}

func (s *openclSearcher) search(ctx context.Context, root Root, target Difficulty) (Solution, error) {
	threshold := uint64(target)
	var result uint64
	if err := s.write(s.rootBuf, RootSize, unsafe.Pointer(&root[0])); err != nil {
		return 0, err
	}
	if err := s.write(s.thresholdBuf, 8, unsafe.Pointer(&threshold)); err != nil {
		return 0, err
	}
	if err := s.write(s.resultBuf, 8, unsafe.Pointer(&result)); err != nil {
		return 0, err
	}

	attempt := randUint64()
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := s.write(s.attemptBuf, 8, unsafe.Pointer(&attempt)); err != nil {
			return 0, err
		}
		ev, err := s.queue.EnqueueNDRangeKernel(s.kernel, nil, []int{s.globalWorkSize}, nil, nil)
		if err != nil {
			return 0, err
		}
		ev.Release()
		if err := s.queue.Finish(); err != nil {
			return 0, err
		}
		if err := s.read(s.resultBuf, 8, unsafe.Pointer(&result)); err != nil {
			return 0, err
		}
		if result != 0 {
			return Solution(result), nil
		}
		attempt += uint64(s.globalWorkSize)
	}
}

func (s *openclSearcher) release() error {
	s.releaseOnce.Do(func() {
		for _, buf := range []*cl.MemObject{s.rootBuf, s.thresholdBuf, s.attemptBuf, s.resultBuf} {
			if buf != nil {
				buf.Release()
			}
		}
		if s.kernel != nil {
			s.kernel.Release()
		}
		if s.program != nil {
			s.program.Release()
		}
		if s.queue != nil {
			s.queue.Release()
		}
		if s.context != nil {
			s.context.Release()
		}
	})
	return nil
}
