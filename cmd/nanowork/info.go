package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/cpuid/v2"
	work "github.com/nanowork/nano-work-go"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show available work generation hardware",
	Long:  "Show the CPU features relevant to hashing and the OpenCL devices work can be generated on",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func cpuFeatures() []string {
	features := []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"SSE4", cpuid.SSE4},
		{"AVX", cpuid.AVX},
		{"AVX2", cpuid.AVX2},
		{"AVX512F", cpuid.AVX512F},
		{"ASIMD", cpuid.ASIMD},
	}
	var names []string
	for _, f := range features {
		if cpuid.CPU.Supports(f.id) {
			names = append(names, f.name)
		}
	}
	return names
}

func runInfo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "CPU:")
	fmt.Fprintf(out, "  Brand            : %s\n", cpuid.CPU.BrandName)
	fmt.Fprintf(out, "  Cores            : %d physical, %d logical\n", cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
	fmt.Fprintf(out, "  Features         : %s\n", strings.Join(cpuFeatures(), " "))
	if cpuid.CPU.Cache.L1D > 0 {
		fmt.Fprintf(out, "  Cache            : L1D %s, L2 %s, L3 %s\n",
			humanize.IBytes(uint64(cpuid.CPU.Cache.L1D)),
			humanize.IBytes(uint64(max(cpuid.CPU.Cache.L2, 0))),
			humanize.IBytes(uint64(max(cpuid.CPU.Cache.L3, 0))))
	}
	fmt.Fprintf(out, "  Default threads  : %d of %d\n", work.GetDefaultCPUConfig().Threads, runtime.NumCPU())

	fmt.Fprintln(out, "\nOpenCL:")
	devices, err := work.OpenCLDevices()
	if err != nil {
		fmt.Fprintf(out, "  %v\n", err)
		return nil
	}
	if len(devices) == 0 {
		fmt.Fprintln(out, "  No devices")
	}
	for _, d := range devices {
		fmt.Fprintf(out, "  [%d:%d] %s on %s, %d compute units\n", d.Platform, d.Device, d.Name, d.PlatformName, d.ComputeUnits)
	}
	return nil
}
