package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	work "github.com/nanowork/nano-work-go"
	"github.com/spf13/cobra"
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Measure CPU work generation speed",
	Long:  "Generate work for random roots on the CPU and report the hash rate",
	Args:  cobra.NoArgs,
	RunE:  runBenchmark,
}

var (
	benchCount      int
	benchThreads    int32
	benchMultiplier float64
)

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	benchmarkCmd.Flags().IntVar(&benchCount, "count", 16, "Number of roots")
	benchmarkCmd.Flags().Int32Var(&benchThreads, "threads", 0, "Number of threads (default from config)")
	benchmarkCmd.Flags().Float64Var(&benchMultiplier, "multiplier", 1.0/64, "Multiplier on top of the v2 send threshold")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	threads := benchThreads
	if threads == 0 {
		threads = config.CPU.Threads
	}
	gen, err := work.NewCPUGenerator(&work.CPUConfig{
		Threads:   threads,
		Generator: &work.GeneratorConfig{Logger: logger},
	})
	if err != nil {
		return err
	}
	defer gen.Shutdown()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Benchmark: %d roots, %d threads, multiplier %.4f\n\n", benchCount, gen.Threads(), benchMultiplier)

	var slowest time.Duration
	timeStart := time.Now()
	for i := 0; i < benchCount; i++ {
		b, err := work.RandomBytes(work.RootSize)
		if err != nil {
			return err
		}
		root, err := work.NewRoot(b)
		if err != nil {
			return err
		}

		reqStart := time.Now()
		h, err := gen.GenerateMultiplier(root, benchMultiplier)
		if err != nil {
			return err
		}
		result, err := h.Wait(cmd.Context())
		if err != nil {
			h.Cancel()
			return err
		}
		elapsed := time.Since(reqStart)
		if elapsed > slowest {
			slowest = elapsed
		}
		fmt.Fprintf(out, "  %3d  %s  %s  %s\n", i+1, result.Solution, result.AchievedDifficulty(), elapsed.Round(time.Millisecond))
	}

	total := time.Since(timeStart)
	hashes := gen.Hashes()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Hashes   : %s\n", humanize.Comma(int64(hashes)))
	fmt.Fprintf(out, "Rate     : %s\n", humanize.SI(float64(hashes)/total.Seconds(), "H/s"))
	fmt.Fprintf(out, "Average  : %s\n", (total / time.Duration(max(benchCount, 1))).Round(time.Millisecond))
	fmt.Fprintf(out, "Slowest  : %s\n", slowest.Round(time.Millisecond))
	return nil
}
