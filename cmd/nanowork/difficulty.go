package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	work "github.com/nanowork/nano-work-go"
	"github.com/spf13/cobra"
)

var difficultyCmd = &cobra.Command{
	Use:   "difficulty",
	Short: "Show the active network difficulty",
	Long: `Query the active_difficulty of the configured node RPC server, follow it
over the node websocket with --watch, or compare the latency of several RPC
servers with --measure.`,
	Args: cobra.NoArgs,
	RunE: runDifficulty,
}

func init() {
	rootCmd.AddCommand(difficultyCmd)

	difficultyCmd.Flags().Bool("watch", false, "Follow updates over the node websocket until interrupted")
	difficultyCmd.Flags().StringSlice("measure", nil, "RPC server addresses to measure")
	difficultyCmd.Flags().Duration("timeout", 10*time.Second, "RPC timeout")
}

func printActiveDifficulty(out io.Writer, d *work.ActiveDifficulty) {
	fmt.Fprintf(out, "Multiplier            : %.4f\n", d.Multiplier)
	fmt.Fprintf(out, "Network current       : %s\n", d.NetworkCurrent)
	fmt.Fprintf(out, "Network minimum       : %s\n", d.NetworkMinimum)
	fmt.Fprintf(out, "Receive current       : %s\n", d.NetworkReceiveCurrent)
	fmt.Fprintf(out, "Receive minimum       : %s\n", d.NetworkReceiveMinimum)
}

func runDifficulty(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	measure, _ := cmd.Flags().GetStringSlice("measure")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	out := cmd.OutOrStdout()

	if len(measure) > 0 {
		nodes, err := work.MeasureNodes(cmd.Context(), measure, int32(timeout/time.Millisecond))
		if err != nil {
			return err
		}
		for _, node := range nodes {
			fmt.Fprintf(out, "%-40s %s\n", node.Addr, node.Latency.Round(time.Millisecond))
		}
		if len(nodes) < len(measure) {
			fmt.Fprintf(out, "%d of %d servers did not answer\n", len(measure)-len(nodes), len(measure))
		}
		return nil
	}

	if watch {
		return watchDifficulty(cmd.Context(), out)
	}

	policy, err := work.NewNodePolicy(&work.NodeConfig{
		RPCServerAddr: config.Node.RPC,
		RPCTimeout:    int32(timeout / time.Millisecond),
	})
	if err != nil {
		return err
	}
	d, err := policy.ActiveDifficultyContext(cmd.Context())
	if err != nil {
		return err
	}
	printActiveDifficulty(out, d)
	return nil
}

func watchDifficulty(ctx context.Context, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	tracker, err := work.NewDifficultyTracker(&work.TrackerConfig{WebsocketAddr: config.Node.Websocket, Logger: logger})
	if err != nil {
		return err
	}
	defer tracker.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-tracker.OnError.C:
			fmt.Fprintln(out, "Error:", err)
		case d := <-tracker.OnDifficulty.C:
			fmt.Fprintln(out, time.Now().Format("2006-01-02 15:04:05"))
			printActiveDifficulty(out, d)
		}
	}
}
