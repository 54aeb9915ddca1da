package main

import (
	"context"
	"fmt"
	"time"

	work "github.com/nanowork/nano-work-go"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate <root>",
	Short: "Generate work for a root",
	Long: `Generate work for a 32 byte hex root with every configured backend.
Without --difficulty the difficulty comes from the configured policy, for the
block subtype if --subtype is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

// cliBlock is a Block built from command line flags.
type cliBlock struct {
	root    work.Root
	subtype work.Subtype
}

func (b *cliBlock) WorkRoot() work.Root       { return b.root }
func (b *cliBlock) WorkSubtype() work.Subtype { return b.subtype }

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("difficulty", "", "Literal difficulty in hex, overrides the policy")
	generateCmd.Flags().Float64("multiplier", 1, "Multiplier on top of the policy difficulty")
	generateCmd.Flags().String("subtype", "", "Block subtype: send, receive, open, change or epoch")
	generateCmd.Flags().Duration("timeout", 5*time.Minute, "Give up after this long")
}

func parseSubtype(s string) (work.Subtype, error) {
	for st := work.SubtypeSend; st <= work.SubtypeEpoch; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown subtype %q", s)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	difficultyHex, _ := cmd.Flags().GetString("difficulty")
	multiplier, _ := cmd.Flags().GetFloat64("multiplier")
	subtypeName, _ := cmd.Flags().GetString("subtype")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	root, err := work.ParseRoot(args[0])
	if err != nil {
		return err
	}

	b, err := newBackend(config)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	timeStart := time.Now()
	var h *work.Handle
	switch {
	case len(difficultyHex) > 0:
		d, err := work.ParseDifficulty(difficultyHex)
		if err != nil {
			return err
		}
		if b.cache != nil {
			if solution, ok := b.cache.Get(root, d); ok {
				fmt.Fprintln(cmd.OutOrStdout(), solution)
				return nil
			}
		}
		h, err = b.generator.Generate(root, d)
		if err != nil {
			return err
		}
	case len(subtypeName) > 0:
		subtype, err := parseSubtype(subtypeName)
		if err != nil {
			return err
		}
		h, err = b.generator.GenerateBlock(&cliBlock{root: root, subtype: subtype}, multiplier)
		if err != nil {
			return err
		}
	default:
		h, err = b.generator.GenerateMultiplier(root, multiplier)
		if err != nil {
			return err
		}
	}

	result, err := h.Wait(ctx)
	if err != nil {
		h.Cancel()
		return fmt.Errorf("failed to generate work: %w", err)
	}
	if b.cache != nil {
		b.cache.StoreResult(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Solution)
	if verbose {
		fmt.Fprintf(out, "  Difficulty : %s (x%.4f)\n", result.AchievedDifficulty(), result.AchievedMultiplier())
		fmt.Fprintf(out, "  Target     : %s\n", result.Target())
		fmt.Fprintf(out, "  Elapsed    : %s\n", time.Since(timeStart).Round(time.Millisecond))
	}
	return nil
}
