package main

import (
	"fmt"

	work "github.com/nanowork/nano-work-go"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <root> <work>",
	Short: "Verify work for a root",
	Long: `Compute the difficulty of work for a root and compare it to the required
difficulty. The command fails if the work is not valid.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("difficulty", "", "Required difficulty in hex (default from --subtype and the v2 thresholds)")
	verifyCmd.Flags().String("subtype", "send", "Block subtype: send, receive, open, change or epoch")
}

func runVerify(cmd *cobra.Command, args []string) error {
	difficultyHex, _ := cmd.Flags().GetString("difficulty")
	subtypeName, _ := cmd.Flags().GetString("subtype")

	root, err := work.ParseRoot(args[0])
	if err != nil {
		return err
	}
	solution, err := work.ParseSolution(args[1])
	if err != nil {
		return err
	}

	var required work.Difficulty
	if len(difficultyHex) > 0 {
		required, err = work.ParseDifficulty(difficultyHex)
	} else {
		var subtype work.Subtype
		subtype, err = parseSubtype(subtypeName)
		if err == nil {
			required, err = work.PolicyV2().DifficultyFor(&cliBlock{root: root, subtype: subtype})
		}
	}
	if err != nil {
		return err
	}

	achieved := work.DifficultyOf(root, solution)
	valid := achieved >= required

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Difficulty : %s\n", achieved)
	fmt.Fprintf(out, "Required   : %s\n", required)
	fmt.Fprintf(out, "Multiplier : %.4f\n", achieved.Multiplier(required))
	fmt.Fprintf(out, "Valid      : %t\n", valid)
	if !valid {
		return work.ErrInvalidSolution
	}
	return nil
}
