package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <employee> <image>",
	Short: "Verify a photo against an employee's reference faces",
	Long: `Print the verification verdict and the minimum distance between the photo and
the employee's reference faces. No attendance is recorded.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Bool("json", false, "Output as JSON")
	verifyCmd.Flags().Float64("tolerance", 0, "Override VERIFY_TOLERANCE for this check")
}

// VerifyOutput is the JSON output of the verify command.
type VerifyOutput struct {
	Employee     string  `json:"employee"`
	Outcome      string  `json:"outcome"`
	MinDistance  float64 `json:"min_distance"`
	MatchedIndex int     `json:"matched_index"`
	Tolerance    float64 `json:"tolerance"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	tolerance := mustGetFloat64(cmd, "tolerance")
	employee, path := args[0], args[1]

	image, err := readImageFile(path)
	if err != nil {
		return err
	}

	a, err := newApp(func(cfg *config.Config) {
		if tolerance > 0 {
			cfg.Verify.Tolerance = tolerance
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	verdict, err := a.service.VerifyOnly(context.Background(), employee, image)
	if err != nil {
		return describeError(err)
	}

	out := VerifyOutput{
		Employee:     employee,
		Outcome:      verdict.Outcome.String(),
		MinDistance:  verdict.MinDistance,
		MatchedIndex: verdict.MatchedIndex,
		Tolerance:    verdict.Tolerance,
	}
	if jsonOutput {
		return outputJSON(out)
	}

	switch verdict.Outcome {
	case face.OutcomeAccepted, face.OutcomeRejected:
		fmt.Printf("%s: %s (min distance %.4f, tolerance %.2f, reference #%d)\n",
			employee, out.Outcome, verdict.MinDistance, verdict.Tolerance, verdict.MatchedIndex+1)
	default:
		fmt.Printf("%s: %s\n", employee, out.Outcome)
	}
	return nil
}
