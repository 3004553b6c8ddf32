package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <employee> <image>...",
	Short: "Enroll reference faces for an employee",
	Long: `Compute a face embedding for each reference image and store it for the employee.

Images without a detectable face are skipped with a warning. Enrollment fails
when no image contains a face.

Examples:
  face-attendance enroll "Alice Smith" faces/alice_1.jpg faces/alice_2.jpg
  face-attendance enroll bob bob.png --json`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

// EnrollOutput is the JSON output of the enroll command.
type EnrollOutput struct {
	Employee string                    `json:"employee"`
	Stored   int                       `json:"stored"`
	Skipped  []attendance.SkippedImage `json:"skipped"`
}

func runEnroll(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	employee, paths := args[0], args[1:]

	images := make([]attendance.ReferenceImage, 0, len(paths))
	for _, p := range paths {
		data, err := readImageFile(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		images = append(images, attendance.ReferenceImage{Name: filepath.Base(p), Data: data})
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(images),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}
	progress := func() {
		if bar != nil {
			bar.Add(1)
		}
	}

	enroller := attendance.NewEnroller(a.embedder, a.stores.refs, a.embedder.Model(), a.cfg.Embedding.Dim)
	res, err := enroller.Enroll(context.Background(), employee, images, progress)
	if bar != nil {
		fmt.Println()
	}
	for _, s := range res.Skipped {
		if !jsonOutput {
			fmt.Printf("Warning: skipped %s: %s\n", s.Name, s.Reason)
		}
	}
	if err != nil {
		return describeError(err)
	}

	if jsonOutput {
		skipped := res.Skipped
		if skipped == nil {
			skipped = []attendance.SkippedImage{}
		}
		return outputJSON(EnrollOutput{Employee: res.EmployeeKey, Stored: len(res.Stored), Skipped: skipped})
	}
	fmt.Printf("Enrolled %d reference face(s) for %s\n", len(res.Stored), res.EmployeeKey)
	return nil
}
