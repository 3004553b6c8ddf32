package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/spf13/cobra"
)

var attendCmd = &cobra.Command{
	Use:   "attend <checkin|checkout> <employee> <image>",
	Short: "Verify a photo and record a check-in or check-out",
	Long: `Run one attendance request: verify the photo against the employee's reference
faces and, when it matches, record the check-in or close today's latest open check-in.

Examples:
  face-attendance attend checkin alice probe.jpg
  face-attendance attend checkout alice probe.jpg --json`,
	Args: cobra.ExactArgs(3),
	RunE: runAttend,
}

func init() {
	rootCmd.AddCommand(attendCmd)

	attendCmd.Flags().Bool("json", false, "Output as JSON")
}

// AttendOutput is the JSON output of the attend command.
type AttendOutput struct {
	Action      string  `json:"action"`
	Employee    string  `json:"employee"`
	RecordID    string  `json:"record_id"`
	Timestamp   string  `json:"timestamp"`
	MinDistance float64 `json:"min_distance"`
}

func runAttend(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	action, err := attendance.ParseAction(args[0])
	if err != nil {
		return describeError(err)
	}
	image, err := readImageFile(args[2])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.service.HandleAttendanceRequest(context.Background(), attendance.Request{
		Action:      action,
		EmployeeKey: args[1],
		Image:       image,
	})
	if err != nil {
		return describeError(err)
	}

	out := AttendOutput{
		Action:      res.Action.String(),
		Employee:    res.EmployeeKey,
		RecordID:    res.Record.ID,
		Timestamp:   res.Timestamp.UTC().Format(time.RFC3339),
		MinDistance: res.Verdict.MinDistance,
	}
	if jsonOutput {
		return outputJSON(out)
	}
	fmt.Printf("%s recorded for %s at %s (distance %.4f)\n", out.Action, out.Employee, out.Timestamp, out.MinDistance)
	return nil
}
