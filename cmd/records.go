package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List attendance records",
	Long: `List attendance records, latest check-in first.

Examples:
  face-attendance records
  face-attendance records --employee alice --json`,
	Args: cobra.NoArgs,
	RunE: runRecords,
}

func init() {
	rootCmd.AddCommand(recordsCmd)

	recordsCmd.Flags().String("employee", "", "Only list records of this employee")
	recordsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runRecords(cmd *cobra.Command, args []string) error {
	employee := mustGetString(cmd, "employee")
	jsonOutput := mustGetBool(cmd, "json")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	recs, err := a.service.ListRecords(context.Background(), employee)
	if err != nil {
		return describeError(err)
	}

	if jsonOutput {
		if recs == nil {
			recs = []database.AttendanceRecord{}
		}
		return outputJSON(recs)
	}

	printRecords(os.Stdout, recs)
	return nil
}

// printRecords writes recs as an aligned table followed by a total line.
func printRecords(out io.Writer, recs []database.AttendanceRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No attendance records found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMPLOYEE\tCHECK IN\tCHECK OUT\tDURATION\tID")
	fmt.Fprintln(w, "--------\t--------\t---------\t--------\t--")

	for _, r := range recs {
		checkOut, duration := "-", "-"
		if r.CheckOut != nil {
			checkOut = r.CheckOut.Format(time.DateTime)
			duration = r.CheckOut.Sub(r.CheckIn).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.EmployeeKey, r.CheckIn.Format(time.DateTime), checkOut, duration, r.ID)
	}

	w.Flush()

	fmt.Fprintf(out, "\nTotal: %d records\n", len(recs))
}
