package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/employee"
	"github.com/spf13/cobra"
)

var employeeCmd = &cobra.Command{
	Use:   "employee",
	Short: "Manage enrolled employees",
}

var employeeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List employees with enrolled reference faces",
	Args:  cobra.NoArgs,
	RunE:  runEmployeeList,
}

var employeeStatusCmd = &cobra.Command{
	Use:   "status <employee>",
	Short: "Show today's open check-ins of an employee",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmployeeStatus,
}

var employeeRemoveCmd = &cobra.Command{
	Use:   "remove <employee>",
	Short: "Delete an employee's attendance records and reference faces",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmployeeRemove,
}

func init() {
	rootCmd.AddCommand(employeeCmd)
	employeeCmd.AddCommand(employeeListCmd)
	employeeCmd.AddCommand(employeeStatusCmd)
	employeeCmd.AddCommand(employeeRemoveCmd)

	employeeRemoveCmd.Flags().Bool("yes", false, "Do not ask for confirmation")
}

func runEmployeeList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	keys, err := a.stores.refs.ListEmployees(context.Background())
	if err != nil {
		return fmt.Errorf("listing employees: %w", err)
	}
	if len(keys) == 0 {
		fmt.Println("No employees enrolled.")
		return nil
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

func runEmployeeStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.service.Status(context.Background(), args[0])
	if err != nil {
		return describeError(err)
	}

	fmt.Printf("%s on %s: %s\n", st.EmployeeKey, st.Day.Start.Format("2006-01-02"), st.State)
	for _, r := range st.OpenRecords {
		fmt.Printf("  open since %s (%s)\n", r.CheckIn.Format("15:04:05"), r.ID)
	}
	return nil
}

func runEmployeeRemove(cmd *cobra.Command, args []string) error {
	key := employee.NormalizeKey(args[0])
	if key == "" {
		return errors.New("employee is required")
	}

	if !mustGetBool(cmd, "yes") {
		fmt.Printf("Delete all attendance records and reference faces of %q? [y/N] ", key)
		var answer string
		fmt.Scanln(&answer)
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	records, err := a.ledger.RemoveEmployee(ctx, key)
	if err != nil {
		return describeError(err)
	}
	refs, err := a.stores.refs.DeleteReferencesByEmployee(ctx, key)
	if err != nil {
		return fmt.Errorf("deleting reference faces: %w", err)
	}

	fmt.Printf("Removed %s: %d attendance records, %d reference faces\n", key, records, refs)
	return nil
}
