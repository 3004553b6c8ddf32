package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-attendance",
	Short: "Face-verified employee check-in and check-out",
	Long: `Face Attendance records employee check-ins and check-outs after verifying
a live photo against the employee's enrolled reference faces.

Face embeddings are computed by an external embedding server (EMBEDDING_URL).
Records are kept in PostgreSQL, MariaDB or SQLite (DATABASE_DRIVER, DATABASE_URL).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
