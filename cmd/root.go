package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GOTO-OBS/gtecs-common/cmd/record"
	"github.com/GOTO-OBS/gtecs-common/cmd/schema"
	"github.com/GOTO-OBS/gtecs-common/cmd/util"
	"github.com/GOTO-OBS/gtecs-common/lib/logging"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "gtecs",
		Short: "shared state for observatory control daemons",
		Long: fmt.Sprintf(`gtecs (v%s)

Administration tool for the shared state store used by the
observatory control daemons: declare and verify the database
schema, inspect and edit records, and check connectivity.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of gtecs",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gtecs v%s\n", Version)
		},
	}
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := util.OpenStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.HealthCheck(cmd.Context()); err != nil {
				return fmt.Errorf("database unreachable: %w", err)
			}
			fmt.Println("database ok")
			return nil
		},
	}
)

func init() {
	cobra.OnInitialize(func() {
		logging.Setup("gtecs")
	})

	// Add Commands
	RootCmd.AddCommand(schema.SchemaCommands)
	RootCmd.AddCommand(record.RecordCommands)
	RootCmd.AddCommand(healthCmd)
	RootCmd.AddCommand(versionCmd)

	// Add database flags for commands attached directly to the root
	util.SetupStoreFlags(healthCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
