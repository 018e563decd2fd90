package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GOTO-OBS/gtecs-common/cmd/util"
	"github.com/GOTO-OBS/gtecs-common/lib/store"
	"github.com/GOTO-OBS/gtecs-common/lib/store/sqlstore"
)

// SchemaCommands represents the schema command group
var SchemaCommands = &cobra.Command{
	Use:   "schema",
	Short: "Declare and verify the shared database schema",
}

var (
	declareCmd = &cobra.Command{
		Use:   "declare [collection,...]",
		Short: "Declares the schema, creating missing collections",
		Long: util.WrapString("Declares the schema on the database, creating the bookkeeping " +
			"table and any missing collection tables. Declaring the same schema again is a no-op; " +
			"declaring a different version fails, schema upgrades are an operator task."),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := descriptorFromArgs(cmd, args)
			if err != nil {
				return err
			}

			s, err := util.OpenStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Declare(cmd.Context(), desc); err != nil {
				return err
			}
			fmt.Printf("schema version %d declared (%d collections)\n", desc.Version, len(desc.Collections))
			return nil
		},
	}
	showCmd = &cobra.Command{
		Use:   "show",
		Short: "Shows the schema version declared on the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := util.GetStoreConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled() {
				return fmt.Errorf("no database configured (set GTECS_DATABASE_HOST or pass --host)")
			}

			info, err := sqlstore.SchemaVersion(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Printf("schema version %d, declared at %s\n", info.Version, info.DeclaredAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	verifyCmd = &cobra.Command{
		Use:   "verify [collection,...]",
		Short: "Verifies the database matches the expected schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := descriptorFromArgs(cmd, args)
			if err != nil {
				return err
			}

			s, err := util.OpenStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Verify(cmd.Context(), desc); err != nil {
				return err
			}
			fmt.Println("schema ok")
			return nil
		},
	}
)

func init() {
	util.SetupStoreFlags(SchemaCommands)

	key := "version"
	SchemaCommands.PersistentFlags().Int(key, 1, util.WrapString("Schema version to declare or verify against"))

	SchemaCommands.AddCommand(declareCmd)
	SchemaCommands.AddCommand(verifyCmd)
	SchemaCommands.AddCommand(showCmd)
}

// descriptorFromArgs builds a schema descriptor from the comma-separated
// collection list and the version flag.
func descriptorFromArgs(cmd *cobra.Command, args []string) (store.SchemaDescriptor, error) {
	version, _ := cmd.Flags().GetInt("version")

	var collections []string
	for _, c := range strings.Split(args[0], ",") {
		if c = strings.TrimSpace(c); c != "" {
			collections = append(collections, c)
		}
	}
	if len(collections) == 0 {
		return store.SchemaDescriptor{}, fmt.Errorf("at least one collection is required")
	}

	return store.SchemaDescriptor{Collections: collections, Version: version}, nil
}
