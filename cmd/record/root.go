package record

import (
	"github.com/spf13/cobra"

	"github.com/GOTO-OBS/gtecs-common/cmd/util"
	"github.com/GOTO-OBS/gtecs-common/lib/store"
)

var (
	recordStore store.IRecordStore

	// RecordCommands represents the record command group
	RecordCommands = &cobra.Command{
		Use:                "record",
		Short:              "Read and write shared state records",
		PersistentPreRunE:  setupStore,
		PersistentPostRunE: teardownStore,
	}
)

func init() {
	// Add database connection flags to the record command
	util.SetupStoreFlags(RecordCommands)

	// Add subcommands
	RecordCommands.AddCommand(getCmd)
	RecordCommands.AddCommand(putCmd)
	RecordCommands.AddCommand(updateCmd)
	RecordCommands.AddCommand(listCmd)
}

// setupStore opens the record store for the invocation
func setupStore(cmd *cobra.Command, _ []string) error {
	var err error
	recordStore, err = util.OpenStore(cmd)
	return err
}

func teardownStore(_ *cobra.Command, _ []string) error {
	if recordStore == nil {
		return nil
	}
	return recordStore.Close()
}
