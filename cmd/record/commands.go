package record

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GOTO-OBS/gtecs-common/cmd/util"
	"github.com/GOTO-OBS/gtecs-common/lib/store"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [collection] [key]",
		Short: "Reads the record for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := recordStore.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return util.PrintRecord(rec)
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [collection] [key] [payload]",
		Short: "Writes a record, replacing any existing payload",
		Long:  "Writes a record, replacing any existing payload. The payload is a JSON object, e.g. '{\"ra\": 187.5, \"dec\": -22.1}'.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := util.ParsePayload(args[2])
			if err != nil {
				return err
			}
			rec, err := recordStore.Put(cmd.Context(), args[0], args[1], payload)
			if err != nil {
				return err
			}
			fmt.Printf("put successfully (version %d)\n", rec.Version)
			return nil
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [collection] [key] [payload]",
		Short: "Merges a JSON object into the record's payload",
		Long:  "Merges a JSON object into the record's payload through the optimistic update coordinator, so concurrent writers to other fields are not overwritten.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := util.ParsePayload(args[2])
			if err != nil {
				return err
			}
			rec, err := recordStore.Update(cmd.Context(), args[0], args[1], func(rec store.Record) (store.Payload, error) {
				merged := store.ClonePayload(rec.Payload)
				if merged == nil {
					merged = store.Payload{}
				}
				for k, v := range patch {
					merged[k] = v
				}
				return merged, nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("update successfully (version %d)\n", rec.Version)
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list [collection]",
		Short: "Lists the records in a collection in key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			limit, _ := cmd.Flags().GetInt("limit")

			count := 0
			err := recordStore.List(cmd.Context(), args[0], store.Filter{KeyPrefix: prefix}, func(rec store.Record) bool {
				if err := util.PrintRecord(rec); err != nil {
					return false
				}
				count++
				return limit <= 0 || count < limit
			})
			if err != nil {
				return err
			}
			fmt.Printf("%d record(s)\n", count)
			return nil
		},
	}
)

func init() {
	listCmd.Flags().String("prefix", "", util.WrapString("Only list keys with this prefix"))
	listCmd.Flags().Int("limit", 0, util.WrapString("Stop after this many records (0 for all)"))
}
