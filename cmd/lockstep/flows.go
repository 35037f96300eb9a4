package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/odvcencio/lockstep/pkg/trace"
)

func flowsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flows",
		Short: "List stored flows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ids, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, muted("no flows stored"))
				return nil
			}

			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				flow, err := store.Load(cmd.Context(), id)
				if err != nil {
					a.logger.Warn().Err(err).Str("flow_id", id).Msg("skipping unreadable flow")
					rows = append(rows, []string{id, "-", "-", "-"})
					continue
				}
				rows = append(rows, flowRow(flow))
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "NAME", "DEVICES", "STEPS"}, rows))
			return nil
		},
	}
}

func flowRow(flow *trace.Flow) []string {
	name, ok := flow.Name()
	if !ok {
		name = "-"
	}
	return []string{
		flow.ID(),
		name,
		strconv.Itoa(len(flow.DeviceIDs())),
		strconv.Itoa(len(flow.Steps())),
	}
}
