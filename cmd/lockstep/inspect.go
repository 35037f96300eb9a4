package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/lockstep/pkg/trace"
)

func inspectCmd(a *app) *cobra.Command {
	var showSteps bool

	cmd := &cobra.Command{
		Use:   "inspect <flow-id>",
		Short: "Show the per-device checkpoints of a stored flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			flow, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printFlow(cmd.OutOrStdout(), flow, showSteps)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSteps, "steps", false, "List every step of each checkpoint")
	return cmd
}

func printFlow(w io.Writer, flow *trace.Flow, showSteps bool) {
	name, ok := flow.Name()
	if !ok {
		name = muted("(unnamed)")
	}
	fmt.Fprint(w, keyValues("",
		kv("flow", bold(flow.ID())),
		kv("name", name),
		kv("devices", strconv.Itoa(len(flow.DeviceIDs()))),
		kv("steps", strconv.Itoa(len(flow.Steps()))),
	))

	for _, summary := range flow.Summary() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, accent(summary.DeviceID))
		fmt.Fprint(w, keyValues("  ",
			kv("checkpoints", strconv.Itoa(len(summary.Checkpoints))),
			kv("snapshots", strconv.Itoa(summary.Snapshots)),
			kv("pending", strconv.Itoa(summary.Pending)),
		))

		log, ok := flow.Device(summary.DeviceID)
		if !ok {
			continue
		}
		for _, cp := range log.Checkpoints {
			fmt.Fprintf(w, "  %s %s %s\n", successMsg("%s", cp.Name), muted("#"+strconv.Itoa(cp.ID)),
				muted(fmt.Sprintf("(%d steps)", len(cp.Steps))))
			if showSteps {
				printSteps(w, cp.Steps)
			}
		}
		if showSteps && len(log.PendingSteps) > 0 {
			fmt.Fprintf(w, "  %s\n", muted("pending"))
			printSteps(w, log.PendingSteps)
		}
	}
}

func printSteps(w io.Writer, steps []*trace.Step) {
	for _, s := range steps {
		label := s.CommandLabel
		if s.IsSnapshot() {
			label = muted(fmt.Sprintf("snapshot (%d bytes)", len(s.Snapshot)))
		}
		fmt.Fprintf(w, "    %s %s\n", muted(fmt.Sprintf("%4d", s.ID)), strings.TrimSpace(label))
	}
}
