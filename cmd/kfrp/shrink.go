package main

import (
	"context"
	"fmt"

	"github.com/birdayz/kfrp/kevents"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

type ShrinkOptions struct {
	*RootOptions

	Above float64
}

func NewShrinkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShrinkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "shrink <trace> <out>",
		Short: "Minimize a rover trace that exceeds a speed",
		Long: `Search for a minimal subsequence of a rover trace in which the rover
still exceeds --above. Removing any single event of the result brings the
rover back below the limit.`,
		Example: `  kfrp trace shrink rover.jsonl minimal.jsonl --above 3`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShrink(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().Float64Var(&opts.Above, "above", 1, "speed limit the trace must exceed")

	return cmd
}

func runShrink(cmd *cobra.Command, opts *ShrinkOptions, in, out string) error {
	events, err := readTrace(in)
	if err != nil {
		return err
	}

	log := opts.logr("shrink")
	failing := speeding(cmd.Context(), opts.Above, log)
	if !failing(events) {
		return fmt.Errorf("rover stays below %v in %s", opts.Above, in)
	}

	minimal := kevents.Shrink(events, failing)
	if err := writeTrace(out, minimal); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "shrunk %d events to %d, written to %s\n", len(events), len(minimal), out)
	return nil
}

// speeding reports whether the rover exceeds limit when replaying a trace.
func speeding(ctx context.Context, limit float64, log logr.Logger) func([]kevents.ExternalEvent) bool {
	return func(events []kevents.ExternalEvent) bool {
		r, err := replayRover(ctx, events, log, nil)
		if err != nil {
			log.V(1).Info("replay failed", "events", len(events), "error", err)
			return false
		}
		return r.maxSpeed > limit
	}
}
