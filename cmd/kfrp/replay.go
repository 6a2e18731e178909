package main

import (
	"fmt"

	"github.com/birdayz/kfrp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type ReplayOptions struct {
	*RootOptions

	Rate       float64
	TimeTravel bool
}

func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <trace>",
		Short: "Replay a recorded rover trace",
		Long: `Replay a trace recorded by "kfrp demo" into a fresh rover and print
its final state. Gust samples are taken from the trace, so the result matches
the recorded run. Traces ending in .jsonl.zst are read as archives.`,
		Example: `  kfrp replay rover.jsonl
  kfrp replay rover.jsonl --rate 20 -v`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts, args[0])
		},
	}

	cmd.Flags().Float64Var(&opts.Rate, "rate", 0, "frames per second, 0 for unlimited")
	cmd.Flags().BoolVar(&opts.TimeTravel, "time-travel", false, "keep snapshots while replaying")

	return cmd
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions, path string) error {
	events, err := readTrace(path)
	if err != nil {
		return err
	}

	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}

	r, err := replayRover(cmd.Context(), events, opts.logr("replay"),
		[]kfrp.ReplayOption{kfrp.ReplayRate(limit)},
		kfrp.WithDebug(opts.Verbose),
		kfrp.WithTimeTravel(opts.TimeTravel),
	)
	if err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}

	printRover(cmd, r)
	return nil
}
