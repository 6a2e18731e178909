package main

import (
	"github.com/birdayz/kfrp/kevents"
	"github.com/birdayz/kfrp/pkg/log"
	"github.com/go-logr/logr"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// RootOptions holds the flags shared by all commands.
type RootOptions struct {
	Verbose bool

	logger *zerolog.Logger
}

func (o *RootOptions) logr(name string) logr.Logger {
	if o.logger == nil {
		o.logger = log.New(zerolog.InfoLevel)
	}
	return log.Logr(o.logger, name)
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kfrp",
		Short: "Record, inspect and replay kfrp timelines",
		Long: `kfrp runs a demo program on a timeline and works with the traces
of external events it records. A trace replays into a fresh program and
reproduces every frame, including the values of sampled behaviors.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := zerolog.InfoLevel
			if opts.Verbose {
				level = zerolog.DebugLevel
			}
			opts.logger = log.New(level)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every frame")

	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

func newCodec() *kevents.Codec {
	return kevents.NewCodec(nil)
}
