package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/birdayz/kfrp/kevents"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"
)

func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect and transform recorded traces",
	}

	cmd.AddCommand(newTraceCatCommand())
	cmd.AddCommand(newTraceStatsCommand())
	cmd.AddCommand(newTraceArchiveCommand())
	cmd.AddCommand(newTraceUploadCommand())
	cmd.AddCommand(NewShrinkCommand(rootOpts))

	return cmd
}

// readTrace loads a plain or zstd compressed trace, by extension.
func readTrace(path string) ([]kevents.ExternalEvent, error) {
	codec := newCodec()
	if !strings.HasSuffix(path, kevents.ArchiveExt) {
		events, err := kevents.ReadFile(path, codec)
		if err != nil {
			return nil, fmt.Errorf("read trace %s: %w", path, err)
		}
		return events, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer func() { _ = f.Close() }()

	events, err := kevents.ReadArchive(f, codec)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}
	return events, nil
}

// writeTrace is the counterpart of readTrace.
func writeTrace(path string, events []kevents.ExternalEvent) error {
	codec := newCodec()
	if !strings.HasSuffix(path, kevents.ArchiveExt) {
		return kevents.WriteFile(path, events, codec)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	if err := kevents.WriteArchive(f, events, codec); err != nil {
		_ = f.Close()
		return fmt.Errorf("write archive %s: %w", path, err)
	}
	return f.Close()
}

func newTraceCatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <trace>",
		Short: "Print the events of a trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readTrace(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, e := range events {
				fmt.Fprintf(out, "%6d  %s\n", i, e)
			}
			return nil
		},
	}
}

func newTraceStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <trace>",
		Short: "Summarize a trace per node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readTrace(args[0])
			if err != nil {
				return err
			}
			s := kevents.Summarize(events)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "events\t%d\n", s.Events)
			fmt.Fprintf(w, "fires\t%d\n", s.Fires)
			fmt.Fprintf(w, "updates\t%d\n", s.Updates)
			fmt.Fprintf(w, "samples\t%d\n", s.Samples)
			for _, id := range s.Nodes() {
				fmt.Fprintf(w, "node %d\t%d\n", id, s.PerNode[id])
			}
			return w.Flush()
		},
	}
}

func newTraceArchiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <trace> [out]",
		Short: "Compress a trace with zstd",
		Long: `Compress a trace with zstd. The output defaults to the input path
with the .jsonl extension replaced by ` + kevents.ArchiveExt + `.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readTrace(args[0])
			if err != nil {
				return err
			}
			out := strings.TrimSuffix(args[0], ".jsonl") + kevents.ArchiveExt
			if len(args) == 2 {
				out = args[1]
			}
			if err := writeTrace(out, events); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d events to %s\n", len(events), out)
			return nil
		},
	}
}

type uploadOptions struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Secure    bool
}

func newTraceUploadCommand() *cobra.Command {
	opts := &uploadOptions{}

	cmd := &cobra.Command{
		Use:   "upload <trace>",
		Short: "Upload a trace to an S3 compatible bucket",
		Long: `Upload a trace as a zstd archive to an S3 compatible bucket. The
bucket is created if it does not exist. Credentials default to
KFRP_S3_ACCESS_KEY and KFRP_S3_SECRET_KEY.`,
		Example: `  kfrp trace upload rover.jsonl --endpoint localhost:9000 --bucket traces`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "localhost:9000", "S3 endpoint")
	cmd.Flags().StringVar(&opts.Bucket, "bucket", "kfrp-traces", "bucket name")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "object name prefix")
	cmd.Flags().StringVar(&opts.AccessKey, "access-key", os.Getenv("KFRP_S3_ACCESS_KEY"), "access key")
	cmd.Flags().StringVar(&opts.SecretKey, "secret-key", os.Getenv("KFRP_S3_SECRET_KEY"), "secret key")
	cmd.Flags().BoolVar(&opts.Secure, "secure", false, "use TLS")

	return cmd
}

func runUpload(cmd *cobra.Command, opts *uploadOptions, path string) error {
	ctx := cmd.Context()

	events, err := readTrace(path)
	if err != nil {
		return err
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return fmt.Errorf("create s3 client: %w", err)
	}

	store, err := kevents.NewArchiveStore(ctx, client, opts.Bucket, opts.Prefix, newCodec())
	if err != nil {
		return err
	}

	name := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), kevents.ArchiveExt), ".jsonl")
	if err := store.Upload(ctx, name, events); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d events as %s\n", len(events), name)
	return nil
}
