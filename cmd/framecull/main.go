package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/framecull/internal/config"
	"github.com/kikiluvv/framecull/internal/logging"
	"github.com/kikiluvv/framecull/internal/pipeline"
	"github.com/kikiluvv/framecull/pkg/util"
)

var (
	cfgFile string
	verbose bool

	threshold float64
	clusters  int
	seed      int64
	fps       int
	interval  int
	order     string
	output    string
	model     string
	batch     string
	noBar     bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "framecull",
	Short: "framecull - keyframe video summaries",
	Long:  "Samples a video, keeps the visually distinct frames, clusters them into themes and encodes one frame per theme as a short summary video.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if model != "" {
			cfg.Descriptor.ModelPath = model
			cfg.Descriptor.UseModel = true
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./framecull.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "ONNX embedding model path")

	for _, c := range []*cobra.Command{summarizeCmd, detectCmd, extractCmd} {
		c.Flags().Float64Var(&threshold, "threshold", 0, "similarity threshold in (0,1) below which a frame is a keyframe")
		c.Flags().IntVar(&interval, "interval", 0, "seconds between sampled frames")
	}
	for _, c := range []*cobra.Command{summarizeCmd, clusterCmd} {
		c.Flags().IntVarP(&clusters, "clusters", "k", 0, "number of themes to keep")
		c.Flags().Int64Var(&seed, "seed", 0, "k-means random seed")
	}
	for _, c := range []*cobra.Command{summarizeCmd, extractCmd} {
		c.Flags().BoolVar(&noBar, "no-progress", false, "disable the extraction progress bar")
	}

	summarizeCmd.Flags().IntVar(&fps, "fps", 0, "summary frames per second")
	summarizeCmd.Flags().StringVar(&order, "order", "", "summary order: chronological or cluster")
	summarizeCmd.Flags().StringVarP(&output, "output", "o", "", "summary video path")

	extractCmd.Flags().StringVar(&batch, "batch", "", "descriptor batch name (default: frame directory name)")
	clusterCmd.Flags().StringVar(&batch, "batch", "", "descriptor batch to cluster")
	clusterCmd.MarkFlagRequired("batch")

	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

// runOptions collects the per-run overrides given on the command line
func runOptions(cmd *cobra.Command) pipeline.Options {
	opts := pipeline.Options{
		Threshold: threshold,
		Clusters:  clusters,
		FPS:       fps,
		Order:     order,
		Output:    output,
		Batch:     batch,
	}
	if interval > 0 {
		opts.Interval = time.Duration(interval) * time.Second
	}
	if f := cmd.Flags().Lookup("seed"); f != nil && f.Changed {
		s := seed
		opts.Seed = &s
	}
	if f := cmd.Flags().Lookup("no-progress"); f != nil && !noBar {
		opts.Progress = newProgressBar("Describing")
	}
	return opts
}

func newPipeline(cmd *cobra.Command) (*pipeline.Pipeline, error) {
	cfg := config.FromContext(cmd.Context())
	return pipeline.New(cmd.Context(), logging.WithComponent("framecull"), cfg)
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [video file or url]",
	Short: "Build a keyframe summary video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, err := newPipeline(cmd)
		if err != nil {
			return err
		}
		defer pipe.Close()

		res, err := pipe.Summarize(cmd.Context(), args[0], runOptions(cmd))
		if err != nil {
			log.Error().Err(err).Msg("summarisation failed")
			return err
		}

		for _, rep := range res.Output.Frames {
			log.Debug().Str("frame", rep).Msg("summary frame")
		}
		log.Info().
			Str("run_id", res.RunID.String()).
			Int("frames", res.Frames).
			Int("keyframes", len(res.Candidates)).
			Int("representatives", len(res.Representatives())).
			Str("output", res.Output.Video).
			Msg("summary complete")
		return nil
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect [frame directory]",
	Short: "List keyframe candidates in a directory of sampled frames",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, err := newPipeline(cmd)
		if err != nil {
			return err
		}
		defer pipe.Close()

		candidates, n, err := pipe.Detect(cmd.Context(), args[0], runOptions(cmd))
		if err != nil {
			return err
		}

		for _, c := range candidates {
			ts := "-"
			if c.Frame.Timestamp != nil {
				ts = util.FormatDuration(*c.Frame.Timestamp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%.4f\t%s\n", c.Index(), ts, c.Similarity, c.ID())
		}
		log.Info().Int("frames", n).Int("keyframes", len(candidates)).Msg("detection complete")
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract [frame directory]",
	Short: "Detect keyframes and store their descriptors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, err := newPipeline(cmd)
		if err != nil {
			return err
		}
		defer pipe.Close()

		opts := runOptions(cmd)
		if opts.Batch == "" {
			opts.Batch = batchName(args[0])
		}

		candidates, _, err := pipe.Detect(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		store, err := pipe.Extract(cmd.Context(), candidates, opts)
		if err != nil {
			return err
		}

		log.Info().
			Str("batch", opts.Batch).
			Int("descriptors", store.Len()).
			Int("dim", store.Dim()).
			Msg("extraction complete")
		return nil
	},
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Rerun clustering on a stored descriptor batch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, err := newPipeline(cmd)
		if err != nil {
			return err
		}
		defer pipe.Close()

		res, err := pipe.ClusterStored(cmd.Context(), batch, runOptions(cmd))
		if err != nil {
			return err
		}

		for _, rep := range res.Representatives {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%d\t%d\t%s\n", rep.Cluster, rep.Members, rep.Candidate.Index(), rep.Candidate.ID())
		}
		log.Info().
			Int("k", res.EffectiveK).
			Int("representatives", len(res.Representatives)).
			Msg("clustering complete")
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Download a remote video with yt-dlp",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		path, err := download(cmd.Context(), cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}
