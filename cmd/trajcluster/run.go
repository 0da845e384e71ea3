package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/couchcryptid/trajectory-cluster/internal/adapter/csvfile"
	"github.com/couchcryptid/trajectory-cluster/internal/adapter/plot"
	"github.com/couchcryptid/trajectory-cluster/internal/cluster"
	"github.com/couchcryptid/trajectory-cluster/internal/observability"
	"github.com/couchcryptid/trajectory-cluster/internal/pipeline"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type runFlags struct {
	output  string
	summary string
	plotDir string
}

func newRunCmd(flags *clusterFlags) *cobra.Command {
	var rf runFlags

	cmd := &cobra.Command{
		Use:   "run <samples.csv>",
		Short: "Cluster the trajectories in a CSV file",
		Long: `
run reads a flat table of trajectory samples (columns date, hour_inc, lat,
lon), clusters it and writes the same samples with stratum and cluster
columns. Use "-" to read standard input.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("plot-dir") {
				cfg.PlotDir = rf.plotDir
			}
			logger := newLogger(cfg)

			var reporters []pipeline.Reporter
			if rf.summary != "" {
				reporters = append(reporters, csvfile.NewSummarySink(rf.summary))
			}
			if cfg.PlotDir != "" {
				reporters = append(reporters, plot.NewRenderer(cfg.PlotDir, logger))
			}

			opts := cfg.Clustering.Options()
			bar := newProgressBar()
			if bar != nil {
				opts.Progress = func(done, total int) {
					bar.ChangeMax(total)
					_ = bar.Set(done)
				}
				defer bar.Finish() //nolint:errcheck // cosmetic
			}

			p := pipeline.New(
				csvfile.NewSource(args[0]),
				newClusterer(cfg, logger),
				csvfile.NewSink(rf.output),
				opts,
				logger,
				observability.NewMetricsWith(prometheus.NewRegistry()),
				pipeline.WithReporter(pipeline.Reporters(reporters...)),
			)

			res, err := p.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			if len(res.Strata) == 0 {
				return errors.New("no samples in input")
			}
			printReport(cmd.ErrOrStderr(), res)

			if err := res.Err(); err != nil {
				return fmt.Errorf("some strata could not be clustered: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&rf.output, "output", "o", "-", "labeled CSV output path")
	cmd.Flags().StringVar(&rf.summary, "summary", "", "write <prefix>_means.csv and <prefix>_shares.csv")
	cmd.Flags().StringVar(&rf.plotDir, "plot-dir", "", "write one PNG per stratum into this directory (overrides PLOT_DIR)")
	return cmd
}

func newProgressBar() *progressbar.ProgressBar {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Clustering strata"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// printReport writes one line per stratum with its outcome.
func printReport(w io.Writer, res cluster.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "STRATUM\tTRAJECTORIES\tEXCLUDED\tCOST\tSTATUS\n")
	for _, s := range res.Strata {
		status := "ok"
		if s.Err != nil {
			status = s.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%s\n", s.Stratum, s.Trajectories, s.Excluded, s.Cost, status)
	}
	tw.Flush()
	fmt.Fprintf(w, "run %s: %s metric, k=%d, %d trajectories labeled\n", res.RunID, res.Metric, res.K, res.Trajectories())
}
