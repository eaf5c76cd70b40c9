package main

import (
	"bytes"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/containerd/log"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/harriteja/GoZ4HC/compress"
	"github.com/harriteja/GoZ4HC/parallel"
)

type benchCommandeer struct {
	*rootCommandeer
	cmd       *cobra.Command
	levels    []int
	chunkSize sizeValue
	threads   int
	noPattern bool
}

func newBenchCommandeer(root *rootCommandeer) *benchCommandeer {
	commandeer := &benchCommandeer{
		rootCommandeer: root,
		chunkSize:      sizeValue(parallel.DefaultChunkSize),
	}

	cmd := &cobra.Command{
		Use:   "bench [flags] FILE",
		Short: "Measure ratio and speed of FILE at several levels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commandeer.run(cmd, args[0])
		},
	}

	flags := cmd.Flags()
	flags.IntSliceVarP(&commandeer.levels, "levels", "l", []int{1, 3, 6, 9, 10, 12}, "Compression levels to measure")
	flags.Var(&commandeer.chunkSize, "chunk-size", "Size of the independently compressed chunks")
	flags.IntVarP(&commandeer.threads, "threads", "T", 0, "Number of worker goroutines (0 uses all CPUs)")
	flags.BoolVar(&commandeer.noPattern, "no-pattern", false, "Disable repeated pattern analysis")

	commandeer.cmd = cmd
	return commandeer
}

// benchResult is one row of the bench table.
type benchResult struct {
	level      int
	compressed int
	compress   time.Duration
	decompress time.Duration
}

func (c *benchCommandeer) run(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "Failed to read input")
	}
	if len(data) == 0 {
		return errors.Errorf("%s is empty", path)
	}

	reg := prometheus.NewRegistry()
	metrics, err := parallel.NewMetrics(reg)
	if err != nil {
		return err
	}

	d := parallel.NewDispatcher(c.threads, int(c.chunkSize))
	d.SetMetrics(metrics)
	d.SetPatternAnalysis(!c.noPattern)

	var results []benchResult
	for _, level := range c.levels {
		if err := d.SetLevel(compress.CompressionLevel(level)); err != nil {
			return err
		}

		start := time.Now()
		blocks, err := d.CompressBlocks(ctx, data)
		if err != nil {
			return errors.Wrapf(err, "level %d", level)
		}
		compressTime := time.Since(start)

		start = time.Now()
		decoded, err := d.DecompressBlocks(ctx, blocks)
		if err != nil {
			return errors.Wrapf(err, "level %d", level)
		}
		decompressTime := time.Since(start)
		if !bytes.Equal(decoded, data) {
			return errors.Errorf("level %d: round trip mismatch", level)
		}

		size := 0
		for _, b := range blocks {
			size += len(b.Data)
		}
		results = append(results, benchResult{level, size, compressTime, decompressTime})
		log.G(ctx).WithField("level", level).WithField("blocks", len(blocks)).Debug("Benchmarked level")
	}

	c.print(cmd, path, len(data), d.NumWorkers(), results)
	return c.logMetrics(cmd, reg)
}

func (c *benchCommandeer) print(cmd *cobra.Command, path string, size, workers int, results []benchResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s, chunks of %s, %d workers\n",
		path, units.HumanSize(float64(size)), c.chunkSize.String(), workers)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "level\tcompressed\tratio\tcompress MB/s\tdecompress MB/s\t")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%.1f\t%.1f\t\n",
			r.level,
			units.HumanSize(float64(r.compressed)),
			float64(size)/float64(r.compressed),
			throughput(size, r.compress),
			throughput(size, r.decompress))
	}
	tw.Flush()
}

// logMetrics writes the collected counters at debug level.
func (c *benchCommandeer) logMetrics(cmd *cobra.Command, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return errors.Wrap(err, "Failed to gather metrics")
	}
	logger := log.G(cmd.Context())
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if counter := m.GetCounter(); counter != nil {
				logger.WithField("metric", mf.GetName()).
					WithField("labels", m.GetLabel()).
					WithField("value", counter.GetValue()).
					Debug("Metric")
			}
		}
	}
	return nil
}

func throughput(size int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(size) / (1 << 20) / elapsed.Seconds()
}
