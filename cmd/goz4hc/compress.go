package main

import (
	"bufio"
	"io"

	"github.com/containerd/log"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/harriteja/GoZ4HC/compress"
)

type compressCommandeer struct {
	*rootCommandeer
	cmd               *cobra.Command
	level             int
	blockSize         sizeValue
	threads           int
	blockChecksum     bool
	noContentChecksum bool
	dependent         bool
	noPattern         bool
	output            string
}

func newCompressCommandeer(root *rootCommandeer) *compressCommandeer {
	commandeer := &compressCommandeer{
		rootCommandeer: root,
		blockSize:      sizeValue(compress.DefaultBlockSize),
	}

	cmd := &cobra.Command{
		Use:   "compress [flags] FILE",
		Short: "Compress FILE into an LZ4 frame (\"-\" reads standard input)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commandeer.run(cmd, args[0])
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&commandeer.level, "level", "l", int(compress.DefaultLevel), "Compression level (1-12)")
	flags.VarP(&commandeer.blockSize, "block-size", "B", "Frame block size: 64KiB, 256KiB, 1MiB or 4MiB")
	flags.IntVarP(&commandeer.threads, "threads", "T", 1, "Number of compression goroutines (0 uses all CPUs)")
	flags.BoolVar(&commandeer.blockChecksum, "block-checksum", false, "Add a checksum to every block")
	flags.BoolVar(&commandeer.noContentChecksum, "no-content-checksum", false, "Omit the content checksum")
	flags.BoolVar(&commandeer.dependent, "dependent", false, "Let blocks reference earlier blocks (single thread only)")
	flags.BoolVar(&commandeer.noPattern, "no-pattern", false, "Disable repeated pattern analysis")
	flags.StringVarP(&commandeer.output, "output", "o", "", "Output file (default FILE.lz4, or standard output for \"-\")")

	commandeer.cmd = cmd
	return commandeer
}

func (c *compressCommandeer) run(cmd *cobra.Command, input string) error {
	ctx := cmd.Context()
	if c.dependent && c.threads != 1 {
		return errors.New("--dependent requires --threads 1")
	}

	output := c.output
	if output == "" {
		output = "-"
		if input != "-" {
			output = input + ".lz4"
		}
	}

	in, err := openInput(cmd, input)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := createOutput(cmd, output)
	if err != nil {
		return err
	}
	defer out.Close()

	bw := bufio.NewWriter(out)
	zw, err := c.newWriter(bw)
	if err != nil {
		return err
	}

	n, err := io.Copy(zw, in)
	if err != nil {
		return errors.Wrap(err, "Failed to compress")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "Failed to finish frame")
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "Failed to write output")
	}

	log.G(ctx).WithFields(log.Fields{
		"input":  input,
		"output": output,
		"size":   units.HumanSize(float64(n)),
		"level":  c.level,
	}).Debug("Compressed")
	return out.Close()
}

func (c *compressCommandeer) newWriter(w io.Writer) (io.WriteCloser, error) {
	level := compress.CompressionLevel(c.level)
	if c.threads == 1 {
		return compress.NewWriterWithOptions(w, compress.WriterOptions{
			Level:                  level,
			BlockSize:              int(c.blockSize),
			BlockChecksum:          c.blockChecksum,
			ContentChecksum:        !c.noContentChecksum,
			DependentBlocks:        c.dependent,
			DisablePatternAnalysis: c.noPattern,
		})
	}
	return compress.NewParallelWriterWithOptions(w, compress.ParallelWriterOptions{
		Level:                  level,
		BlockSize:              int(c.blockSize),
		NumWorkers:             c.threads,
		BlockChecksum:          c.blockChecksum,
		ContentChecksum:        !c.noContentChecksum,
		DisablePatternAnalysis: c.noPattern,
	})
}
