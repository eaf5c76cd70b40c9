package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/containerd/log"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/harriteja/GoZ4HC/compress"
)

type decompressCommandeer struct {
	*rootCommandeer
	cmd    *cobra.Command
	output string
}

func newDecompressCommandeer(root *rootCommandeer) *decompressCommandeer {
	commandeer := &decompressCommandeer{rootCommandeer: root}

	cmd := &cobra.Command{
		Use:   "decompress [flags] FILE",
		Short: "Decompress an LZ4 frame (\"-\" reads standard input)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commandeer.run(cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&commandeer.output, "output", "o", "", "Output file (default FILE without .lz4, or standard output for \"-\")")

	commandeer.cmd = cmd
	return commandeer
}

func (c *decompressCommandeer) run(cmd *cobra.Command, input string) error {
	output := c.output
	if output == "" {
		switch {
		case input == "-":
			output = "-"
		case strings.HasSuffix(input, ".lz4"):
			output = strings.TrimSuffix(input, ".lz4")
		default:
			return errors.Errorf("cannot derive an output name from %q, use --output", input)
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
	n, err := io.Copy(bw, compress.NewReader(bufio.NewReader(in)))
	if err != nil {
		return errors.Wrap(err, "Failed to decompress")
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "Failed to write output")
	}

	log.G(cmd.Context()).WithFields(log.Fields{
		"input":  input,
		"output": output,
		"size":   units.HumanSize(float64(n)),
	}).Debug("Decompressed")
	return out.Close()
}
