package main

import (
	"io"
	"os"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type rootCommandeer struct {
	cmd   *cobra.Command
	debug bool
}

func newRootCommandeer() *rootCommandeer {
	commandeer := &rootCommandeer{}

	cmd := &cobra.Command{
		Use:           "goz4hc [command]",
		Short:         "LZ4 high-compression command-line tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			logrus.SetOutput(cmd.ErrOrStderr())
			if commandeer.debug {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&commandeer.debug, "debug", "D", false, "Enable debug logging")

	cmd.AddCommand(
		newCompressCommandeer(commandeer).cmd,
		newDecompressCommandeer(commandeer).cmd,
		newBenchCommandeer(commandeer).cmd,
		newVersionCommandeer(commandeer).cmd,
	)

	commandeer.cmd = cmd
	return commandeer
}

// sizeValue is a pflag.Value holding a byte size such as "64KiB" or "4MiB".
type sizeValue int

var _ pflag.Value = (*sizeValue)(nil)

func (s *sizeValue) String() string {
	return units.BytesSize(float64(*s))
}

func (s *sizeValue) Set(value string) error {
	n, err := units.RAMInBytes(value)
	if err != nil {
		return err
	}
	if n <= 0 || n > 1<<30 {
		return errors.Errorf("size %q out of range", value)
	}
	*s = sizeValue(n)
	return nil
}

func (s *sizeValue) Type() string {
	return "size"
}

// openInput opens path for reading; "-" is standard input.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to open input")
	}
	return f, nil
}

// createOutput creates path for writing; "-" is standard output.
func createOutput(cmd *cobra.Command, path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create output")
	}
	return f, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
