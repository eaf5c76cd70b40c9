package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/harriteja/GoZ4HC/internal/cpu"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

type versionCommandeer struct {
	*rootCommandeer
	cmd *cobra.Command
}

func newVersionCommandeer(root *rootCommandeer) *versionCommandeer {
	commandeer := &versionCommandeer{rootCommandeer: root}

	commandeer.cmd = &cobra.Command{
		Use:   "version",
		Short: "Show version and match counter information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "goz4hc %s\n", version)
			fmt.Fprintf(out, "go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "match counter: %s\n", cpu.ImplementationName(cpu.BestImplementation()))
		},
	}
	return commandeer
}
