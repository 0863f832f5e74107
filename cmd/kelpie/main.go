package main

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mistifyio/kelpie/internal/cli"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	server  = "http://localhost:18000"
	output  = cli.FormatID
	timeout = 30 * time.Second
	stdout  io.Writer = os.Stdout
	stdin   io.Reader = os.Stdin
)

func newClient() *cli.Client {
	return cli.NewClient(server, timeout)
}

// argsOrStdin returns args, or reads them from stdin when there are none and
// stdin is not a terminal
func argsOrStdin(args []string) []string {
	if len(args) > 0 {
		return args
	}
	if f, ok := stdin.(*os.File); ok {
		if info, err := f.Stat(); err != nil || info.Mode()&os.ModeCharDevice != 0 {
			return args
		}
	}
	return cli.Read(stdin)
}

func printAll(js cli.JMapSlice) error {
	return js.Print(stdout, output)
}

func help(cmd *cobra.Command, _ []string) {
	_ = cmd.Help()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kelpie",
		Short:         "kelpie is the cli interface to kelpied",
		Run:           help,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&server, "server", "s", server, "server address to connect to")
	root.PersistentFlags().StringVarP(&output, "output", "o", output, "output format: id, json or yaml")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", timeout, "request timeout")

	root.AddCommand(newComputeCmd(), newProjectCmd(), newVMCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fields := log.Fields{"error": err}
		if apiErr, ok := err.(*cli.APIError); ok {
			fields["code"] = apiErr.Code
			fields["status"] = http.StatusText(apiErr.Code)
		}
		log.WithFields(fields).Fatal("command failed")
	}
}
