package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	app := &cli.Command{
		Name:    "segdctl",
		Usage:   "Decode, export and validate SEG-D field records",
		Version: fmt.Sprintf("%s (built %s)", version, buildDate),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			infoCmd(),
			decodeCmd(),
			dumpCmd(),
			miniseedCmd(),
			validateCmd(),
			summaryCmd(),
			manifestCmd(),
			batchCmd(),
			rulesCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
