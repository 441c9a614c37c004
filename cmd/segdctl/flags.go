package main

import (
	"github.com/urfave/cli/v3"

	"example.com/segdgate/internal/segd"
)

var (
	inputPath  string
	slack      int
	strictTail bool
)

func inputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "in",
		Aliases:     []string{"i"},
		Usage:       "SEG-D record (.segd, .sgd, .rg16, optionally .zst compressed)",
		Destination: &inputPath,
		Required:    true,
	}
}

func decodeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "slack",
			Usage:       "bytes tolerated past the last declared block",
			Destination: &slack,
		},
		&cli.BoolFlag{
			Name:        "strict-tail",
			Usage:       "treat a truncated final trace as fatal",
			Destination: &strictTail,
		},
	}
}

func decodeOptions(extra ...segd.Option) []segd.Option {
	opts := []segd.Option{segd.WithSlack(slack)}
	if strictTail {
		opts = append(opts, segd.WithStrictTail())
	}
	return append(opts, extra...)
}
