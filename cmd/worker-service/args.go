package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

const usage = "usage: worker-service [-config path] [-number N | -x N] <queueName>"

// options are the parsed command-line arguments. MaxJobs is -1 when neither
// -number nor -x was given.
type options struct {
	ConfigPath string
	MaxJobs    int
	Queue      string
}

func parseArgs(args []string, defaultConfigPath string) (*options, error) {
	fs := flag.NewFlagSet("worker-service", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	opts := &options{}
	fs.StringVar(&opts.ConfigPath, "config", defaultConfigPath, "Path to configuration file")
	number := fs.Int("number", -1, "Number of jobs to process before exiting")
	short := fs.Int("x", -1, "Shorthand for -number")

	// flag stops at the first positional argument, so parse again after each one
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w\n%s", err, usage)
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}

	opts.MaxJobs = *number
	if *short >= 0 {
		if *number >= 0 && *number != *short {
			return nil, errors.New("-number and -x disagree\n" + usage)
		}
		opts.MaxJobs = *short
	}

	if opts.MaxJobs < -1 {
		return nil, fmt.Errorf("max jobs must not be negative, got %d", opts.MaxJobs)
	}

	if len(positional) != 1 {
		return nil, errors.New("exactly one queue name is required\n" + usage)
	}
	opts.Queue = positional[0]

	return opts, nil
}
