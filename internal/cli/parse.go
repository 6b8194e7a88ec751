package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

func parseListArgs(args []string) (listOptions, error) {
	listFS := flag.NewFlagSet("list", flag.ContinueOnError)
	listFS.SetOutput(os.Stderr)

	if err := listFS.Parse(args); err != nil {
		return listOptions{}, err
	}
	if len(listFS.Args()) != 1 {
		return listOptions{}, errors.New("usage: photostore list <container>")
	}
	return listOptions{Container: listFS.Arg(0)}, nil
}

func parseUploadArgs(args []string) (uploadOptions, string, []string, error) {
	uploadFS := flag.NewFlagSet("upload", flag.ContinueOnError)
	uploadFS.SetOutput(os.Stderr)

	var opts uploadOptions
	uploadFS.StringVar(&opts.Mode, "mode", modeOverwrite, "write mode: overwrite, optimistic or lease")
	uploadFS.StringVar(&opts.IfMatch, "if-match", "", "version token the blob must still carry (optimistic mode, single file)")
	uploadFS.IntVar(&opts.Parallel, "parallel", defaultParallel, "maximum concurrent uploads")

	if err := uploadFS.Parse(args); err != nil {
		return uploadOptions{}, "", nil, err
	}

	rest := uploadFS.Args()
	if len(rest) < 2 {
		return uploadOptions{}, "", nil, errors.New("usage: photostore upload [-mode overwrite|optimistic|lease] [-if-match etag] [-parallel n] <container> <file>...")
	}

	opts.Mode = strings.ToLower(strings.TrimSpace(opts.Mode))
	switch opts.Mode {
	case modeOverwrite, modeOptimistic, modeLease:
	default:
		return uploadOptions{}, "", nil, fmt.Errorf("unknown upload mode %q", opts.Mode)
	}
	if opts.Parallel < 1 {
		return uploadOptions{}, "", nil, errors.New("parallel must be >= 1")
	}
	opts.IfMatch = strings.TrimSpace(opts.IfMatch)
	if opts.IfMatch != "" {
		if opts.Mode != modeOptimistic {
			return uploadOptions{}, "", nil, errors.New("-if-match requires -mode optimistic")
		}
		if len(rest) != 2 {
			return uploadOptions{}, "", nil, errors.New("-if-match accepts exactly one file")
		}
	}
	return opts, rest[0], rest[1:], nil
}

func parseGetArgs(args []string) (getOptions, string, string, error) {
	getFS := flag.NewFlagSet("get", flag.ContinueOnError)
	getFS.SetOutput(os.Stderr)

	var opts getOptions
	getFS.StringVar(&opts.Output, "o", "", "write the blob to this file instead of stdout")

	if err := getFS.Parse(args); err != nil {
		return getOptions{}, "", "", err
	}
	rest := getFS.Args()
	if len(rest) != 2 {
		return getOptions{}, "", "", errors.New("usage: photostore get [-o path] <container> <name>")
	}
	return opts, rest[0], rest[1], nil
}
