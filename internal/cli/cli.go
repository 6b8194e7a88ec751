package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"photostore/internal/photos"
	"photostore/internal/state"
	"photostore/internal/storage"
)

func Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("photostore", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configPath, err := state.ConfigPath()
	if err != nil {
		return err
	}
	envPath, err := state.EnvPath()
	if err != nil {
		return err
	}
	fs.StringVar(&configPath, "config", configPath, "path to config file")
	fs.StringVar(&envPath, "env", envPath, "path to dotenv file with store secrets")

	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return usageError()
	}

	switch rest[0] {
	case "list":
		opts, err := parseListArgs(rest[1:])
		if err != nil {
			return err
		}
		svc, err := openService(configPath, envPath)
		if err != nil {
			return err
		}
		return runList(ctx, svc, opts)
	case "upload":
		opts, container, files, err := parseUploadArgs(rest[1:])
		if err != nil {
			return err
		}
		svc, err := openService(configPath, envPath)
		if err != nil {
			return err
		}
		return runUpload(ctx, svc, opts, container, files)
	case "get":
		opts, container, name, err := parseGetArgs(rest[1:])
		if err != nil {
			return err
		}
		svc, err := openService(configPath, envPath)
		if err != nil {
			return err
		}
		return runGet(ctx, svc, opts, container, name)
	default:
		return usageError()
	}
}

func usageError() error {
	return errors.New("usage: photostore [-config path] [-env path] list <container> | upload [flags] <container> <file>... | get [-o path] <container> <name>")
}

func runList(ctx context.Context, svc *photos.Service, opts listOptions) error {
	blobs, err := svc.List(ctx, opts.Container)
	if err != nil {
		return err
	}
	for _, b := range blobs {
		fmt.Printf("%s\t%s\n", b.Name, b.URL)
	}
	return nil
}

// runUpload sends every file with at most opts.Parallel uploads in flight.
// The first failure cancels the uploads that have not started yet.
func runUpload(ctx context.Context, svc *photos.Service, opts uploadOptions, container string, files []string) error {
	receipts := make([]photos.Receipt, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read file %s: %w", file, err)
			}
			r, err := uploadOne(gctx, svc, opts, container, file, data)
			if err != nil {
				return fmt.Errorf("upload %s: %w", file, err)
			}
			receipts[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range receipts {
		fmt.Printf("uploaded %s etag=%s url=%s\n", r.Name, r.ETag, r.URL)
	}
	fmt.Printf("upload complete: files=%d mode=%s\n", len(receipts), opts.Mode)
	return nil
}

func uploadOne(ctx context.Context, svc *photos.Service, opts uploadOptions, container, file string, data []byte) (photos.Receipt, error) {
	switch opts.Mode {
	case modeOptimistic:
		if opts.IfMatch != "" {
			return svc.UpdateIfMatch(ctx, container, file, data, storage.ETag(opts.IfMatch))
		}
		return svc.UpdateOptimistic(ctx, container, file, data)
	case modeLease:
		return svc.UpdateWithLease(ctx, container, file, data)
	default:
		return svc.Upload(ctx, container, file, data)
	}
}

func runGet(ctx context.Context, svc *photos.Service, opts getOptions, container, name string) error {
	photo, err := svc.Fetch(ctx, container, name)
	if err != nil {
		return err
	}

	if opts.Output == "" || opts.Output == "-" {
		_, err := os.Stdout.Write(photo.Data)
		return err
	}
	if err := os.WriteFile(opts.Output, photo.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.Output, err)
	}
	fmt.Printf("get complete: %s bytes=%d etag=%s\n", opts.Output, len(photo.Data), photo.ETag)
	return nil
}
