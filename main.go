package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-editor/app"
	"resume-editor/pkg/compile"
	"resume-editor/pkg/config"
	"resume-editor/pkg/export"
	"resume-editor/pkg/session"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/google/uuid"
)

const Version = "0.1.0"

func main() {
	usage := `Resume editor.

Edit a LaTeX resume with a live compiled preview and AI rewrites.

Usage:
    resume-editor serve [--addr=<addr>] [--config=<file>] [--v=<level>]
    resume-editor render <file> [--out=<path>] [--config=<file>] [--v=<level>]
        [--timeout=<seconds>]
    resume-editor -h | --help
    resume-editor --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --addr=<addr>          Listen address (default from config, :8080).
    --config=<file>        YAML config file.
    --out=<path>           Where to write the PDF [default: resume.pdf].
    --timeout=<seconds>    Give up rendering after this long [default: 120].
    --v=<level>            Log verbosity [default: 0].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}

	flag.Set("logtostderr", "true")
	if v, _ := opts.String("--v"); v != "" {
		flag.Set("v", v)
	}
	defer glog.Flush()

	configPath, _ := opts.String("--config")
	cfg, err := config.Load(configPath)
	if err != nil {
		glog.Errorf("config = %s", err)
		os.Exit(2)
	}

	if serve_, _ := opts.Bool("serve"); serve_ {
		if err := serve(cfg, opts); err != nil {
			glog.Errorf("serve = %s", err)
			glog.Flush()
			os.Exit(1)
		}
	} else if render_, _ := opts.Bool("render"); render_ {
		if err := render(cfg, opts); err != nil {
			fmt.Fprintf(os.Stderr, "render: %s\n", err)
			glog.Flush()
			os.Exit(1)
		}
	}
}

func serve(cfg *config.Config, opts docopt.Opts) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := app.NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer server.Close()

	addr, _ := opts.String("--addr")
	errs := make(chan error, 1)
	go func() {
		errs <- server.Start(addr)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		glog.Infof("shutting down")
		return nil
	}
}

// render compiles one file headlessly and writes the PDF
func render(cfg *config.Config, opts docopt.Opts) error {
	path, _ := opts.String("<file>")
	out, _ := opts.String("--out")
	timeout, err := opts.Int("--timeout")
	if err != nil || timeout <= 0 {
		timeout = 120
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text := string(source)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	services, closers, err := app.NewServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	// no one is typing, so compile as soon as the session starts
	s := session.New(uuid.New().String(), &text, services, session.Options{
		Debounce:       time.Millisecond,
		CompileTimeout: cfg.CompileTimeout(),
		ExportDir:      cfg.ExportDir,
	})
	defer s.Close()

	if err := s.WaitSettled(ctx); err != nil {
		return err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	if snap.CompileStatus == compile.StatusError {
		return errors.New(snap.ErrorMessage)
	}

	var written export.Download
	err = s.Export(ctx, func(d *export.Download) error {
		written = *d
		return export.ToFile(out)(d)
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d bytes, %d pages\n", out, written.Size, written.Pages)
	return nil
}
