package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gifforge/internal/config"
	"gifforge/internal/logging"
	"gifforge/internal/memory"
	"gifforge/internal/pipeline"
	"gifforge/internal/raster"
	"gifforge/internal/source"
)

func main() {
	var (
		in       = flag.String("in", "", "source video file (required)")
		out      = flag.String("out", "", "output file (default: source name with new extension)")
		format   = flag.String("format", "gif", "output format: gif or mp4")
		fps      = flag.Int("fps", 10, "output frame rate")
		quality  = flag.Int("quality", 80, "output quality, 1-100")
		width    = flag.Int("width", 0, "target width (0 = source width, capped)")
		height   = flag.Int("height", 0, "target height (0 = source height, capped)")
		start    = flag.Float64("start", 0, "start offset in seconds")
		duration = flag.Float64("duration", 0, "clip length in seconds (0 = to end)")
	)
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	memory.ConfigureFromEnv()
	raster.InitVips()
	defer raster.ShutdownVips()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, stopping conversion...")
		cancel()
	}()

	req := source.Request{
		FPS:          *fps,
		Quality:      *quality,
		TargetWidth:  *width,
		TargetHeight: *height,
		StartTime:    *start,
		Duration:     *duration,
		TrimEnabled:  *duration > 0,
		Format:       source.Format(*format),
	}

	res, err := pipeline.New(cfg.Limits, nil).Convert(ctx, *in, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: conversion failed: %v\n", err)
		os.Exit(1)
	}
	if res.Canceled {
		fmt.Fprintln(os.Stderr, "Conversion canceled")
		os.Exit(130)
	}

	target := *out
	if target == "" {
		base := strings.TrimSuffix(*in, filepath.Ext(*in))
		target = base + "." + string(req.Format)
	}
	if err := os.WriteFile(target, res.Bytes, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not write %s: %v\n", target, err)
		os.Exit(1)
	}

	for _, warning := range res.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}
	fmt.Printf("Wrote %s (%s, %d frames, %d skipped) in %v\n",
		target, memory.FormatBytes(int64(res.Size)), res.FramesEncoded, res.FramesSkipped,
		res.ProcessingTime.Round(10*time.Millisecond))
	logging.Debug("conversion finished")
}
