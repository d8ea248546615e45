package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gifforge/internal/artifactcache"
	"gifforge/internal/config"
	"gifforge/internal/encode"
	"gifforge/internal/frame"
	"gifforge/internal/logging"
	"gifforge/internal/metrics"
	"gifforge/internal/probe"
	"gifforge/internal/raster"
	"gifforge/internal/source"
	"gifforge/internal/supervise"
	"gifforge/internal/workers"
)

// Result is the immutable outcome of one conversion.
type Result struct {
	Format         source.Format
	Bytes          []byte
	Size           int
	Poster         []byte
	ProcessingTime time.Duration
	Warnings       []string
	FramesEncoded  int
	FramesSkipped  int

	// Canceled marks a job the caller canceled: not a failure, not a
	// success, no artifact.
	Canceled bool

	// Cached marks an artifact served from the cache without running the
	// pipeline.
	Cached bool
}

// Pipeline converts video sources into GIF or MP4 artifacts. Safe for
// concurrent use; each Convert call owns its own resources.
type Pipeline struct {
	limits config.Limits
	cache  *artifactcache.Cache

	// overridable in tests
	decoderFor func(path string) frame.Decoder
	probeFn    func(ctx context.Context, path string) (*probe.MediaInfo, error)
}

// New creates a pipeline. cache may be nil to disable artifact caching.
func New(limits config.Limits, cache *artifactcache.Cache) *Pipeline {
	return &Pipeline{
		limits:     limits,
		cache:      cache,
		decoderFor: func(path string) frame.Decoder { return frame.NewFFmpegDecoder(path) },
		probeFn:    probe.Probe,
	}
}

// Convert runs the full conversion for a source on disk. Cancellation of ctx
// surfaces as Result.Canceled, not as an error.
func (p *Pipeline) Convert(ctx context.Context, path string, req source.Request) (*Result, error) {
	return p.convert(ctx, path, "", req, nil)
}

// ConvertUpload is Convert for client uploads: it additionally checks the
// declared content type against the file, and forwards progress events to
// events if non-nil. The pipeline closes events when the job ends.
func (p *Pipeline) ConvertUpload(ctx context.Context, path, declaredType string, req source.Request, events chan<- supervise.Event) (*Result, error) {
	return p.convert(ctx, path, declaredType, req, events)
}

func (p *Pipeline) convert(ctx context.Context, path, declaredType string, req source.Request, events chan<- supervise.Event) (*Result, error) {
	start := time.Now()
	metrics.ConversionsInFlight.Inc()
	defer metrics.ConversionsInFlight.Dec()

	res, err := p.run(ctx, path, declaredType, req, events, start)

	format := string(req.Format)
	switch {
	case err != nil:
		status := "failed"
		if CategoryOf(err) == CategoryWorkerTimeout {
			status = "timeout"
		}
		metrics.ConversionsTotal.WithLabelValues(format, status).Inc()
	case res.Canceled:
		metrics.ConversionsTotal.WithLabelValues(format, "canceled").Inc()
	case res.Cached:
		metrics.ConversionsTotal.WithLabelValues(format, "cache_hit").Inc()
	default:
		metrics.ConversionsTotal.WithLabelValues(format, "complete").Inc()
		metrics.ConversionDuration.WithLabelValues(format).Observe(res.ProcessingTime.Seconds())
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, path, declaredType string, req source.Request, events chan<- supervise.Event, start time.Time) (*Result, error) {
	if events != nil {
		defer close(events)
	}

	if err := req.Validate(); err != nil {
		return nil, failure(CategoryValidation, supervise.StageLoading, "invalid conversion request", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, failure(CategoryLoading, supervise.StageLoading, "source file is not readable", err)
	}

	fingerprint := artifactcache.Fingerprint(path, info.Size(), info.ModTime(), req)
	if p.cache != nil {
		data, _, ok, err := p.cache.Get(ctx, fingerprint)
		if err != nil {
			logging.Warn("artifact cache lookup failed: %v", err)
		} else if ok {
			logging.Debug("Cache hit for %s", fingerprint)
			return &Result{
				Format:         req.Format,
				Bytes:          data,
				Size:           len(data),
				ProcessingTime: time.Since(start),
				Cached:         true,
			}, nil
		}
	}

	validateStart := time.Now()
	meta := source.FileMeta{Path: path, SizeBytes: info.Size(), DeclaredType: declaredType}
	desc, warnings, err := source.Validate(ctx, meta, req, p.limits, func(ctx context.Context) (*probe.MediaInfo, error) {
		return p.probeFn(ctx, path)
	})
	if err != nil {
		return nil, validationFailure(err)
	}
	metrics.StageDuration.WithLabelValues("validating").Observe(time.Since(validateStart).Seconds())

	window := desc.Window(req)
	estimated := window.EstimatedFrames(req.FPS)
	if estimated == 0 {
		return nil, failure(CategoryValidation, supervise.StageLoading, "extraction window contains no frames",
			fmt.Errorf("window [%.3f, %.3f] at %d fps", window.Start, window.End, req.FPS))
	}

	sup := supervise.New(ctx, estimated, p.limits)

	// A fatal encoder error must stop the extractor too, not just the pool:
	// abortJob cancels everything running under jobCtx.
	jobCtx, abortJob := context.WithCancelCause(sup.Context())
	defer abortJob(nil)

	var forwarded chan struct{}
	if events != nil {
		forwarded = make(chan struct{})
		go func() {
			defer close(forwarded)
			for ev := range sup.Events() {
				select {
				case events <- ev:
				default:
				}
			}
		}()
	}
	defer func() {
		sup.Stop()
		if forwarded != nil {
			<-forwarded
		}
	}()

	sup.Transition(supervise.StageLoading, "source validated")

	reclaim := &Reclaimer{}
	defer reclaim.Reclaim()

	outW, outH := frame.OutputDims(desc.Width, desc.Height, req.TargetWidth, req.TargetHeight, p.limits.MaxOutputDimension)
	logging.Info("Converting %s: %s %dx%d, %d frames estimated", path, req.Format, outW, outH, estimated)

	workerCount := workers.ForEncode(estimated, p.limits.WorkerCap, p.limits.LargeJobFrames)
	bufPool := frame.NewPool(outW, outH, workerCount*2+frame.BatchSize(req.FPS))
	reclaim.Add("buffer pool", bufPool.Trim)

	dec := p.decoderFor(desc.Path)
	reclaim.Add("frame decoder", func() {
		if err := dec.Close(); err != nil {
			logging.Warn("decoder close failed: %v", err)
		}
	})

	var enc encode.Encoder
	switch req.Format {
	case source.FormatMP4:
		enc = encode.NewMP4(jobCtx, outW, outH, req.FPS, req.Quality)
	default:
		enc = encode.NewGIF(req, estimated, p.limits)
	}
	reclaim.Add("encoder", func() {
		if err := enc.Close(); err != nil {
			logging.Warn("encoder close failed: %v", err)
		}
	})

	ex := frame.NewExtractor(dec, desc, req, p.limits, bufPool)
	batcher := frame.NewBatcher(req.FPS, bufPool)
	pool := encode.NewPool(workerCount)

	sup.Transition(supervise.StageProcessing, "extracting frames")
	processStart := time.Now()

	frames := make(chan *frame.Buffer, workerCount*2)
	var poster []byte
	extractDone := make(chan error, 1)
	go func() {
		defer close(frames)
		lastSkipped := 0
		extractDone <- batcher.Run(jobCtx, ex, func(buf *frame.Buffer) error {
			if skipped := ex.Skipped(); skipped > lastSkipped {
				for ; lastSkipped < skipped; lastSkipped++ {
					sup.FrameSkipped()
				}
			}
			if poster == nil {
				if preview, err := raster.PosterWebP(buf, req.Quality); err == nil {
					poster = preview
				} else {
					logging.Warn("poster generation failed: %v", err)
					poster = []byte{}
				}
			}
			select {
			case frames <- buf:
				return nil
			case <-jobCtx.Done():
				buf.Release()
				return jobCtx.Err()
			}
		})
	}()

	encoded := 0
	encodeErr := pool.Run(jobCtx, frames, enc, func(uint64) {
		encoded++
		sup.FrameDone()
	}, abortJob)
	extractErr := <-extractDone
	metrics.StageDuration.WithLabelValues("processing").Observe(time.Since(processStart).Seconds())

	if err := p.classifyAbort(ctx, sup, extractErr, encodeErr); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		reclaim.Reclaim()
		return &Result{Format: req.Format, ProcessingTime: time.Since(start), Canceled: true}, nil
	}

	sup.Transition(supervise.StageEncoding, "assembling artifact")
	encodeStart := time.Now()
	artifact, err := enc.Finalize()
	if err != nil {
		return nil, failure(CategoryEncoding, supervise.StageEncoding, "artifact assembly failed", err)
	}
	metrics.StageDuration.WithLabelValues("encoding").Observe(time.Since(encodeStart).Seconds())

	reclaim.Reclaim()

	if p.cache != nil {
		if err := p.cache.Set(context.WithoutCancel(ctx), fingerprint, string(req.Format), artifact, 0); err != nil {
			logging.Warn("artifact cache store failed: %v", err)
		}
	}

	res := &Result{
		Format:         req.Format,
		Bytes:          artifact,
		Size:           len(artifact),
		Poster:         poster,
		ProcessingTime: time.Since(start),
		Warnings:       warnings,
		FramesEncoded:  encoded,
		FramesSkipped:  ex.Skipped(),
	}
	sup.Transition(supervise.StageComplete, "conversion complete")
	logging.Info("Conversion complete: %d bytes in %v (%d frames, %d skipped)",
		res.Size, res.ProcessingTime, res.FramesEncoded, res.FramesSkipped)
	return res, nil
}

// classifyAbort maps the extract/encode error pair onto the taxonomy. A real
// encode or extract fault wins over the stall classification: a dead encoder
// stops producing progress, so on long jobs the stall deadline fires while
// the deterministic fault is still draining, and reporting worker_timeout
// there would bury the actual cause. A caller cancellation is not an error
// and returns nil so the caller can build a canceled Result.
func (p *Pipeline) classifyAbort(parent context.Context, sup *supervise.Supervisor, extractErr, encodeErr error) error {
	if extractErr == nil && encodeErr == nil {
		return nil
	}

	if parent.Err() != nil {
		// Caller cancellation; surfaced as a Result state.
		return nil
	}

	if encodeErr != nil && !errors.Is(encodeErr, context.Canceled) {
		return failure(CategoryEncoding, supervise.StageProcessing, "frame encoding failed", encodeErr)
	}
	if extractErr != nil && !errors.Is(extractErr, context.Canceled) {
		return failure(CategoryProcessing, supervise.StageProcessing, "frame extraction failed", extractErr)
	}

	if sup.Stalled() {
		err := encodeErr
		if err == nil {
			err = extractErr
		}
		return failure(CategoryWorkerTimeout, supervise.StageProcessing, "conversion stalled", err)
	}

	// Canceled errors with a live parent and no stall: the supervisor was
	// stopped early. Treat as a resource failure rather than masking it.
	err := extractErr
	if err == nil {
		err = encodeErr
	}
	return failure(CategoryResource, supervise.StageProcessing, "conversion aborted", err)
}
