package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Request struct {
	InputPath  string
	OutputPath string
}

type Result struct {
	OutputPath  string
	SourceBytes int
	OutputBytes int
	Width       int
	Height      int
	Format      string
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, out Output) (string, error)
}

// Processor runs fetch, transcode and emit for a single image.
type Processor struct {
	fetcher    Fetcher
	transcoder Transcoder
	emitter    Emitter
}

func NewProcessor(fetcher Fetcher, transcoder Transcoder, emitter Emitter) (*Processor, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if transcoder == nil {
		return nil, errors.New("transcoder is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}
	return &Processor{fetcher: fetcher, transcoder: transcoder, emitter: emitter}, nil
}

func NewLocalProcessor(opts Options) (*Processor, error) {
	transcoder, err := NewTranscoder(opts)
	if err != nil {
		return nil, fmt.Errorf("build transcoder: %w", err)
	}
	return NewProcessor(LocalFileFetcher{}, transcoder, LocalFileEmitter{})
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.InputPath) == "" {
		return Result{}, errors.New("input path is required")
	}

	source, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	out, err := p.transcoder.Transcode(ctx, source)
	if err != nil {
		return Result{}, fmt.Errorf("transcode stage: %w", err)
	}

	written, err := p.emitter.Emit(ctx, req, out)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}

	return Result{
		OutputPath:  written,
		SourceBytes: len(source),
		OutputBytes: len(out.Data),
		Width:       out.Width,
		Height:      out.Height,
		Format:      out.SourceFormat,
	}, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.InputPath, err)
	}
	return data, nil
}

// LocalFileEmitter writes to req.OutputPath, or next to the input as
// <name>_hueshift.jpg when no output path is given.
type LocalFileEmitter struct{}

func (LocalFileEmitter) Emit(_ context.Context, req Request, out Output) (string, error) {
	target := strings.TrimSpace(req.OutputPath)
	if target == "" {
		target = DefaultOutputPath(req.InputPath)
	}

	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(target, out.Data, 0o644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return target, nil
}

func DefaultOutputPath(inputPath string) string {
	dir := filepath.Dir(inputPath)
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(dir, sanitizePathToken(base)+"_hueshift.jpg")
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
