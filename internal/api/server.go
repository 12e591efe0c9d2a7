package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/hueshift/internal/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ProcessImagePath = "/process-image/"
	UploadField      = "file"

	defaultMaxUploadBytes = 32 << 20
	multipartMemory       = 8 << 20
)

type Server struct {
	logger        *log.Logger
	transcoder    transcoder
	rateLimiter   RateLimiter
	subjectHeader string
	maxUpload     int64
	metrics       *metrics
	tracer        trace.Tracer
	mux           *http.ServeMux
	handler       http.Handler
}

type transcoder interface {
	Transcode(ctx context.Context, input []byte) (pipeline.Output, error)
}

type Options struct {
	MaxUploadBytes int64
	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter            RateLimiter
	RateLimitSubjectHeader string
	// Tracer defaults to the global otel provider.
	Tracer trace.Tracer
}

func NewServer(logger *log.Logger, transcoder transcoder, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("hueshift/api")
	}

	s := &Server{
		logger:        logger,
		transcoder:    transcoder,
		rateLimiter:   opts.RateLimiter,
		subjectHeader: opts.RateLimitSubjectHeader,
		maxUpload:     opts.MaxUploadBytes,
		metrics:       newMetrics(),
		tracer:        opts.Tracer,
		mux:           http.NewServeMux(),
	}
	s.routes()
	s.handler = s.withRequestID(withCORS(s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux)))))
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST "+ProcessImagePath+"{$}", s.handleProcessImage)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProcessImage(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFrom(r.Context())

	upload, err := s.readUpload(w, r)
	if err != nil {
		var uploadErr *uploadError
		if errors.As(err, &uploadErr) {
			writeJSON(w, uploadErr.status, map[string]string{"error": uploadErr.msg})
			return
		}
		s.logger.Printf("read upload failed request_id=%s err=%v", reqID, err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read upload"})
		return
	}

	out, err := s.transcode(r.Context(), upload)
	if err != nil {
		if errors.Is(err, pipeline.ErrImageTooLarge) {
			s.logger.Printf("rejected upload request_id=%s bytes=%d err=%v", reqID, len(upload), err)
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "image dimensions exceed the pixel limit"})
			return
		}
		if errors.Is(err, pipeline.ErrInvalidImage) {
			s.logger.Printf("rejected upload request_id=%s bytes=%d err=%v", reqID, len(upload), err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "uploaded file is not a decodable image"})
			return
		}
		s.logger.Printf("transcode failed request_id=%s bytes=%d err=%v", reqID, len(upload), err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to process image"})
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Data); err != nil {
		s.logger.Printf("write response failed request_id=%s err=%v", reqID, err)
	}
}

func (s *Server) transcode(ctx context.Context, input []byte) (pipeline.Output, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.transcode")
	defer span.End()

	start := time.Now()
	out, err := s.transcoder.Transcode(ctx, input)
	s.metrics.observeTranscode(input, out, err, time.Since(start))

	span.SetAttributes(attribute.Int("image.input_bytes", len(input)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcode failed")
		return pipeline.Output{}, err
	}

	span.SetAttributes(
		attribute.String("image.source_format", out.SourceFormat),
		attribute.Int("image.width", out.Width),
		attribute.Int("image.height", out.Height),
		attribute.Int("image.output_bytes", len(out.Data)),
	)
	span.SetStatus(codes.Ok, "transcoded")
	return out, nil
}

type uploadError struct {
	status int
	msg    string
}

func (e *uploadError) Error() string {
	return fmt.Sprintf("upload rejected status=%d: %s", e.status, e.msg)
}

// readUpload returns the bytes of the multipart file field.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	tooLarge := &uploadError{
		status: http.StatusRequestEntityTooLarge,
		msg:    fmt.Sprintf("upload exceeds %d bytes", s.maxUpload),
	}
	if r.ContentLength > s.maxUpload {
		return nil, tooLarge
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, tooLarge
		}
		return nil, &uploadError{
			status: http.StatusUnprocessableEntity,
			msg:    "request must be multipart/form-data with a \"" + UploadField + "\" field",
		}
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Printf("multipart cleanup failed: %v", err)
		}
	}()

	file, _, err := r.FormFile(UploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, &uploadError{
				status: http.StatusUnprocessableEntity,
				msg:    "missing \"" + UploadField + "\" upload field",
			}
		}
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
