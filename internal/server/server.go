// Package server exposes the watermark operations over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yyyoichi/cipherseal"
	"github.com/yyyoichi/cipherseal/internal/imageio"
)

const (
	formFile    = "file"
	formMessage = "watermark_text"

	// multipart parts above this size are spooled to disk
	memoryLimit = 8 << 20
)

// Server serves the watermark API. A nil sealer puts it in degraded mode:
// every watermark route answers 503.
type Server struct {
	sealer    *cipherseal.Sealer
	log       *logrus.Logger
	maxUpload int64
}

func New(sealer *cipherseal.Sealer, log *logrus.Logger, maxUpload int64) *Server {
	return &Server{
		sealer:    sealer,
		log:       log,
		maxUpload: maxUpload,
	}
}

// RegisterRoutes registers the API routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /watermark/image/add/", s.ready(s.handleAddImage))
	mux.HandleFunc("POST /watermark/image/detect/", s.ready(s.handleDetectImage))
	mux.HandleFunc("POST /watermark/text/add/", s.ready(s.handleAddText))
	mux.HandleFunc("POST /watermark/text/detect/", s.ready(s.handleDetectText))
}

// Handler returns the routes wrapped with request id and logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.withRequestID(mux)
}

// Report is the JSON body of the detect routes.
type Report struct {
	Outcome   cipherseal.Outcome `json:"outcome"`
	ContentID string             `json:"content_id,omitempty"`
	Message   string             `json:"message,omitempty"`
	Reason    string             `json:"reason,omitempty"`
}

func newReport(r cipherseal.Report) Report {
	out := Report{Outcome: r.Outcome}
	if r.Outcome == cipherseal.Verified {
		out.ContentID = r.ContentID.String()
		out.Message = string(r.Message)
	}
	if r.Reason != nil {
		out.Reason = r.Reason.Error()
	}
	return out
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	status := "running"
	if s.sealer == nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Digital Watermarking API is %s.", status),
		"status":  status,
	})
}

func (s *Server) handleAddImage(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.upload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	img, format, err := imageio.Decode(file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	marked, receipt, err := s.sealer.AddImage(r.Context(), img, []byte(r.FormValue(formMessage)))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.entry(r).WithFields(logrus.Fields{
		"content_id": receipt.ContentID,
		"format":     format,
		"bits":       receipt.PayloadBits,
	}).Info("image watermarked")

	name := strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	w.Header().Set("Content-Type", imageio.PNG.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "watermarked_"+name+".png"))
	w.Header().Set("X-Content-ID", receipt.ContentID.String())
	if err := imageio.Encode(w, marked, imageio.PNG); err != nil {
		s.entry(r).WithError(err).Error("write image response")
	}
}

func (s *Server) handleDetectImage(w http.ResponseWriter, r *http.Request) {
	file, _, ok := s.upload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	img, _, err := imageio.Decode(file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.sealer.DetectImage(r.Context(), img)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logReport(r, report)
	writeJSON(w, http.StatusOK, newReport(report))
}

func (s *Server) handleAddText(w http.ResponseWriter, r *http.Request) {
	text, header, ok := s.uploadText(w, r)
	if !ok {
		return
	}
	marked, receipt, err := s.sealer.AddText(r.Context(), text, []byte(r.FormValue(formMessage)))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.entry(r).WithFields(logrus.Fields{
		"content_id": receipt.ContentID,
		"bits":       receipt.PayloadBits,
	}).Info("text watermarked")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "watermarked_"+filepath.Base(header.Filename)))
	w.Header().Set("X-Content-ID", receipt.ContentID.String())
	_, _ = io.WriteString(w, marked)
}

func (s *Server) handleDetectText(w http.ResponseWriter, r *http.Request) {
	text, _, ok := s.uploadText(w, r)
	if !ok {
		return
	}
	report, err := s.sealer.DetectText(r.Context(), text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logReport(r, report)
	writeJSON(w, http.StatusOK, newReport(report))
}

func (s *Server) ready(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sealer == nil {
			writeError(w, http.StatusServiceUnavailable, "Service unavailable.")
			return
		}
		next(w, r)
	}
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(memoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUpload))
			return nil, nil, false
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form")
		return nil, nil, false
	}
	file, header, err := r.FormFile(formFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing form file %q", formFile))
		return nil, nil, false
	}
	return file, header, true
}

func (s *Server) uploadText(w http.ResponseWriter, r *http.Request) (string, *multipart.FileHeader, bool) {
	file, header, ok := s.upload(w, r)
	if !ok {
		return "", nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, err)
		return "", nil, false
	}
	if !utf8.Valid(data) {
		s.fail(w, r, cipherseal.ErrInvalidText)
		return "", nil, false
	}
	return string(data), header, true
}

func (s *Server) logReport(r *http.Request, report cipherseal.Report) {
	fields := logrus.Fields{"outcome": report.Outcome}
	if report.Outcome == cipherseal.Verified {
		fields["content_id"] = report.ContentID
	}
	s.entry(r).WithFields(fields).Info("detection finished")
}

// fail maps err to a status code. Only errors without secrets reach the
// client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cipherseal.ErrInsufficientCapacity), errors.Is(err, cipherseal.ErrMessageTooLong),
		errors.Is(err, cipherseal.ErrForeignMarkers):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, imageio.ErrUnsupportedFormat), errors.Is(err, cipherseal.ErrInvalidText):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, cipherseal.ErrInvalidGrid):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	log := s.entry(r).WithError(err).WithField("status", status)
	if status == http.StatusInternalServerError {
		log.Error("request failed")
		writeError(w, status, "An unexpected error occurred.")
		return
	}
	log.Warn("request rejected")
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type ctxKey struct{}

func (s *Server) entry(r *http.Request) *logrus.Entry {
	if e, ok := r.Context().Value(ctxKey{}).(*logrus.Entry); ok {
		return e
	}
	return logrus.NewEntry(s.log)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rid := uuid.NewString()
		w.Header().Set("X-Request-ID", rid)
		log := s.log.WithFields(logrus.Fields{
			"rid":    rid,
			"path":   r.URL.Path,
			"method": r.Method,
		})
		log.Debug("request received")

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, log)))

		log.WithFields(logrus.Fields{
			"status":   rec.status,
			"duration": time.Since(start),
		}).Info("request completed")
	})
}
