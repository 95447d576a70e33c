package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yyyoichi/cipherseal"
	"github.com/yyyoichi/cipherseal/internal/imageio"
	"github.com/yyyoichi/cipherseal/internal/logging"
)

func newTestServer(t *testing.T, key string) http.Handler {
	t.Helper()
	var sealer *cipherseal.Sealer
	if key != "" {
		var err error
		sealer, err = cipherseal.New([]byte(key))
		require.NoError(t, err)
	}
	return New(sealer, logging.Discard(), 1<<20).Handler()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y * 5), B: uint8(x ^ y), A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imageio.Encode(&buf, img, imageio.PNG))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path, filename string, file []byte, message string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(file)
	require.NoError(t, err)
	if message != "" {
		require.NoError(t, mw.WriteField("watermark_text", message))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeReport(t *testing.T, body io.Reader) Report {
	t.Helper()
	var r struct {
		Outcome   string `json:"outcome"`
		ContentID string `json:"content_id"`
		Message   string `json:"message"`
		Reason    string `json:"reason"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&r))
	out := Report{ContentID: r.ContentID, Message: r.Message, Reason: r.Reason}
	switch r.Outcome {
	case "verified":
		out.Outcome = cipherseal.Verified
	case "tag_mismatch":
		out.Outcome = cipherseal.TagMismatch
	default:
		out.Outcome = cipherseal.Absent
	}
	return out
}

func TestRoot(t *testing.T) {
	test := []struct {
		name   string
		key    string
		status string
	}{
		{name: "running", key: "K", status: "running"},
		{name: "degraded", key: "", status: "degraded"},
	}
	for _, tt := range test {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newTestServer(t, tt.key), httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.status, body["status"])
			assert.Contains(t, body["message"], tt.status)
		})
	}
}

func TestImageRoundTrip(t *testing.T) {
	h := newTestServer(t, "K")

	rec := serve(h, multipartRequest(t, "/watermark/image/add/", "photo.png", pngBytes(t, 64, 64), "My secret message"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "watermarked_photo.png")
	id := rec.Header().Get("X-Content-ID")
	require.NotEmpty(t, id)

	rec = serve(h, multipartRequest(t, "/watermark/image/detect/", "marked.png", rec.Body.Bytes(), ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeReport(t, rec.Body)
	assert.Equal(t, cipherseal.Verified, report.Outcome)
	assert.Equal(t, id, report.ContentID)
	assert.Equal(t, "My secret message", report.Message)
}

func TestImageDetectOtherKey(t *testing.T) {
	rec := serve(newTestServer(t, "K"), multipartRequest(t, "/watermark/image/add/", "a.png", pngBytes(t, 64, 64), "m"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(newTestServer(t, "K2"), multipartRequest(t, "/watermark/image/detect/", "a.png", rec.Body.Bytes(), ""))
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeReport(t, rec.Body)
	assert.Equal(t, cipherseal.TagMismatch, report.Outcome)
	assert.Empty(t, report.ContentID)
	assert.NotEmpty(t, report.Reason)
}

func TestTextRoundTrip(t *testing.T) {
	h := newTestServer(t, "K")
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 10)

	rec := serve(h, multipartRequest(t, "/watermark/text/add/", "note.txt", []byte(text), "hi"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	marked := rec.Body.String()
	assert.Equal(t, text, cipherseal.StripText(marked))

	rec = serve(h, multipartRequest(t, "/watermark/text/detect/", "note.txt", []byte(marked), ""))
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeReport(t, rec.Body)
	assert.Equal(t, cipherseal.Verified, report.Outcome)
	assert.Equal(t, "hi", report.Message)

	rec = serve(h, multipartRequest(t, "/watermark/text/detect/", "plain.txt", []byte(text), ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cipherseal.Absent, decodeReport(t, rec.Body).Outcome)
}

func TestErrors(t *testing.T) {
	big := bytes.Repeat([]byte{'a'}, 2<<20)
	test := []struct {
		name   string
		key    string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{
			name: "missing key",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/watermark/image/add/", "a.png", pngBytes(t, 64, 64), "")
			},
			status: http.StatusServiceUnavailable,
		},
		{
			name: "image too small",
			key:  "K",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/watermark/image/add/", "a.png", pngBytes(t, 4, 4), "")
			},
			status: http.StatusUnprocessableEntity,
		},
		{
			name: "text too short",
			key:  "K",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/watermark/text/add/", "a.txt", []byte("hello world"), "")
			},
			status: http.StatusUnprocessableEntity,
		},
		{
			name: "foreign markers",
			key:  "K",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/watermark/text/add/", "a.txt", []byte(strings.Repeat("a\u2064b", 40)), "")
			},
			status: http.StatusUnprocessableEntity,
		},
		{
			name: "not an image",
			key:  "K",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/watermark/image/detect/", "a.png", []byte("plain text"), "")
			},
			status: http.StatusUnsupportedMediaType,
		},
		{
			name: "invalid utf-8",
			key:  "K",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/watermark/text/detect/", "a.txt", []byte{0xff, 0xfe, 0xfd}, "")
			},
			status: http.StatusUnsupportedMediaType,
		},
		{
			name: "upload too large",
			key:  "K",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/watermark/text/add/", "a.txt", big, "")
			},
			status: http.StatusRequestEntityTooLarge,
		},
		{
			name: "missing file",
			key:  "K",
			req: func(t *testing.T) *http.Request {
				var body bytes.Buffer
				mw := multipart.NewWriter(&body)
				require.NoError(t, mw.WriteField("watermark_text", "x"))
				require.NoError(t, mw.Close())
				req := httptest.NewRequest(http.MethodPost, "/watermark/text/add/", &body)
				req.Header.Set("Content-Type", mw.FormDataContentType())
				return req
			},
			status: http.StatusBadRequest,
		},
		{
			name: "wrong method",
			key:  "K",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/watermark/text/add/", nil)
			},
			status: http.StatusMethodNotAllowed,
		},
	}
	for _, tt := range test {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newTestServer(t, tt.key), tt.req(t))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}
