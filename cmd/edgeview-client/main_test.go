package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/edgeview/internal/edgefilter"
	"github.com/zsiec/edgeview/pkg/version"
)

func stripe(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			c := color.NRGBA{0, 0, 0, 255}
			if x >= 4 {
				c = color.NRGBA{255, 255, 255, 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessLocal(t *testing.T) {
	log, _ := test.NewNullLogger()

	out, err := processLocal(stripe(t), edgefilter.DefaultThresholds, log)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())

	// the last dark column carries the edge
	for y := 0; y < 4; y++ {
		assert.Equal(t, color.NRGBA{255, 255, 255, 255}, color.NRGBAModel.Convert(img.At(3, y)))
		assert.Equal(t, color.NRGBA{0, 0, 0, 255}, color.NRGBAModel.Convert(img.At(0, y)))
	}
}

func TestProcessLocal_BadInput(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := processLocal([]byte("not an image"), edgefilter.DefaultThresholds, log)
	assert.Error(t, err)
}

func TestProcessRemote(t *testing.T) {
	input := stripe(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ImagesPath, r.URL.Path)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Equal(t, version.UserAgent(), r.Header.Get("User-Agent"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, input, body)
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	out, err := processRemote(context.Background(), srv.Client(), srv.URL+"/", input)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), out)
}

func TestProcessRemote_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"UNSUPPORTED_MEDIA"}}`, http.StatusUnsupportedMediaType)
	}))
	defer srv.Close()

	_, err := processRemote(context.Background(), srv.Client(), srv.URL, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "415")
	assert.Contains(t, err.Error(), "UNSUPPORTED_MEDIA")
}

func TestServerURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", serverURL(options{}))
	assert.Equal(t, "https://localhost:8443", serverURL(options{useHTTP3: true}))
	assert.Equal(t, "http://edge:9000", serverURL(options{server: "http://edge:9000", useHTTP3: true}))
}

func TestRun_Local(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	require.NoError(t, os.WriteFile(in, stripe(t), 0o644))

	log, hook := test.NewNullLogger()
	require.NoError(t, run(options{in: in, out: out, local: true, low: 50, high: 150}, log))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
	assert.Equal(t, "Edge map written", hook.LastEntry().Message)
}

func TestRun_MissingInput(t *testing.T) {
	log, _ := test.NewNullLogger()
	err := run(options{in: filepath.Join(t.TempDir(), "nope.png"), local: true}, log)
	assert.ErrorContains(t, err, "failed to read input")
}
