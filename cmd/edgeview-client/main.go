package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/edgeview/internal/edgefilter"
	"github.com/zsiec/edgeview/internal/imageio"
	"github.com/zsiec/edgeview/internal/logger"
	"github.com/zsiec/edgeview/pkg/bridge"
	"github.com/zsiec/edgeview/pkg/version"
)

// ImagesPath is the server endpoint for encoded images.
const ImagesPath = "/api/v1/images"

type options struct {
	server   string
	in       string
	out      string
	useHTTP3 bool
	insecure bool
	local    bool
	low      int
	high     int
	timeout  time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.server, "server", "", "Server base URL (default http://localhost:8080, or https://localhost:8443 with -http3)")
	flag.StringVar(&opts.in, "in", "", "Input image (PNG, JPEG, GIF, BMP or WebP)")
	flag.StringVar(&opts.out, "out", "edges.png", "Output PNG path")
	flag.BoolVar(&opts.useHTTP3, "http3", false, "Send the request over HTTP/3")
	flag.BoolVar(&opts.insecure, "insecure", false, "Skip TLS certificate verification")
	flag.BoolVar(&opts.local, "local", false, "Process the image in-process instead of calling a server")
	flag.IntVar(&opts.low, "low", edgefilter.DefaultThresholds.Low, "Low hysteresis threshold (with -local)")
	flag.IntVar(&opts.high, "high", edgefilter.DefaultThresholds.High, "High hysteresis threshold (with -local)")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}
	if opts.in == "" {
		fmt.Fprintln(os.Stderr, "-in is required")
		flag.Usage()
		os.Exit(2)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)

	if err := run(opts, log); err != nil {
		log.WithError(err).Fatal("edgeview-client failed")
	}
}

func run(opts options, log *logrus.Logger) error {
	input, err := os.ReadFile(opts.in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	start := time.Now()
	var result []byte
	if opts.local {
		result, err = processLocal(input, edgefilter.Thresholds{Low: opts.low, High: opts.high}, log)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()
		result, err = processRemote(ctx, newHTTPClient(opts), serverURL(opts), input)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(opts.out, result, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	log.WithFields(logrus.Fields{
		"out":      opts.out,
		"bytes":    len(result),
		"local":    opts.local,
		"duration": time.Since(start).String(),
	}).Info("Edge map written")
	return nil
}

// processLocal runs the filter in-process and returns a PNG.
func processLocal(input []byte, t edgefilter.Thresholds, log *logrus.Logger) ([]byte, error) {
	decoded, err := imageio.Decode(bytes.NewReader(input), 0)
	if err != nil {
		return nil, err
	}

	filter := edgefilter.New(edgefilter.WithThresholds(t))
	b := bridge.New(filter, logger.Component(log, "bridge"))

	f := decoded.Frame
	out := b.ProcessFrame(f.Pix, f.Width, f.Height)
	if out == nil {
		return nil, fmt.Errorf("frame processing failed for %dx%d %s image", f.Width, f.Height, decoded.Format)
	}

	var buf bytes.Buffer
	edges := edgefilter.Frame{Pix: out, Width: f.Width, Height: f.Height, Layout: filter.Layout()}
	if err := imageio.EncodePNG(&buf, edges); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// processRemote posts the encoded image to the server and returns its PNG.
func processRemote(ctx context.Context, client *http.Client, baseURL string, input []byte) ([]byte, error) {
	url := strings.TrimRight(baseURL, "/") + ImagesPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(input))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", http.DetectContentType(input))
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s (%s): %s", resp.Status, resp.Proto, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func serverURL(opts options) string {
	switch {
	case opts.server != "":
		return opts.server
	case opts.useHTTP3:
		return "https://localhost:8443"
	default:
		return "http://localhost:8080"
	}
}

func newHTTPClient(opts options) *http.Client {
	tlsConfig := &tls.Config{InsecureSkipVerify: opts.insecure}
	if opts.useHTTP3 {
		return &http.Client{
			Transport: &http3.RoundTripper{TLSClientConfig: tlsConfig},
			Timeout:   opts.timeout,
		}
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		Timeout:   opts.timeout,
	}
}
