package ephemeris

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// MaxReportBytes bounds how much of a report is read.
const MaxReportBytes = 64 << 20

// ErrSourceStatus is returned when an HTTP source answers with a non-2xx
// status.
var ErrSourceStatus = errors.New("unexpected ephemeris source status")

// Source yields the raw text of one report.
type Source interface {
	// Name labels the source in logs and metrics.
	Name() string
	Fetch(ctx context.Context) ([]byte, error)
}

// FileSource reads a report from the local filesystem.
type FileSource struct {
	Label string
	Path  string
}

func (s FileSource) Name() string { return s.Label }

// Fetch reads the file, honouring ctx only before the read starts.
func (s FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening report: %w", err)
	}
	defer f.Close()
	return readLimited(f)
}

// HTTPSource fetches a report with a GET request.
type HTTPSource struct {
	Label  string
	URL    string
	Client *http.Client // nil uses a client with a 30s timeout
}

func (s HTTPSource) Name() string { return s.Label }

// Fetch performs the GET; any non-2xx status wraps ErrSourceStatus.
func (s HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d from %s", ErrSourceStatus, resp.StatusCode, s.URL)
	}
	return readLimited(resp.Body)
}

// ReaderSource serves a fixed report, mostly for tests and embedded data.
type ReaderSource struct {
	Label string
	Data  []byte
	Err   error
}

func (s ReaderSource) Name() string { return s.Label }

func (s ReaderSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return bytes.Clone(s.Data), nil
}

// SourceFor picks an HTTPSource for http(s) locations and a FileSource
// otherwise. An empty location yields nil.
func SourceFor(label, location string, client *http.Client) Source {
	switch {
	case location == "":
		return nil
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return HTTPSource{Label: label, URL: location, Client: client}
	default:
		return FileSource{Label: label, Path: location}
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxReportBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	if len(body) > MaxReportBytes {
		return nil, fmt.Errorf("report exceeds %d byte limit", MaxReportBytes)
	}
	return body, nil
}

var errNoSource = errors.New("no ephemeris source configured")
