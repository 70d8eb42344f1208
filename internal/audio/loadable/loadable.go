// Package loadable implements the async byte-source contract of spec.md
// §6's Loadable trait: a uniform read/seek/length surface that Ingestion
// decodes against regardless of whether the bytes come from a local file
// or a remote HTTP stream.
package loadable

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// ReadResult is the outcome of one Read call: either More(n) bytes were
// read with more to come, or End(n) bytes were read and the source is
// exhausted.
type ReadResult struct {
	N   int
	End bool
}

// Length is a Loadable's reported size, in whichever unit it knows.
type Length struct {
	Known   bool
	Bytes   int64
	Seconds float64
	// HasSeconds distinguishes a duration-only probe (e.g. a remote
	// stream that reports play length but not content-length) from a
	// byte-accurate one.
	HasSeconds bool
}

// Loadable is the pipeline's async byte-source contract (spec.md §6):
// read, seek, report length, report seekability. Implementations must be
// safe for use from a single goroutine at a time — Ingestion serializes
// access per sink via its decode worker.
type Loadable interface {
	// Read reads into buf, returning how many bytes were read and whether
	// the source is now exhausted.
	Read(ctx context.Context, buf []byte) (ReadResult, error)
	// Seek moves the read position to byte offset from, returning the
	// offset actually seeked to (which may be a keyframe boundary rather
	// than from itself, for formats that can't seek byte-exact).
	Seek(ctx context.Context, from int64) (int64, error)
	// Length reports the source's total size, if known.
	Length(ctx context.Context) (Length, error)
	// Seekable reports whether Seek is supported at all.
	Seekable(ctx context.Context) bool
}

// File is a Loadable backed by a local *os.File-like random-access
// reader. It's grounded on the teacher's ffmpeg.Encoder use of a plain
// io.Reader, extended with io.Seeker since local files are always
// seekable.
type File struct {
	ra   io.ReaderAt
	size int64
	pos  int64
}

// NewFile wraps a random-access reader of known size size.
func NewFile(ra io.ReaderAt, size int64) *File {
	return &File{ra: ra, size: size}
}

func (f *File) Read(ctx context.Context, buf []byte) (ReadResult, error) {
	if err := ctx.Err(); err != nil {
		return ReadResult{}, err
	}
	n, err := f.ra.ReadAt(buf, f.pos)
	f.pos += int64(n)
	if errors.Is(err, io.EOF) || f.pos >= f.size {
		return ReadResult{N: n, End: true}, nil
	}
	if err != nil {
		return ReadResult{N: n}, err
	}
	return ReadResult{N: n}, nil
}

func (f *File) Seek(ctx context.Context, from int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.pos = from
	return from, nil
}

func (f *File) Length(ctx context.Context) (Length, error) {
	return Length{Known: true, Bytes: f.size}, nil
}

func (f *File) Seekable(ctx context.Context) bool { return true }

// NetworkStream is a Loadable backed by an HTTP resource, re-issuing a
// GET with a Range header on every Seek; if the server answers without
// partial content, Seek reports offset 0, where the new body starts. Grounded
// on the teacher's radio handler's use of net/http for upstream fetches.
type NetworkStream struct {
	client *http.Client
	url    string

	body       io.ReadCloser
	pos        int64
	size       int64
	knownSize  bool
	rangeable  bool
	rangeKnown bool
}

// NewNetworkStream creates a Loadable for url using client (http.DefaultClient
// if nil).
func NewNetworkStream(client *http.Client, url string) *NetworkStream {
	if client == nil {
		client = http.DefaultClient
	}
	return &NetworkStream{client: client, url: url}
}

func (n *NetworkStream) ensureOpen(ctx context.Context) error {
	if n.body != nil {
		return nil
	}
	return n.openAt(ctx, 0)
}

func (n *NetworkStream) openAt(ctx context.Context, offset int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.url, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", rangeHeader(offset))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusPartialContent {
		n.rangeable = true
	}
	n.rangeKnown = true

	start := offset
	if offset > 0 && resp.StatusCode != http.StatusPartialContent {
		// The server ignored the Range header: the body starts at byte 0.
		start = 0
	}

	if resp.ContentLength >= 0 {
		n.size = start + resp.ContentLength
		n.knownSize = true
	}

	if n.body != nil {
		n.body.Close()
	}
	n.body = resp.Body
	n.pos = start
	return nil
}

func rangeHeader(offset int64) string {
	return "bytes=" + itoa(offset) + "-"
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (n *NetworkStream) Read(ctx context.Context, buf []byte) (ReadResult, error) {
	if err := n.ensureOpen(ctx); err != nil {
		return ReadResult{}, err
	}

	read, err := n.body.Read(buf)
	n.pos += int64(read)

	if errors.Is(err, io.EOF) {
		return ReadResult{N: read, End: true}, nil
	}
	if err != nil {
		return ReadResult{N: read}, err
	}
	if n.knownSize && n.pos >= n.size {
		return ReadResult{N: read, End: true}, nil
	}
	return ReadResult{N: read}, nil
}

func (n *NetworkStream) Seek(ctx context.Context, from int64) (int64, error) {
	if err := n.openAt(ctx, from); err != nil {
		return 0, err
	}
	return n.pos, nil
}

func (n *NetworkStream) Length(ctx context.Context) (Length, error) {
	if err := n.ensureOpen(ctx); err != nil {
		return Length{}, err
	}
	if n.knownSize {
		return Length{Known: true, Bytes: n.size}, nil
	}
	return Length{}, nil
}

func (n *NetworkStream) Seekable(ctx context.Context) bool {
	if err := n.ensureOpen(ctx); err != nil {
		return false
	}
	return n.rangeable
}

// Close releases the underlying HTTP response body, if any.
func (n *NetworkStream) Close() error {
	if n.body == nil {
		return nil
	}
	return n.body.Close()
}
