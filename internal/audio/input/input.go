// Package input implements the Input variant of spec.md §9
// ("polymorphism over heterogeneous inputs"): a source is resolved into a
// Loadable plus a ProbeResult before Ingestion ever touches it. Grounded
// on original_source/src/ingest/input.rs and input/{youtube,wavedistrict}.rs,
// which resolve each input kind into a Sink-ready byte source the same way.
package input

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dhowden/tag"

	"github.com/arung-agamani/turntable/internal/audio/loadable"
)

// LengthKind discriminates how confidently a source's length is known,
// grounded on original_source/src/ingest/sink.rs's SinkLength.
type LengthKind int

const (
	// LengthUnknown means the source's length could not be determined
	// (e.g. a live stream).
	LengthUnknown LengthKind = iota
	// LengthExact means the length in samples is known precisely, from
	// byte size and decoded format parameters.
	LengthExact
	// LengthApproximate means the length was estimated from tag/duration
	// metadata rather than computed from the decoded stream.
	LengthApproximate
)

func (k LengthKind) String() string {
	switch k {
	case LengthExact:
		return "Exact"
	case LengthApproximate:
		return "Approximate"
	default:
		return "Unknown"
	}
}

// SinkLength pairs a LengthKind with its value in samples (meaningless
// when Kind is LengthUnknown).
type SinkLength struct {
	Kind    LengthKind
	Samples int
}

// ProbeResult is what resolving an Input yields about its content before
// any decoding happens: enough to size the sink's buffer and show
// metadata to listeners.
type ProbeResult struct {
	Length     SinkLength
	SampleRate int
	Channels   int
	Title      string
}

// Input is the sum type of everything Ingestion can be asked to play,
// mirroring original_source's Input enum (YouTube, WaveDistrict, File,
// NetworkStream, Empty). Each variant knows how to resolve itself into a
// Loadable plus probe metadata.
type Input interface {
	// Resolve produces a Loadable ready for decoding, plus what could be
	// learned about it without fully decoding.
	Resolve(ctx context.Context) (loadable.Loadable, ProbeResult, error)
	// Kind identifies the variant, for logging/metrics.
	Kind() string
}

// File is a local filesystem input.
type File struct {
	Path string
}

func (f File) Kind() string { return "File" }

func (f File) Resolve(ctx context.Context) (loadable.Loadable, ProbeResult, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, ProbeResult{}, fmt.Errorf("input: open %s: %w", f.Path, err)
	}

	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, ProbeResult{}, fmt.Errorf("input: stat %s: %w", f.Path, err)
	}

	probe := probeFile(fh, f.Path)

	l := loadable.NewFile(fh, info.Size())
	return l, probe, nil
}

// probeFile uses dhowden/tag to read the title from container metadata
// without fully decoding the file (the path when there is none). It does
// not read a duration: the length is always LengthUnknown, and Ingestion
// discovers the real length as decoding proceeds. A probe failure isn't
// fatal.
func probeFile(fh *os.File, path string) ProbeResult {
	defer fh.Seek(0, io.SeekStart)

	m, err := tag.ReadFrom(fh)
	if err != nil {
		return ProbeResult{Length: SinkLength{Kind: LengthUnknown}, Title: path}
	}

	title := m.Title()
	if title == "" {
		title = path
	}

	return ProbeResult{
		Length: SinkLength{Kind: LengthUnknown},
		Title:  title,
	}
}

// NetworkStream is an HTTP(S)-hosted input, e.g. a remote file or
// stream.
type NetworkStream struct {
	URL    string
	Client *http.Client
}

func (n NetworkStream) Kind() string { return "NetworkStream" }

func (n NetworkStream) Resolve(ctx context.Context) (loadable.Loadable, ProbeResult, error) {
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}

	l := loadable.NewNetworkStream(client, n.URL)
	length, err := l.Length(ctx)
	if err != nil {
		return nil, ProbeResult{}, fmt.Errorf("input: probe %s: %w", n.URL, err)
	}

	sl := SinkLength{Kind: LengthUnknown}
	if length.Known {
		sl = SinkLength{Kind: LengthApproximate}
	}

	return l, ProbeResult{Length: sl, Title: n.URL}, nil
}

// Resolver is the interface-only stand-in for an external CLI/RPC probe,
// per spec.md §1's "input resolvers are interface only" non-goal. YouTube
// and WaveDistrict inputs delegate to one so tests can inject fake
// resolution without a real external dependency.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (loadable.Loadable, ProbeResult, error)
}

// YouTube is a stand-in input resolved entirely through an injected
// Resolver (would shell out to e.g. yt-dlp in a real deployment).
type YouTube struct {
	VideoID  string
	Resolver Resolver
}

func (y YouTube) Kind() string { return "YouTube" }

func (y YouTube) Resolve(ctx context.Context) (loadable.Loadable, ProbeResult, error) {
	if y.Resolver == nil {
		return nil, ProbeResult{}, fmt.Errorf("input: youtube resolver not configured")
	}
	return y.Resolver.Resolve(ctx, y.VideoID)
}

// WaveDistrict is a stand-in input for the WaveDistrict service,
// resolved through an injected Resolver the same way YouTube is.
type WaveDistrict struct {
	TrackID  string
	Resolver Resolver
}

func (w WaveDistrict) Kind() string { return "WaveDistrict" }

func (w WaveDistrict) Resolve(ctx context.Context) (loadable.Loadable, ProbeResult, error) {
	if w.Resolver == nil {
		return nil, ProbeResult{}, fmt.Errorf("input: wavedistrict resolver not configured")
	}
	return w.Resolver.Resolve(ctx, w.TrackID)
}

// Empty is a zero-length placeholder input, used by the pipeline for
// queue items that carry no Input and by collab's URL resolver for URLs
// it does not recognize.
type Empty struct{}

func (Empty) Kind() string { return "Empty" }

func (Empty) Resolve(ctx context.Context) (loadable.Loadable, ProbeResult, error) {
	return loadable.NewFile(emptyReaderAt{}, 0), ProbeResult{Length: SinkLength{Kind: LengthExact, Samples: 0}}, nil
}

type emptyReaderAt struct{}

func (emptyReaderAt) ReadAt(p []byte, off int64) (int, error) { return 0, io.EOF }
