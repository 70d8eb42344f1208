package loadable

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileReadReportsEndAtSize(t *testing.T) {
	data := []byte("hello world")
	f := NewFile(bytes.NewReader(data), int64(len(data)))

	buf := make([]byte, 5)
	res, err := f.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, 5, res.N)
	assert.False(t, res.End)

	buf2 := make([]byte, 100)
	res, err = f.Read(context.Background(), buf2)
	require.NoError(t, err)
	assert.Equal(t, 6, res.N)
	assert.True(t, res.End)
}

func TestFileSeekMovesPosition(t *testing.T) {
	data := []byte("0123456789")
	f := NewFile(bytes.NewReader(data), int64(len(data)))

	pos, err := f.Seek(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)

	buf := make([]byte, 2)
	res, _ := f.Read(context.Background(), buf)
	assert.Equal(t, []byte("56"), buf[:res.N])
}

func TestFileLengthAndSeekable(t *testing.T) {
	f := NewFile(bytes.NewReader([]byte("abc")), 3)

	l, err := f.Length(context.Background())
	require.NoError(t, err)
	assert.True(t, l.Known)
	assert.Equal(t, int64(3), l.Bytes)

	assert.True(t, f.Seekable(context.Background()))
}

func TestNetworkStreamReadsFromServerAndReportsKnownSize(t *testing.T) {
	body := []byte("streamed-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "14")
		w.Write(body)
	}))
	defer srv.Close()

	ns := NewNetworkStream(nil, srv.URL)
	defer ns.Close()

	buf := make([]byte, len(body))
	res, err := ns.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, body, buf[:res.N])

	l, err := ns.Length(context.Background())
	require.NoError(t, err)
	assert.True(t, l.Known)
	assert.Equal(t, int64(14), l.Bytes)
}

func TestNetworkStreamSeekReissuesRangedRequest(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		if gotRange != "" {
			w.WriteHeader(http.StatusPartialContent)
		}
		w.Write([]byte("partial"))
	}))
	defer srv.Close()

	ns := NewNetworkStream(nil, srv.URL)
	defer ns.Close()

	_, err := ns.Seek(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, "bytes=100-", gotRange)
	assert.True(t, ns.Seekable(context.Background()))
}
