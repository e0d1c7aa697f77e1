package driveops

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-fs/internal/remotefs"
)

// fakeRemote is an in-memory Remote. Files are keyed by path; hashes are
// computed on the fly unless overridden.
type fakeRemote struct {
	t *testing.T

	files    map[string][]byte
	modified time.Time

	hashOverride string // reported instead of the real hash when set
	noHash       bool
	corruptReads int // number of ReadStream calls that return flipped content

	reads       int
	inline      int
	streamed    int
	writeOpts   remotefs.WriteOptions
	readErr     error
	writeErr    error
	streamBreak bool // ReadStream fails mid-body
}

func newFakeRemote(t *testing.T) *fakeRemote {
	return &fakeRemote{
		t:        t,
		files:    make(map[string][]byte),
		modified: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (r *fakeRemote) Stat(_ context.Context, path string) (*remotefs.Item, error) {
	if strings.HasSuffix(path, "/") {
		return &remotefs.Item{Path: path, LastModified: r.modified}, nil
	}

	content, ok := r.files[path]
	if !ok {
		return nil, errors.New("not found")
	}

	item := &remotefs.Item{
		ID:           "id-" + path,
		Path:         path,
		IsFile:       true,
		Size:         int64(len(content)),
		LastModified: r.modified,
	}

	switch {
	case r.noHash:
	case r.hashOverride != "":
		item.QuickXorHash = r.hashOverride
	default:
		item.QuickXorHash = hashContent(r.t, string(content))
	}

	return item, nil
}

type breakingReader struct{ r io.Reader }

func (b *breakingReader) Read(p []byte) (int, error) {
	n, _ := b.r.Read(p[:min(len(p), 2)])
	if n == 0 {
		return 0, errors.New("connection reset")
	}

	return n, nil
}

func (r *fakeRemote) ReadStream(_ context.Context, path string) (io.ReadCloser, error) {
	r.reads++

	if r.readErr != nil {
		return nil, r.readErr
	}

	content := bytes.Clone(r.files[path])

	if r.corruptReads > 0 && len(content) > 0 {
		r.corruptReads--
		content[0] ^= 0xFF
	}

	if r.streamBreak {
		return io.NopCloser(&breakingReader{r: bytes.NewReader(content)}), nil
	}

	return io.NopCloser(bytes.NewReader(content)), nil
}

func (r *fakeRemote) Write(_ context.Context, path string, content []byte, opts remotefs.WriteOptions) error {
	r.inline++
	r.writeOpts = opts

	if r.writeErr != nil {
		return r.writeErr
	}

	r.files[path] = bytes.Clone(content)

	return nil
}

func (r *fakeRemote) WriteStream(_ context.Context, path string, content io.Reader, opts remotefs.WriteOptions) error {
	r.streamed++
	r.writeOpts = opts

	if r.writeErr != nil {
		return r.writeErr
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}

	r.files[path] = data

	return nil
}

func TestDownload_VerifiesAndRenames(t *testing.T) {
	remote := newFakeRemote(t)
	remote.files["docs/report.txt"] = []byte("quarterly numbers")

	target := filepath.Join(t.TempDir(), "out", "report.txt")
	tm := NewTransferManager(remote, nil)

	res, err := tm.Download(context.Background(), "docs/report.txt", target, DownloadOpts{})
	require.NoError(t, err)

	assert.True(t, res.HashVerified)
	assert.Equal(t, res.RemoteHash, res.LocalHash)
	assert.Equal(t, int64(17), res.Size)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "quarterly numbers", string(got))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(remote.modified))

	_, err = os.Stat(target + partialSuffix)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDownload_RetriesOnHashMismatch(t *testing.T) {
	remote := newFakeRemote(t)
	remote.files["a.bin"] = []byte("payload")
	remote.corruptReads = 1

	target := filepath.Join(t.TempDir(), "a.bin")
	tm := NewTransferManager(remote, nil)

	res, err := tm.Download(context.Background(), "a.bin", target, DownloadOpts{})
	require.NoError(t, err)

	assert.True(t, res.HashVerified)
	assert.Equal(t, 2, remote.reads)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestDownload_AcceptsAfterRetriesExhausted(t *testing.T) {
	remote := newFakeRemote(t)
	remote.files["a.bin"] = []byte("payload")
	remote.hashOverride = "bm90LXRoZS1yZWFsLWhhc2g="

	target := filepath.Join(t.TempDir(), "a.bin")
	tm := NewTransferManager(remote, nil)

	res, err := tm.Download(context.Background(), "a.bin", target, DownloadOpts{MaxHashRetries: 1})
	require.NoError(t, err)

	assert.False(t, res.HashVerified)
	assert.Equal(t, 2, remote.reads)
	assert.NotEqual(t, res.RemoteHash, res.LocalHash)
	assert.FileExists(t, target)
}

func TestDownload_NoRemoteHash(t *testing.T) {
	remote := newFakeRemote(t)
	remote.files["a.bin"] = []byte("payload")
	remote.noHash = true

	target := filepath.Join(t.TempDir(), "a.bin")

	res, err := NewTransferManager(remote, nil).Download(context.Background(), "a.bin", target, DownloadOpts{})
	require.NoError(t, err)

	assert.False(t, res.HashVerified)
	assert.Equal(t, 1, remote.reads)
	assert.Empty(t, res.RemoteHash)
}

func TestDownload_StreamFailureRemovesPartial(t *testing.T) {
	remote := newFakeRemote(t)
	remote.files["a.bin"] = []byte("payload")
	remote.streamBreak = true

	target := filepath.Join(t.TempDir(), "a.bin")

	_, err := NewTransferManager(remote, nil).Download(context.Background(), "a.bin", target, DownloadOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	assert.NoFileExists(t, target)
	assert.NoFileExists(t, target+partialSuffix)
}

func TestDownload_ReadError(t *testing.T) {
	remote := newFakeRemote(t)
	remote.files["a.bin"] = []byte("payload")
	remote.readErr = remotefs.ErrUnableToRead

	target := filepath.Join(t.TempDir(), "a.bin")

	_, err := NewTransferManager(remote, nil).Download(context.Background(), "a.bin", target, DownloadOpts{})
	require.ErrorIs(t, err, remotefs.ErrUnableToRead)
	assert.NoFileExists(t, target+partialSuffix)
}

func TestDownload_Directory(t *testing.T) {
	remote := newFakeRemote(t)

	_, err := NewTransferManager(remote, nil).Download(context.Background(), "docs/",
		filepath.Join(t.TempDir(), "docs"), DownloadOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
	assert.Zero(t, remote.reads)
}

func TestDownload_MissingRemote(t *testing.T) {
	_, err := NewTransferManager(newFakeRemote(t), nil).Download(context.Background(), "ghost",
		filepath.Join(t.TempDir(), "ghost"), DownloadOpts{})
	assert.Error(t, err)
}

func TestDownload_EmptyTarget(t *testing.T) {
	_, err := NewTransferManager(newFakeRemote(t), nil).Download(context.Background(), "a", "", DownloadOpts{})
	assert.Error(t, err)
}

func TestResolveMaxRetries(t *testing.T) {
	assert.Equal(t, defaultMaxHashRetries, resolveMaxRetries(0))
	assert.Equal(t, defaultMaxHashRetries, resolveMaxRetries(-3))
	assert.Equal(t, 5, resolveMaxRetries(5))
	assert.Equal(t, maxSaneRetries, resolveMaxRetries(1_000_000))
}

func writeLocal(t *testing.T, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "local.bin")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	return path
}

func TestUpload_SmallFileInline(t *testing.T) {
	remote := newFakeRemote(t)
	local := writeLocal(t, []byte("small file"))

	res, err := NewTransferManager(remote, nil).Upload(context.Background(), local, "up/small.txt",
		UploadOpts{ContentType: "application/octet-stream"})
	require.NoError(t, err)

	assert.Equal(t, 1, remote.inline)
	assert.Zero(t, remote.streamed)
	assert.Equal(t, "application/octet-stream", remote.writeOpts.ContentType)
	assert.Equal(t, "small file", string(remote.files["up/small.txt"]))
	assert.True(t, res.HashVerified)
	assert.Equal(t, int64(10), res.Size)
	assert.Equal(t, "id-up/small.txt", res.Item.ID)
}

func TestUpload_LargeFileStreamed(t *testing.T) {
	remote := newFakeRemote(t)
	content := bytes.Repeat([]byte("x"), remotefs.InlineWriteMax+1)
	local := writeLocal(t, content)

	res, err := NewTransferManager(remote, nil).Upload(context.Background(), local, "big.bin",
		UploadOpts{ChunkSize: 2 * remotefs.ChunkAlignment})
	require.NoError(t, err)

	assert.Zero(t, remote.inline)
	assert.Equal(t, 1, remote.streamed)
	assert.Equal(t, int64(2*remotefs.ChunkAlignment), remote.writeOpts.ChunkSize)
	assert.Len(t, remote.files["big.bin"], len(content))
	assert.True(t, res.HashVerified)
}

func TestUpload_HashMismatchIsReportedNotFatal(t *testing.T) {
	remote := newFakeRemote(t)
	remote.hashOverride = "bm90LXRoZS1yZWFsLWhhc2g="
	local := writeLocal(t, []byte("content"))

	res, err := NewTransferManager(remote, nil).Upload(context.Background(), local, "f.txt", UploadOpts{})
	require.NoError(t, err)
	assert.False(t, res.HashVerified)
	assert.NotEqual(t, remote.hashOverride, res.LocalHash)
}

func TestUpload_WriteError(t *testing.T) {
	remote := newFakeRemote(t)
	remote.writeErr = remotefs.ErrUploadFailed
	local := writeLocal(t, []byte("content"))

	_, err := NewTransferManager(remote, nil).Upload(context.Background(), local, "f.txt", UploadOpts{})
	assert.ErrorIs(t, err, remotefs.ErrUploadFailed)
}

func TestUpload_MissingLocalFile(t *testing.T) {
	_, err := NewTransferManager(newFakeRemote(t), nil).Upload(context.Background(),
		filepath.Join(t.TempDir(), "missing"), "f.txt", UploadOpts{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUpload_Directory(t *testing.T) {
	_, err := NewTransferManager(newFakeRemote(t), nil).Upload(context.Background(), t.TempDir(), "f", UploadOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a regular file")
}

func TestUpload_EmptyLocalPath(t *testing.T) {
	_, err := NewTransferManager(newFakeRemote(t), nil).Upload(context.Background(), "", "f", UploadOpts{})
	assert.Error(t, err)
}
