package downloads

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/kyonifer/silveran-reader-sub004/pkg/remote"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

const (
	defaultBufferSize  = 32 * 1024
	defaultEventBuffer = 16
)

var ErrTransferInProgress = errors.New("a transfer for this asset is already in progress")

// Transport is the part of the remote client transfers need.
type Transport interface {
	OpenDownload(ctx context.Context, ref remote.AssetRef, opts remote.DownloadOptions) (*remote.DownloadStream, error)
	Upload(ctx context.Context, ref remote.AssetRef, body io.Reader, size int64, contentType string) error
}

type Config struct {
	// TempDir holds partial and completed downloads until they are placed.
	TempDir     string
	BufferSize  int
	EventBuffer int
}

type Options struct {
	// Resume continues a previously failed transfer of the same asset when
	// its partial file is still around.
	Resume bool
}

// Coordinator runs at most one download per asset at a time.
type Coordinator struct {
	transport Transport
	config    Config

	mu       sync.Mutex
	sessions map[string]*Session
}

func New(transport Transport, cfg Config) *Coordinator {
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "silveran-transfers")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.EventBuffer < 0 {
		cfg.EventBuffer = 0
	} else if cfg.EventBuffer == 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	return &Coordinator{
		transport: transport,
		config:    cfg,
		sessions:  map[string]*Session{},
	}
}

func (c *Coordinator) TempDir() string {
	return c.config.TempDir
}

// Download starts transferring ref in the background. The session ends when
// ctx is cancelled, which counts as a cancellation rather than a failure.
func (c *Coordinator) Download(ctx context.Context, ref remote.AssetRef, opts Options) (*Session, error) {
	key := ref.String()

	c.mu.Lock()
	if _, busy := c.sessions[key]; busy {
		c.mu.Unlock()
		return nil, errors.Wrapf(ErrTransferInProgress, "%s", key)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:        uuid.New().String(),
		Ref:       ref,
		StartedAt: time.Now(),
		transport: c.transport,
		tempDir:   c.config.TempDir,
		resume:    opts.Resume,
		bufSize:   c.config.BufferSize,
		cancel:    cancel,
		events:    make(chan Event, c.config.EventBuffer),
		done:      make(chan struct{}),
		state:     StateIdle,
	}
	c.sessions[key] = s
	c.mu.Unlock()

	logger.FromContext(ctx).Info("starting transfer", logger.Data{"session_id": s.ID, "ref": key, "resume": opts.Resume})

	go s.run(sessionCtx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.sessions[key] == s {
			delete(c.sessions, key)
		}
	})

	return s, nil
}

// Sessions lists transfers that haven't ended, oldest first.
func (c *Coordinator) Sessions() []SessionInfo {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Session finds a live session by id.
func (c *Coordinator) Session(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

type UploadResult struct {
	Ref   remote.AssetRef `json:"ref"`
	Bytes int64           `json:"bytes"`
}

// Upload streams body to the server. Failures carry the same kinds as
// downloads; see remote.KindOf.
func (c *Coordinator) Upload(ctx context.Context, ref remote.AssetRef, body io.Reader, size int64, contentType string) (*UploadResult, error) {
	counter := &countingReader{r: body}
	if err := c.transport.Upload(ctx, ref, counter, size, contentType); err != nil {
		return nil, err
	}
	return &UploadResult{Ref: ref, Bytes: counter.n}, nil
}

// UploadFile uploads the file at path, sniffing its content type.
func (c *Coordinator) UploadFile(ctx context.Context, ref remote.AssetRef, path string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.WithStack(err)
	}

	return c.Upload(ctx, ref, f, info.Size(), mtype.String())
}

// Place moves a completed download to dest, creating parent directories.
func Place(tempPath, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Rename(tempPath, dest); err == nil {
		return nil
	}

	// Rename fails across filesystems.
	src, err := os.Open(tempPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer src.Close()

	tmp := dest + ".placing"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return errors.WithStack(err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return errors.WithStack(err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return errors.WithStack(err)
	}
	src.Close()
	return errors.WithStack(os.Remove(tempPath))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
