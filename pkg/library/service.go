package library

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kyonifer/silveran-reader-sub004/pkg/catalogcache"
	"github.com/kyonifer/silveran-reader-sub004/pkg/downloads"
	"github.com/kyonifer/silveran-reader-sub004/pkg/events"
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/kyonifer/silveran-reader-sub004/pkg/progresssync"
	"github.com/kyonifer/silveran-reader-sub004/pkg/reconcile"
	"github.com/kyonifer/silveran-reader-sub004/pkg/remote"
	"github.com/kyonifer/silveran-reader-sub004/pkg/scanner"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Source says where the remote half of a catalog came from.
type Source string

const (
	SourceNone        Source = "none"
	SourceRemote      Source = "remote"
	SourceNotModified Source = "not_modified"
	SourceCache       Source = "cache"
)

type Options struct {
	LibraryRoot string
	Scanner     *scanner.Scanner
	// Remote may be nil or unconfigured, in which case the catalog is built
	// from local files only.
	Remote    *remote.Client
	Cache     *catalogcache.Cache
	Downloads *downloads.Coordinator
	Queue     *progresssync.Queue
	Hub       *events.Hub
}

// Service owns the current catalog snapshot. Readers get an immutable
// snapshot; every refresh builds a new one and swaps it in.
type Service struct {
	root      string
	scanner   *scanner.Scanner
	remote    *remote.Client
	cache     *catalogcache.Cache
	downloads *downloads.Coordinator
	queue     *progresssync.Queue
	hub       *events.Hub

	snapshot atomic.Pointer[models.Catalog]
	relays   sync.WaitGroup

	// links maps placed file paths to the book they were downloaded for.
	linksMu sync.Mutex
	links   map[string]string

	// refreshMu serialises refreshes and guards the fields below.
	refreshMu  sync.Mutex
	primed     bool
	etag       string
	lastRemote []*models.Book
}

func NewService(opts Options) *Service {
	hub := opts.Hub
	if hub == nil {
		hub = events.NewHub(0)
	}
	return &Service{
		root:      opts.LibraryRoot,
		scanner:   opts.Scanner,
		remote:    opts.Remote,
		cache:     opts.Cache,
		downloads: opts.Downloads,
		queue:     opts.Queue,
		hub:       hub,
	}
}

type RefreshResult struct {
	Books         int                `json:"books"`
	Missing       int                `json:"missing"`
	Source        Source             `json:"source"`
	RemoteError   string             `json:"remote_error,omitempty"`
	RemoteFailure remote.FailureKind `json:"remote_failure,omitempty"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

// Refresh scans the library, fetches the remote catalog and publishes the
// merge as the new snapshot. A remote that can't be reached falls back to the
// last catalog it returned, so the library still loads offline.
func (s *Service) Refresh(ctx context.Context) (*RefreshResult, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	log := logger.FromContext(ctx)

	local, err := s.scanner.Scan(ctx, s.root, scanner.ScanOptions{})
	if err != nil {
		return nil, err
	}
	local = s.adoptLinks(ctx, local)

	result := &RefreshResult{}
	remoteBooks, source, err := s.fetchRemote(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithStack(ctx.Err())
		}
		log.Err(err).Warn("unable to fetch remote catalog", logger.Data{"source": source})
		result.RemoteError = err.Error()
		result.RemoteFailure = remote.KindOf(err)
	}
	result.Source = source

	catalog := reconcile.Merge(local, remoteBooks)
	catalog.GeneratedAt = time.Now().UTC()
	s.snapshot.Store(catalog)

	result.Books = len(catalog.Books)
	result.Missing = len(catalog.Missing())
	result.GeneratedAt = catalog.GeneratedAt

	log.Info("library refreshed", logger.Data{
		"books":   result.Books,
		"missing": result.Missing,
		"source":  result.Source,
	})
	s.hub.Publish(events.TypeCatalogUpdated, result)

	return result, nil
}

// fetchRemote must be called with refreshMu held.
func (s *Service) fetchRemote(ctx context.Context) ([]*models.Book, Source, error) {
	if !s.remote.Configured() {
		return nil, SourceNone, nil
	}
	s.primeFromCache(ctx)

	// Only ask for a conditional response when there is something to fall
	// back on.
	opts := remote.FetchOptions{}
	if s.lastRemote != nil {
		opts.ETag = s.etag
	}

	resp, err := s.remote.FetchCatalog(ctx, opts)
	if err != nil {
		if s.lastRemote != nil {
			return s.lastRemote, SourceCache, err
		}
		return nil, SourceNone, err
	}
	if resp.NotModified {
		return s.lastRemote, SourceNotModified, nil
	}

	s.lastRemote = resp.Books
	s.etag = resp.ETag
	if s.cache != nil {
		err := s.cache.Save(s.remote.BaseURL(), &catalogcache.Snapshot{
			Books:     resp.Books,
			ETag:      resp.ETag,
			FetchedAt: time.Now().UTC(),
		})
		if err != nil {
			logger.FromContext(ctx).Err(err).Warn("unable to cache remote catalog")
		}
	}
	return resp.Books, SourceRemote, nil
}

func (s *Service) primeFromCache(ctx context.Context) {
	if s.primed || s.cache == nil {
		return
	}
	s.primed = true

	snap, err := s.cache.Load(s.remote.BaseURL())
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("ignoring unreadable catalog cache")
		return
	}
	if snap == nil {
		return
	}
	s.lastRemote = snap.Books
	if s.lastRemote == nil {
		s.lastRemote = []*models.Book{}
	}
	s.etag = snap.ETag
}

// Snapshot returns the current catalog. Before the first refresh it is
// empty. The result must not be modified.
func (s *Service) Snapshot() *models.Catalog {
	if c := s.snapshot.Load(); c != nil {
		return c
	}
	return &models.Catalog{Paths: map[string]models.MediaPaths{}}
}

func (s *Service) Book(bookUUID string) (*models.Book, models.MediaPaths, error) {
	catalog := s.Snapshot()
	book, ok := catalog.Book(bookUUID)
	if !ok {
		return nil, nil, errors.WithStack(ErrBookNotFound)
	}
	return book, catalog.Paths[bookUUID], nil
}

func (s *Service) Missing() []models.MissingAsset {
	return s.Snapshot().Missing()
}

// Subscribe registers for catalog, transfer and sync events. The caller must
// call Unsubscribe with the returned id.
func (s *Service) Subscribe() (int, <-chan events.Event) {
	return s.hub.Register()
}

func (s *Service) Unsubscribe(id int) {
	s.hub.Unregister(id)
}

// EnqueueProgress queues a position update for the next flush.
func (s *Service) EnqueueProgress(ctx context.Context, bookUUID string, payload models.ProgressPayload) (*models.SyncEntry, error) {
	if s.queue == nil {
		return nil, errors.WithStack(ErrSyncDisabled)
	}
	return s.queue.Enqueue(ctx, bookUUID, payload)
}

// FlushProgress sends queued updates. Without a remote server they stay
// queued.
func (s *Service) FlushProgress(ctx context.Context) (progresssync.FlushResult, error) {
	if s.queue == nil {
		return progresssync.FlushResult{}, errors.WithStack(ErrSyncDisabled)
	}
	if !s.remote.Configured() {
		return progresssync.FlushResult{}, errors.WithStack(ErrRemoteNotConfigured)
	}
	result := s.queue.Flush(ctx)
	s.hub.Publish(events.TypeSyncFlushed, result)
	return result, nil
}

func (s *Service) PendingProgress(ctx context.Context) ([]*models.SyncEntry, error) {
	if s.queue == nil {
		return nil, errors.WithStack(ErrSyncDisabled)
	}
	return s.queue.Pending(ctx)
}

// UpdateBook sends a metadata change to the server. The local snapshot picks
// it up on the next refresh.
func (s *Service) UpdateBook(ctx context.Context, bookUUID string, update models.BookUpdate) error {
	if !s.remote.Configured() {
		return errors.WithStack(ErrRemoteNotConfigured)
	}
	return s.remote.UpdateBook(ctx, bookUUID, update)
}

func (s *Service) AddToCollection(ctx context.Context, collectionUUID string, bookUUIDs []string) error {
	if !s.remote.Configured() {
		return errors.WithStack(ErrRemoteNotConfigured)
	}
	return s.remote.AddToCollection(ctx, collectionUUID, bookUUIDs)
}
