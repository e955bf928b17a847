package library

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kyonifer/silveran-reader-sub004/pkg/downloads"
	"github.com/kyonifer/silveran-reader-sub004/pkg/events"
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/kyonifer/silveran-reader-sub004/pkg/remote"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// DownloadAsset starts fetching one declared asset. The file is moved into
// the library once the transfer completes, and the snapshot is updated to
// show it as present. ctx bounds the transfer, not just this call.
func (s *Service) DownloadAsset(ctx context.Context, bookUUID string, variant models.Variant, opts downloads.Options) (*downloads.Session, error) {
	if !s.remote.Configured() {
		return nil, errors.WithStack(ErrRemoteNotConfigured)
	}
	book, paths, err := s.Book(bookUUID)
	if err != nil {
		return nil, err
	}
	asset := book.Asset(variant)
	if asset == nil {
		return nil, errors.Wrapf(ErrAssetNotDeclared, "%s/%s", bookUUID, variant)
	}
	if !asset.Missing {
		return nil, errors.Wrapf(ErrAssetPresent, "%s/%s", bookUUID, variant)
	}

	ref := remote.AssetRef{BookUUID: bookUUID, Variant: variant}
	session, err := s.downloads.Download(ctx, ref, opts)
	if err != nil {
		return nil, err
	}

	s.relays.Add(1)
	go func() {
		defer s.relays.Done()
		s.relay(ctx, session, book, paths)
	}()
	return session, nil
}

// WaitTransfers blocks until every started download has ended and, when it
// completed, has been placed in the library.
func (s *Service) WaitTransfers() {
	s.relays.Wait()
}

// DownloadMissing starts a transfer for every missing asset that isn't
// already being fetched.
func (s *Service) DownloadMissing(ctx context.Context, opts downloads.Options) ([]*downloads.Session, error) {
	if !s.remote.Configured() {
		return nil, errors.WithStack(ErrRemoteNotConfigured)
	}
	var sessions []*downloads.Session
	for _, missing := range s.Missing() {
		session, err := s.DownloadAsset(ctx, missing.BookUUID, missing.Variant, opts)
		if err != nil {
			if errors.Is(err, downloads.ErrTransferInProgress) {
				continue
			}
			return sessions, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (s *Service) Transfers() []downloads.SessionInfo {
	return s.downloads.Sessions()
}

// CancelTransfer reports false when no live transfer has that id.
func (s *Service) CancelTransfer(id string) bool {
	session, ok := s.downloads.Session(id)
	if !ok {
		return false
	}
	return session.Cancel()
}

// UploadAsset sends a local file of a book to the server.
func (s *Service) UploadAsset(ctx context.Context, bookUUID string, variant models.Variant) (*downloads.UploadResult, error) {
	if !s.remote.Configured() {
		return nil, errors.WithStack(ErrRemoteNotConfigured)
	}
	_, paths, err := s.Book(bookUUID)
	if err != nil {
		return nil, err
	}
	path, ok := paths[variant]
	if !ok {
		return nil, errors.Wrapf(ErrAssetNotDeclared, "no local %s for %s", variant, bookUUID)
	}
	return s.downloads.UploadFile(ctx, remote.AssetRef{BookUUID: bookUUID, Variant: variant}, path)
}

// relay forwards session events to subscribers and places the finished file.
func (s *Service) relay(ctx context.Context, session *downloads.Session, book *models.Book, paths models.MediaPaths) {
	log := logger.FromContext(ctx).Data(logger.Data{"session_id": session.ID, "ref": session.Ref.String()})

	for ev := range session.Events() {
		s.hub.Publish(events.TypeTransfer, ev)
		if ev.Kind != downloads.EventCompleted {
			continue
		}

		filename := ""
		if ev.Description != nil {
			filename = ev.Description.Filename
		}
		dest := s.destination(book, paths, session.Ref.Variant, filename)
		if err := downloads.Place(ev.TempPath, dest); err != nil {
			log.Err(err).Error("unable to place downloaded file")
			continue
		}
		log.Info("download placed", logger.Data{"path": dest})
		s.link(ctx, dest, session.Ref.BookUUID)
		s.markPresent(session.Ref, dest)
	}
}

// destination is <root>/<book folder>/<category folder>/<filename>. The book
// folder of an existing local file is reused.
func (s *Service) destination(book *models.Book, paths models.MediaPaths, variant models.Variant, filename string) string {
	root, _ := filepath.Abs(s.root)

	bookDir := ""
	for _, p := range paths {
		if rel, err := filepath.Rel(root, p); err == nil {
			parts := strings.Split(filepath.ToSlash(rel), "/")
			if len(parts) >= 3 && parts[0] != ".." {
				bookDir = parts[0]
				break
			}
		}
	}
	if bookDir == "" {
		bookDir = folderName(book.Title)
	}
	if bookDir == "" {
		bookDir = book.UUID
	}

	filename = filepath.Base(filepath.Clean("/" + filename))
	if filename == "/" || filename == "." || filename == "" {
		filename = book.UUID + extensionFor(variant)
	}

	category := string(models.CategoryForVariant(variant))
	return filepath.Join(root, bookDir, category, filename)
}

var unsafeFolderChars = strings.NewReplacer("/", "-", "\\", "-", ":", "-", "\x00", "")

func folderName(title string) string {
	name := strings.TrimSpace(unsafeFolderChars.Replace(title))
	name = strings.TrimLeft(name, ".")
	return strings.TrimSpace(name)
}

func extensionFor(v models.Variant) string {
	if v == models.VariantAudiobook {
		return ".m4b"
	}
	return ".epub"
}

// markPresent swaps in a snapshot that shows ref as present at path.
func (s *Service) markPresent(ref remote.AssetRef, path string) {
	for {
		current := s.snapshot.Load()
		if current == nil {
			return
		}
		next := &models.Catalog{
			Books:       make([]*models.Book, len(current.Books)),
			Paths:       make(map[string]models.MediaPaths, len(current.Paths)),
			GeneratedAt: current.GeneratedAt,
		}
		copy(next.Books, current.Books)
		for id, p := range current.Paths {
			next.Paths[id] = p
		}

		found := false
		for i, b := range next.Books {
			if b.UUID != ref.BookUUID || b.Asset(ref.Variant) == nil {
				continue
			}
			clone := b.Clone()
			clone.Asset(ref.Variant).Missing = false
			next.Books[i] = clone
			found = true
			break
		}
		if !found {
			return
		}
		paths := next.Paths[ref.BookUUID].Clone()
		if paths == nil {
			paths = models.MediaPaths{}
		}
		paths[ref.Variant] = path
		next.Paths[ref.BookUUID] = paths

		if s.snapshot.CompareAndSwap(current, next) {
			s.hub.Publish(events.TypeCatalogUpdated, nil)
			return
		}
	}
}
