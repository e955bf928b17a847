package library

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/robinjoseph08/golib/logger"
)

// A file we downloaded for a remote book gets a fresh identity every time
// it's scanned. Links remember which book each placed file belongs to so the
// next refresh merges it into that book instead of listing it on its own.

// loadLinks returns a copy of the links, reading them from the cache once.
func (s *Service) loadLinks(ctx context.Context) map[string]string {
	s.linksMu.Lock()
	defer s.linksMu.Unlock()

	if s.links != nil {
		return copyLinks(s.links)
	}
	s.links = map[string]string{}
	if s.cache != nil {
		stored, err := s.cache.Links()
		if err != nil {
			logger.FromContext(ctx).Err(err).Warn("ignoring unreadable download links")
		}
		for path, id := range stored {
			s.links[path] = id
		}
	}
	return copyLinks(s.links)
}

// link records that path now holds an asset of bookUUID.
func (s *Service) link(ctx context.Context, path, bookUUID string) {
	path = filepath.Clean(path)

	s.linksMu.Lock()
	if s.links == nil {
		s.links = map[string]string{}
	}
	s.links[path] = bookUUID
	s.linksMu.Unlock()

	if s.cache != nil {
		if err := s.cache.Link(path, bookUUID); err != nil {
			logger.FromContext(ctx).Err(err).Warn("unable to persist download link", logger.Data{"path": path})
		}
	}
}

func (s *Service) unlink(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}

	s.linksMu.Lock()
	for _, p := range paths {
		delete(s.links, p)
	}
	s.linksMu.Unlock()

	if s.cache != nil {
		if err := s.cache.Unlink(paths...); err != nil {
			logger.FromContext(ctx).Err(err).Warn("unable to forget download links")
		}
	}
}

// adoptLinks gives every scanned book that has a linked file the identity it
// was downloaded for. Links to files that are gone are dropped; links whose
// file merely wasn't scanned, such as an unmounted library, are kept.
func (s *Service) adoptLinks(ctx context.Context, local *models.ScanResult) *models.ScanResult {
	links := s.loadLinks(ctx)
	if len(links) == 0 {
		return local
	}

	out := models.NewScanResult()
	found := map[string]bool{}
	for _, book := range local.Books {
		paths := local.Paths[book.UUID]

		id := book.UUID
		for _, v := range models.VariantsByPriority {
			p, ok := paths[v]
			if !ok {
				continue
			}
			if linked, ok := links[filepath.Clean(p)]; ok {
				found[filepath.Clean(p)] = true
				id = linked
				break
			}
		}

		if id != book.UUID {
			book = book.Clone()
			book.UUID = id
		}
		out.Books = append(out.Books, book)
		for v, p := range paths {
			out.AddPath(id, v, p)
		}
	}

	var stale []string
	for path := range links {
		if found[path] {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			stale = append(stale, path)
		}
	}
	s.unlink(ctx, stale)

	return out
}

func copyLinks(links map[string]string) map[string]string {
	out := make(map[string]string, len(links))
	for k, v := range links {
		out[k] = v
	}
	return out
}
