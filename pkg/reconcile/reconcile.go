// Package reconcile merges a local scan with the remote catalog into the
// canonical per-book view of the library.
package reconcile

import (
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
)

// Merge combines local and remote into a new catalog. Neither input is
// modified. Books are matched by UUID only; remote metadata always wins, and
// local files only decide which assets are present on disk.
//
// GeneratedAt is left zero for the caller to stamp.
func Merge(local *models.ScanResult, remote []*models.Book) *models.Catalog {
	if local == nil {
		local = models.NewScanResult()
	}

	localBooks, localOrder := unionLocal(local.Books)

	catalog := &models.Catalog{
		Books: make([]*models.Book, 0, len(remote)+len(localOrder)),
		Paths: map[string]models.MediaPaths{},
	}

	remoteSeen := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		if r == nil || r.UUID == "" {
			continue
		}
		if _, dup := remoteSeen[r.UUID]; dup {
			continue
		}
		remoteSeen[r.UUID] = struct{}{}

		book, paths := mergeRemote(r, localBooks[r.UUID], local.Paths[r.UUID])
		if !book.HasAssets() {
			continue
		}
		catalog.Books = append(catalog.Books, book)
		if len(paths) > 0 {
			catalog.Paths[book.UUID] = paths
		}
	}

	for _, id := range localOrder {
		if _, ok := remoteSeen[id]; ok {
			continue
		}
		book := localBooks[id]
		for _, v := range book.Variants() {
			book.Asset(v).Missing = false
		}
		if !book.HasAssets() {
			continue
		}
		catalog.Books = append(catalog.Books, book)
		if paths := local.Paths[id]; len(paths) > 0 {
			catalog.Paths[id] = paths.Clone()
		}
	}

	return catalog
}

// unionLocal collapses local records sharing a UUID. The first record keeps
// its metadata and later ones only fill empty asset slots. The returned
// records are private copies.
func unionLocal(books []*models.Book) (map[string]*models.Book, []string) {
	byID := make(map[string]*models.Book, len(books))
	var order []string
	for _, b := range books {
		if b == nil || b.UUID == "" {
			continue
		}
		existing, ok := byID[b.UUID]
		if !ok {
			byID[b.UUID] = b.Clone()
			order = append(order, b.UUID)
			continue
		}
		for _, v := range models.VariantsByPriority {
			if existing.Asset(v) == nil && b.Asset(v) != nil {
				existing.SetAsset(v, b.Asset(v).Clone())
			}
		}
	}
	return byID, order
}

// mergeRemote builds the canonical record for a remote-known book.
//
// Local paths whose variant the remote declares keep their slot. Each
// remaining path moves to the highest-priority declared variant that is still
// unfilled, or stays in its own (undeclared) slot when every declared one is
// taken.
func mergeRemote(r, localBook *models.Book, localPaths models.MediaPaths) (*models.Book, models.MediaPaths) {
	book := r.Clone()
	declared := map[models.Variant]bool{}
	for _, v := range book.Variants() {
		declared[v] = true
	}

	assigned := models.MediaPaths{}
	// source remembers which local variant filled each slot.
	source := map[models.Variant]models.Variant{}

	var conflicting []models.Variant
	for _, v := range models.VariantsByPriority {
		if localPaths[v] == "" {
			continue
		}
		if declared[v] {
			assigned[v] = localPaths[v]
			source[v] = v
			continue
		}
		conflicting = append(conflicting, v)
	}

	for _, from := range conflicting {
		to := from
		for _, v := range models.VariantsByPriority {
			if declared[v] && assigned[v] == "" {
				to = v
				break
			}
		}
		if assigned[to] != "" {
			continue
		}
		assigned[to] = localPaths[from]
		source[to] = from
	}

	for _, v := range models.VariantsByPriority {
		if declared[v] {
			book.Asset(v).Missing = assigned[v] == ""
			continue
		}
		if assigned[v] == "" {
			continue
		}
		asset := &models.Asset{}
		if localBook != nil {
			if la := localBook.Asset(source[v]); la != nil {
				asset.Filepath = la.Filepath
			}
		}
		book.SetAsset(v, asset)
	}

	return book, assigned
}
