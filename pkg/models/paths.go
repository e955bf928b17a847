package models

import (
	"time"
)

// MediaPaths maps each variant to the absolute path of a file that is
// actually present on disk. At most one path is kept per variant.
type MediaPaths map[Variant]string

func (p MediaPaths) Clone() MediaPaths {
	if p == nil {
		return nil
	}
	c := make(MediaPaths, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// ScanResult is what a single local scan produced, in discovery order.
type ScanResult struct {
	Books []*Book               `json:"books"`
	Paths map[string]MediaPaths `json:"paths"`
}

func NewScanResult() *ScanResult {
	return &ScanResult{Paths: map[string]MediaPaths{}}
}

// AddPath merges path into the entry for id without dropping other variants.
func (r *ScanResult) AddPath(id string, v Variant, path string) {
	paths, ok := r.Paths[id]
	if !ok {
		paths = MediaPaths{}
		r.Paths[id] = paths
	}
	paths[v] = path
}

// Catalog is an immutable snapshot of the merged library. Callers never
// modify a catalog in place; a new one is produced on every refresh.
type Catalog struct {
	Books       []*Book               `json:"books"`
	Paths       map[string]MediaPaths `json:"paths"`
	GeneratedAt time.Time             `json:"generated_at"`
}

func (c *Catalog) Book(id string) (*Book, bool) {
	if c == nil {
		return nil, false
	}
	for _, b := range c.Books {
		if b.UUID == id {
			return b, true
		}
	}
	return nil, false
}

// MissingAsset names an asset the remote catalog declares but no local file
// backs yet.
type MissingAsset struct {
	BookUUID string  `json:"book_uuid"`
	Title    string  `json:"title"`
	Variant  Variant `json:"variant"`
	Filepath string  `json:"filepath"`
}

// Missing lists every missing asset in catalog order.
func (c *Catalog) Missing() []MissingAsset {
	if c == nil {
		return nil
	}
	var out []MissingAsset
	for _, b := range c.Books {
		for _, v := range VariantsByPriority {
			a := b.Asset(v)
			if a == nil || !a.Missing {
				continue
			}
			out = append(out, MissingAsset{
				BookUUID: b.UUID,
				Title:    b.Title,
				Variant:  v,
				Filepath: a.Filepath,
			})
		}
	}
	return out
}
