package models

import (
	"github.com/google/uuid"
)

type Creator struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type SeriesRef struct {
	Name     string   `json:"name"`
	Position *float64 `json:"position,omitempty"`
}

// Asset describes one downloadable file of a book. Filepath is relative to
// the library root for local files and server-relative for remote ones.
type Asset struct {
	Filepath string `json:"filepath"`
	Missing  bool   `json:"missing"`

	// Readaloud processing state, only reported by the remote server.
	Status        *string  `json:"status,omitempty"`
	Stage         *string  `json:"stage,omitempty"`
	StageProgress *float64 `json:"stage_progress,omitempty"`
	QueuePosition *int     `json:"queue_position,omitempty"`
}

func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	c.Status = clonePtr(a.Status)
	c.Stage = clonePtr(a.Stage)
	c.StageProgress = clonePtr(a.StageProgress)
	c.QueuePosition = clonePtr(a.QueuePosition)
	return &c
}

type Book struct {
	UUID            string      `json:"uuid"`
	Title           string      `json:"title"`
	Subtitle        *string     `json:"subtitle,omitempty"`
	Description     *string     `json:"description,omitempty"`
	Language        *string     `json:"language,omitempty"`
	PublicationDate *string     `json:"publication_date,omitempty"`
	Creators        []Creator   `json:"creators"`
	Narrators       []string    `json:"narrators,omitempty"`
	Series          []SeriesRef `json:"series,omitempty"`
	Tags            []string    `json:"tags,omitempty"`
	Collections     []string    `json:"collections,omitempty"`

	Ebook     *Asset `json:"ebook,omitempty"`
	Audiobook *Asset `json:"audiobook,omitempty"`
	Readaloud *Asset `json:"readaloud,omitempty"`

	Position *ProgressPayload `json:"position,omitempty"`
	Status   *string          `json:"status,omitempty"`
	Rating   *float64         `json:"rating,omitempty"`
}

// NewBookUUID mints a fresh identity for a book discovered without one.
func NewBookUUID() string {
	return uuid.New().String()
}

func (b *Book) Asset(v Variant) *Asset {
	switch v {
	case VariantEbook:
		return b.Ebook
	case VariantAudiobook:
		return b.Audiobook
	case VariantReadaloud:
		return b.Readaloud
	}
	return nil
}

func (b *Book) SetAsset(v Variant, a *Asset) {
	switch v {
	case VariantEbook:
		b.Ebook = a
	case VariantAudiobook:
		b.Audiobook = a
	case VariantReadaloud:
		b.Readaloud = a
	}
}

// Variants returns the variants present on the book in priority order.
func (b *Book) Variants() []Variant {
	var out []Variant
	for _, v := range VariantsByPriority {
		if b.Asset(v) != nil {
			out = append(out, v)
		}
	}
	return out
}

// PrimaryVariant is the highest-priority variant the book carries, or "" if
// it has no asset at all.
func (b *Book) PrimaryVariant() Variant {
	vs := b.Variants()
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// HasAssets reports whether the book is valid to surface.
func (b *Book) HasAssets() bool {
	return b.PrimaryVariant() != ""
}

func (b *Book) Authors() []string {
	var names []string
	for _, c := range b.Creators {
		if c.Role == "" || c.Role == "aut" {
			names = append(names, c.Name)
		}
	}
	return names
}

func (b *Book) Clone() *Book {
	if b == nil {
		return nil
	}
	c := *b
	c.Subtitle = clonePtr(b.Subtitle)
	c.Description = clonePtr(b.Description)
	c.Language = clonePtr(b.Language)
	c.PublicationDate = clonePtr(b.PublicationDate)
	c.Creators = append([]Creator(nil), b.Creators...)
	c.Narrators = append([]string(nil), b.Narrators...)
	c.Series = make([]SeriesRef, 0, len(b.Series))
	for _, s := range b.Series {
		s.Position = clonePtr(s.Position)
		c.Series = append(c.Series, s)
	}
	if len(c.Series) == 0 {
		c.Series = nil
	}
	c.Tags = append([]string(nil), b.Tags...)
	c.Collections = append([]string(nil), b.Collections...)
	c.Ebook = b.Ebook.Clone()
	c.Audiobook = b.Audiobook.Clone()
	c.Readaloud = b.Readaloud.Clone()
	if b.Position != nil {
		p := *b.Position
		c.Position = &p
	}
	c.Status = clonePtr(b.Status)
	c.Rating = clonePtr(b.Rating)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
