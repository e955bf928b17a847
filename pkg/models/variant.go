package models

import (
	"github.com/pkg/errors"
)

// Variant is the kind of asset a book can carry.
type Variant string

const (
	VariantEbook     Variant = "ebook"
	VariantAudiobook Variant = "audiobook"
	VariantReadaloud Variant = "readaloud"
)

// VariantsByPriority lists every variant from the highest priority to the
// lowest. Readaloud files are the most specific (an ebook with synchronized
// audio), so they win over a plain audiobook, which wins over a plain ebook.
var VariantsByPriority = []Variant{VariantReadaloud, VariantAudiobook, VariantEbook}

var ErrUnknownVariant = errors.New("unknown variant")

// Priority returns a rank where a higher number wins.
func (v Variant) Priority() int {
	switch v {
	case VariantReadaloud:
		return 3
	case VariantAudiobook:
		return 2
	case VariantEbook:
		return 1
	}
	return 0
}

func (v Variant) Valid() bool {
	return v.Priority() > 0
}

func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if !v.Valid() {
		return "", errors.Wrapf(ErrUnknownVariant, "%q", s)
	}
	return v, nil
}

// Category is the name of the per-book subfolder a file was discovered in.
type Category string

const (
	CategoryEbook  Category = "ebook"
	CategoryAudio  Category = "audio"
	CategorySynced Category = "synced"
)

// DefaultVariant is the variant a file found under the category is assigned
// before any content inspection.
func (c Category) DefaultVariant() Variant {
	switch c {
	case CategoryAudio:
		return VariantAudiobook
	case CategorySynced:
		return VariantReadaloud
	default:
		return VariantEbook
	}
}

// CategoryForVariant is the inverse of DefaultVariant and decides where a
// downloaded asset is placed on disk.
func CategoryForVariant(v Variant) Category {
	switch v {
	case VariantAudiobook:
		return CategoryAudio
	case VariantReadaloud:
		return CategorySynced
	default:
		return CategoryEbook
	}
}
