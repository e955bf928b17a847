package library

import (
	"time"

	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
)

type ListBooksQuery struct {
	Limit   int     `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=500"`
	Offset  int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Missing *bool   `query:"missing" json:"missing,omitempty"`
	Variant *string `query:"variant" json:"variant,omitempty" validate:"omitempty,variant"`
	Search  *string `query:"search" json:"search,omitempty" mod:"trim" validate:"omitempty,max=100"`
}

type UpdateBookPayload struct {
	Title           *string  `json:"title,omitempty" mod:"trim" validate:"omitempty,min=1,max=300"`
	Subtitle        *string  `json:"subtitle,omitempty" validate:"omitempty,max=500"`
	Description     *string  `json:"description,omitempty"`
	Language        *string  `json:"language,omitempty" validate:"omitempty,max=35"`
	PublicationDate *string  `json:"publication_date,omitempty" validate:"omitempty,date"`
	Status          *string  `json:"status,omitempty" validate:"omitempty,max=50"`
	Rating          *float64 `json:"rating,omitempty" validate:"omitempty,min=0,max=5"`
}

func (p UpdateBookPayload) toUpdate() models.BookUpdate {
	return models.BookUpdate{
		Title:           models.FromPtr(p.Title),
		Subtitle:        models.FromPtr(p.Subtitle),
		Description:     models.FromPtr(p.Description),
		Language:        models.FromPtr(p.Language),
		PublicationDate: models.FromPtr(p.PublicationDate),
		Status:          models.FromPtr(p.Status),
		Rating:          models.FromPtr(p.Rating),
	}
}

type AddToCollectionPayload struct {
	BookUUIDs []string `json:"book_uuids" validate:"required,min=1,max=500,dive,required"`
}

// ProgressPayload is a position report. Fields that are left out are sent
// as unknown rather than zero.
type ProgressPayload struct {
	ChapterIndex          *int       `json:"chapter_index,omitempty" validate:"omitempty,min=0"`
	ChapterLabel          *string    `json:"chapter_label,omitempty" validate:"omitempty,max=500"`
	PageInChapter         *int       `json:"page_in_chapter,omitempty" validate:"omitempty,min=0"`
	PagesInChapter        *int       `json:"pages_in_chapter,omitempty" validate:"omitempty,min=0"`
	ChapterElapsedSeconds *float64   `json:"chapter_elapsed_seconds,omitempty" validate:"omitempty,min=0"`
	ChapterTotalSeconds   *float64   `json:"chapter_total_seconds,omitempty" validate:"omitempty,min=0"`
	BookElapsedSeconds    *float64   `json:"book_elapsed_seconds,omitempty" validate:"omitempty,min=0"`
	BookTotalSeconds      *float64   `json:"book_total_seconds,omitempty" validate:"omitempty,min=0"`
	FractionComplete      *float64   `json:"fraction_complete,omitempty" validate:"omitempty,min=0,max=1"`
	Timestamp             *time.Time `json:"timestamp,omitempty"`
}

func (p ProgressPayload) toPayload() models.ProgressPayload {
	out := models.ProgressPayload{
		ChapterIndex:          models.FromPtr(p.ChapterIndex),
		ChapterLabel:          models.FromPtr(p.ChapterLabel),
		PageInChapter:         models.FromPtr(p.PageInChapter),
		PagesInChapter:        models.FromPtr(p.PagesInChapter),
		ChapterElapsedSeconds: models.FromPtr(p.ChapterElapsedSeconds),
		ChapterTotalSeconds:   models.FromPtr(p.ChapterTotalSeconds),
		BookElapsedSeconds:    models.FromPtr(p.BookElapsedSeconds),
		BookTotalSeconds:      models.FromPtr(p.BookTotalSeconds),
		FractionComplete:      models.FromPtr(p.FractionComplete),
	}
	if p.Timestamp != nil {
		out.Timestamp = p.Timestamp.UTC()
	}
	return out
}

type DownloadPayload struct {
	Resume bool `json:"resume"`
}
