package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// ProgressPayload is a reading or listening position for one book. Every
// field is optional; absent fields are omitted when encoded so that the
// receiver treats them as unchanged.
type ProgressPayload struct {
	ChapterIndex          Optional[int]
	ChapterLabel          Optional[string]
	PageInChapter         Optional[int]
	PagesInChapter        Optional[int]
	ChapterElapsedSeconds Optional[float64]
	ChapterTotalSeconds   Optional[float64]
	BookElapsedSeconds    Optional[float64]
	BookTotalSeconds      Optional[float64]
	FractionComplete      Optional[float64]

	// Timestamp is when the position was generated on the device.
	Timestamp time.Time
}

type progressPayloadJSON struct {
	ChapterIndex          *int      `json:"chapter_index,omitempty"`
	ChapterLabel          *string   `json:"chapter_label,omitempty"`
	PageInChapter         *int      `json:"page_in_chapter,omitempty"`
	PagesInChapter        *int      `json:"pages_in_chapter,omitempty"`
	ChapterElapsedSeconds *float64  `json:"chapter_elapsed_seconds,omitempty"`
	ChapterTotalSeconds   *float64  `json:"chapter_total_seconds,omitempty"`
	BookElapsedSeconds    *float64  `json:"book_elapsed_seconds,omitempty"`
	BookTotalSeconds      *float64  `json:"book_total_seconds,omitempty"`
	FractionComplete      *float64  `json:"fraction_complete,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
}

func (p ProgressPayload) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(progressPayloadJSON{
		ChapterIndex:          p.ChapterIndex.Ptr(),
		ChapterLabel:          p.ChapterLabel.Ptr(),
		PageInChapter:         p.PageInChapter.Ptr(),
		PagesInChapter:        p.PagesInChapter.Ptr(),
		ChapterElapsedSeconds: p.ChapterElapsedSeconds.Ptr(),
		ChapterTotalSeconds:   p.ChapterTotalSeconds.Ptr(),
		BookElapsedSeconds:    p.BookElapsedSeconds.Ptr(),
		BookTotalSeconds:      p.BookTotalSeconds.Ptr(),
		FractionComplete:      p.FractionComplete.Ptr(),
		Timestamp:             p.Timestamp,
	})
	return b, errors.WithStack(err)
}

func (p *ProgressPayload) UnmarshalJSON(data []byte) error {
	var raw progressPayloadJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}
	*p = ProgressPayload{
		ChapterIndex:          FromPtr(raw.ChapterIndex),
		ChapterLabel:          FromPtr(raw.ChapterLabel),
		PageInChapter:         FromPtr(raw.PageInChapter),
		PagesInChapter:        FromPtr(raw.PagesInChapter),
		ChapterElapsedSeconds: FromPtr(raw.ChapterElapsedSeconds),
		ChapterTotalSeconds:   FromPtr(raw.ChapterTotalSeconds),
		BookElapsedSeconds:    FromPtr(raw.BookElapsedSeconds),
		BookTotalSeconds:      FromPtr(raw.BookTotalSeconds),
		FractionComplete:      FromPtr(raw.FractionComplete),
		Timestamp:             raw.Timestamp,
	}
	return nil
}

// BookUpdate is a partial metadata change sent to the remote server. Only
// present fields are transmitted.
type BookUpdate struct {
	Title           Optional[string]
	Subtitle        Optional[string]
	Description     Optional[string]
	Language        Optional[string]
	PublicationDate Optional[string]
	Status          Optional[string]
	Rating          Optional[float64]
}

func (u BookUpdate) Empty() bool {
	return !u.Title.IsPresent() &&
		!u.Subtitle.IsPresent() &&
		!u.Description.IsPresent() &&
		!u.Language.IsPresent() &&
		!u.PublicationDate.IsPresent() &&
		!u.Status.IsPresent() &&
		!u.Rating.IsPresent()
}
