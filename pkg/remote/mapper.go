package remote

import (
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
)

func mapBooks(dtos []bookDTO) []*models.Book {
	books := make([]*models.Book, 0, len(dtos))
	for i := range dtos {
		books = append(books, mapBook(&dtos[i]))
	}
	return books
}

func mapBook(d *bookDTO) *models.Book {
	b := &models.Book{
		UUID:            d.UUID,
		Title:           d.Title,
		Subtitle:        d.Subtitle,
		Description:     d.Description,
		Language:        d.Language,
		PublicationDate: d.PublicationDate,
		Rating:          d.Rating,
	}
	for _, a := range d.Authors {
		b.Creators = append(b.Creators, models.Creator{Name: a.Name, Role: a.Role})
	}
	for _, n := range d.Narrators {
		b.Narrators = append(b.Narrators, n.Name)
	}
	for _, s := range d.Series {
		b.Series = append(b.Series, models.SeriesRef{Name: s.Name, Position: s.Position})
	}
	for _, t := range d.Tags {
		b.Tags = append(b.Tags, t.Name)
	}
	for _, c := range d.Collections {
		b.Collections = append(b.Collections, c.Name)
	}
	if d.Ebook != nil {
		b.Ebook = mapAsset(d.Ebook)
	}
	if d.Audiobook != nil {
		b.Audiobook = mapAsset(d.Audiobook)
	}
	if d.Readaloud != nil {
		a := mapAsset(&d.Readaloud.assetDTO)
		a.Status = d.Readaloud.Status
		a.Stage = d.Readaloud.CurrentStage
		a.StageProgress = d.Readaloud.StageProgress
		a.QueuePosition = d.Readaloud.QueuePosition
		b.Readaloud = a
	}
	if d.Position != nil {
		p := mapPosition(d.Position)
		b.Position = &p
	}
	if d.Status != nil && d.Status.Name != "" {
		name := d.Status.Name
		b.Status = &name
	}
	return b
}

// mapAsset drops the server's missing flag; availability is decided against
// local files during reconciliation.
func mapAsset(d *assetDTO) *models.Asset {
	return &models.Asset{Filepath: d.Filepath}
}

func mapPosition(d *positionDTO) models.ProgressPayload {
	return models.ProgressPayload{
		ChapterIndex:          models.FromPtr(d.ChapterIndex),
		ChapterLabel:          models.FromPtr(d.ChapterLabel),
		PageInChapter:         models.FromPtr(d.PageInChapter),
		PagesInChapter:        models.FromPtr(d.PagesInChapter),
		ChapterElapsedSeconds: models.FromPtr(d.ChapterElapsedSeconds),
		ChapterTotalSeconds:   models.FromPtr(d.ChapterTotalSeconds),
		BookElapsedSeconds:    models.FromPtr(d.BookElapsedSeconds),
		BookTotalSeconds:      models.FromPtr(d.BookTotalSeconds),
		FractionComplete:      models.FromPtr(d.FractionComplete),
		Timestamp:             d.Timestamp,
	}
}

func positionToDTO(p models.ProgressPayload) positionDTO {
	return positionDTO{
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
	}
}

func bookUpdateToDTO(u models.BookUpdate) bookUpdateDTO {
	return bookUpdateDTO{
		Title:           u.Title.Ptr(),
		Subtitle:        u.Subtitle.Ptr(),
		Description:     u.Description.Ptr(),
		Language:        u.Language.Ptr(),
		PublicationDate: u.PublicationDate.Ptr(),
		Status:          u.Status.Ptr(),
		Rating:          u.Rating.Ptr(),
	}
}
