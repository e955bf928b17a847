package remote

import "time"

// Wire types of the remote catalog API.

type bookDTO struct {
	UUID            string          `json:"uuid"`
	Title           string          `json:"title"`
	Subtitle        *string         `json:"subtitle"`
	Description     *string         `json:"description"`
	Language        *string         `json:"language"`
	PublicationDate *string         `json:"publicationDate"`
	Authors         []creatorDTO    `json:"authors"`
	Narrators       []creatorDTO    `json:"narrators"`
	Series          []seriesDTO     `json:"series"`
	Tags            []nameDTO       `json:"tags"`
	Collections     []collectionDTO `json:"collections"`
	Ebook           *assetDTO       `json:"ebook"`
	Audiobook       *assetDTO       `json:"audiobook"`
	Readaloud       *readaloudDTO   `json:"readaloud"`
	Position        *positionDTO    `json:"position"`
	Status          *nameDTO        `json:"status"`
	Rating          *float64        `json:"rating"`
}

type creatorDTO struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type nameDTO struct {
	Name string `json:"name"`
}

type seriesDTO struct {
	Name     string   `json:"name"`
	Position *float64 `json:"position"`
}

type collectionDTO struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type assetDTO struct {
	Filepath string `json:"filepath"`
	Missing  bool   `json:"missing"`
}

type readaloudDTO struct {
	assetDTO
	Status        *string  `json:"status"`
	CurrentStage  *string  `json:"currentStage"`
	StageProgress *float64 `json:"stageProgress"`
	QueuePosition *int     `json:"queuePosition"`
}

type positionDTO struct {
	ChapterIndex          *int      `json:"chapterIndex,omitempty"`
	ChapterLabel          *string   `json:"chapterLabel,omitempty"`
	PageInChapter         *int      `json:"pageInChapter,omitempty"`
	PagesInChapter        *int      `json:"pagesInChapter,omitempty"`
	ChapterElapsedSeconds *float64  `json:"chapterElapsedSeconds,omitempty"`
	ChapterTotalSeconds   *float64  `json:"chapterTotalSeconds,omitempty"`
	BookElapsedSeconds    *float64  `json:"bookElapsedSeconds,omitempty"`
	BookTotalSeconds      *float64  `json:"bookTotalSeconds,omitempty"`
	FractionComplete      *float64  `json:"fractionComplete,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
}

type bookUpdateDTO struct {
	Title           *string  `json:"title,omitempty"`
	Subtitle        *string  `json:"subtitle,omitempty"`
	Description     *string  `json:"description,omitempty"`
	Language        *string  `json:"language,omitempty"`
	PublicationDate *string  `json:"publicationDate,omitempty"`
	Status          *string  `json:"status,omitempty"`
	Rating          *float64 `json:"rating,omitempty"`
}

type collectionBooksDTO struct {
	Books []string `json:"books"`
}
