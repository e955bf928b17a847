package reconcile

import (
	"testing"

	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localScan(books ...*models.Book) *models.ScanResult {
	r := models.NewScanResult()
	for _, b := range books {
		r.Books = append(r.Books, b)
		for _, v := range b.Variants() {
			r.AddPath(b.UUID, v, "/library/"+b.Asset(v).Filepath)
		}
	}
	return r
}

func TestMerge_ReadaloudPrecedence(t *testing.T) {
	t.Parallel()

	local := localScan(&models.Book{
		UUID:  "b1",
		Title: "local title",
		Ebook: &models.Asset{Filepath: "Dune/ebook/dune.epub"},
	})
	remote := []*models.Book{{
		UUID:      "b1",
		Title:     "Dune",
		Readaloud: &models.Asset{Filepath: "server/dune.epub"},
	}}

	catalog := Merge(local, remote)
	require.Len(t, catalog.Books, 1)
	book := catalog.Books[0]

	assert.Nil(t, book.Ebook)
	require.NotNil(t, book.Readaloud)
	assert.False(t, book.Readaloud.Missing)
	assert.Equal(t, models.MediaPaths{models.VariantReadaloud: "/library/Dune/ebook/dune.epub"}, catalog.Paths["b1"])
}

func TestMerge_MissingFlagFlips(t *testing.T) {
	t.Parallel()

	remote := []*models.Book{{
		UUID:      "b1",
		Title:     "Hyperion",
		Ebook:     &models.Asset{Filepath: "server/h.epub"},
		Audiobook: &models.Asset{Filepath: "server/h.m4b"},
	}}
	ebookOnly := localScan(&models.Book{UUID: "b1", Ebook: &models.Asset{Filepath: "H/ebook/h.epub"}})

	catalog := Merge(ebookOnly, remote)
	require.Len(t, catalog.Books, 1)
	assert.True(t, catalog.Books[0].Audiobook.Missing)
	assert.False(t, catalog.Books[0].Ebook.Missing)
	assert.Equal(t, []models.MissingAsset{{
		BookUUID: "b1",
		Title:    "Hyperion",
		Variant:  models.VariantAudiobook,
		Filepath: "server/h.m4b",
	}}, catalog.Missing())

	both := localScan(&models.Book{
		UUID:      "b1",
		Ebook:     &models.Asset{Filepath: "H/ebook/h.epub"},
		Audiobook: &models.Asset{Filepath: "H/audio/h.m4b"},
	})
	catalog = Merge(both, remote)
	assert.False(t, catalog.Books[0].Audiobook.Missing)
	assert.Empty(t, catalog.Missing())
}

func TestMerge_RemoteMetadataWins(t *testing.T) {
	t.Parallel()

	local := localScan(&models.Book{
		UUID:     "b1",
		Title:    "dune (scan)",
		Creators: []models.Creator{{Name: "F. Herbert"}},
		Ebook:    &models.Asset{Filepath: "Dune/ebook/dune.epub"},
	})
	remote := []*models.Book{{
		UUID:     "b1",
		Title:    "Dune",
		Creators: []models.Creator{{Name: "Frank Herbert", Role: "aut"}},
		Ebook:    &models.Asset{Filepath: "server/dune.epub"},
	}}

	book := Merge(local, remote).Books[0]
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, []string{"Frank Herbert"}, book.Authors())
	assert.Equal(t, "server/dune.epub", book.Ebook.Filepath)
}

func TestMerge_LocalOnlyKeptUnchanged(t *testing.T) {
	t.Parallel()

	localBook := &models.Book{
		UUID:      "local-1",
		Title:     "Offline Book",
		Audiobook: &models.Asset{Filepath: "Offline/audio/o.m4b"},
	}
	catalog := Merge(localScan(localBook), nil)

	require.Len(t, catalog.Books, 1)
	assert.Equal(t, localBook, catalog.Books[0])
	assert.NotSame(t, localBook, catalog.Books[0])
	assert.Equal(t, "/library/Offline/audio/o.m4b", catalog.Paths["local-1"][models.VariantAudiobook])
}

func TestMerge_UndeclaredLocalVariantIsAdded(t *testing.T) {
	t.Parallel()

	local := localScan(&models.Book{
		UUID:      "b1",
		Ebook:     &models.Asset{Filepath: "B/ebook/b.epub"},
		Audiobook: &models.Asset{Filepath: "B/audio/b.m4b"},
	})
	remote := []*models.Book{{UUID: "b1", Title: "B", Ebook: &models.Asset{Filepath: "server/b.epub"}}}

	catalog := Merge(local, remote)
	book := catalog.Books[0]
	require.NotNil(t, book.Audiobook)
	assert.False(t, book.Audiobook.Missing)
	assert.Equal(t, "B/audio/b.m4b", book.Audiobook.Filepath)
	assert.Len(t, catalog.Paths["b1"], 2)
}

func TestMerge_ConflictingPathFillsHighestDeclaredSlot(t *testing.T) {
	t.Parallel()

	// The local ebook file is the only thing on disk; the remote says the
	// book has an audiobook and a readaloud.
	local := localScan(&models.Book{UUID: "b1", Ebook: &models.Asset{Filepath: "B/ebook/b.epub"}})
	remote := []*models.Book{{
		UUID:      "b1",
		Title:     "B",
		Audiobook: &models.Asset{Filepath: "server/b.m4b"},
		Readaloud: &models.Asset{Filepath: "server/b-synced.epub"},
	}}

	catalog := Merge(local, remote)
	book := catalog.Books[0]
	assert.False(t, book.Readaloud.Missing)
	assert.True(t, book.Audiobook.Missing)
	assert.Nil(t, book.Ebook)
	assert.Equal(t, models.MediaPaths{models.VariantReadaloud: "/library/B/ebook/b.epub"}, catalog.Paths["b1"])
}

func TestMerge_DropsBooksWithoutAssets(t *testing.T) {
	t.Parallel()

	catalog := Merge(
		localScan(&models.Book{UUID: "local-empty", Title: "nothing"}),
		[]*models.Book{{UUID: "remote-empty", Title: "nothing either"}},
	)
	assert.Empty(t, catalog.Books)
	assert.Empty(t, catalog.Paths)
}

func TestMerge_Order(t *testing.T) {
	t.Parallel()

	local := localScan(
		&models.Book{UUID: "l2", Ebook: &models.Asset{Filepath: "l2.epub"}},
		&models.Book{UUID: "r1", Ebook: &models.Asset{Filepath: "r1.epub"}},
		&models.Book{UUID: "l1", Ebook: &models.Asset{Filepath: "l1.epub"}},
	)
	remote := []*models.Book{
		{UUID: "r2", Ebook: &models.Asset{}},
		{UUID: "r1", Ebook: &models.Asset{}},
	}

	catalog := Merge(local, remote)
	var ids []string
	for _, b := range catalog.Books {
		ids = append(ids, b.UUID)
	}
	assert.Equal(t, []string{"r2", "r1", "l2", "l1"}, ids)
}

func TestMerge_UnionsLocalRecordsWithSameIdentity(t *testing.T) {
	t.Parallel()

	local := models.NewScanResult()
	local.Books = []*models.Book{
		{UUID: "b1", Title: "first", Ebook: &models.Asset{Filepath: "b/ebook/b.epub"}},
		{UUID: "b1", Title: "second", Audiobook: &models.Asset{Filepath: "b/audio/b.m4b"}},
	}
	local.AddPath("b1", models.VariantEbook, "/lib/b/ebook/b.epub")
	local.AddPath("b1", models.VariantAudiobook, "/lib/b/audio/b.m4b")

	catalog := Merge(local, nil)
	require.Len(t, catalog.Books, 1)
	book := catalog.Books[0]
	assert.Equal(t, "first", book.Title)
	assert.NotNil(t, book.Ebook)
	assert.NotNil(t, book.Audiobook)
	assert.Len(t, catalog.Paths["b1"], 2)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	localBook := &models.Book{UUID: "b1", Ebook: &models.Asset{Filepath: "b.epub"}}
	local := localScan(localBook)
	remoteBook := &models.Book{UUID: "b1", Title: "B", Audiobook: &models.Asset{Filepath: "server/b.m4b"}}
	localBefore := localBook.Clone()
	remoteBefore := remoteBook.Clone()
	pathsBefore := local.Paths["b1"].Clone()

	catalog := Merge(local, []*models.Book{remoteBook})
	catalog.Books[0].Title = "changed"
	catalog.Paths["b1"][models.VariantEbook] = "/elsewhere"

	assert.Equal(t, localBefore, localBook)
	assert.Equal(t, remoteBefore, remoteBook)
	assert.Equal(t, pathsBefore, local.Paths["b1"])
}

func TestMerge_Deterministic(t *testing.T) {
	t.Parallel()

	local := localScan(
		&models.Book{UUID: "a", Ebook: &models.Asset{Filepath: "a.epub"}, Audiobook: &models.Asset{Filepath: "a.m4b"}},
		&models.Book{UUID: "b", Readaloud: &models.Asset{Filepath: "b.epub"}},
	)
	remote := []*models.Book{{UUID: "a", Audiobook: &models.Asset{}, Readaloud: &models.Asset{}}}

	assert.Equal(t, Merge(local, remote), Merge(local, remote))
}
