package epub

import (
	"testing"

	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePackage_DublinCore(t *testing.T) {
	t.Parallel()
	opf := `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:title id="t1">The Left Hand of Darkness</dc:title>
    <dc:title id="t2">Second Title Ignored</dc:title>
    <dc:creator id="c1" opf:role="aut">Ursula K. Le Guin</dc:creator>
    <dc:creator id="c2">Jane Translator</dc:creator>
    <meta refines="#c2" property="role">trl</meta>
    <dc:description>First description</dc:description>
    <dc:description>Second description</dc:description>
    <dc:language>en</dc:language>
    <dc:language>fr</dc:language>
    <dc:date>1969-03-01</dc:date>
    <dc:subject>Science Fiction</dc:subject>
    <meta name="calibre:series" content="Hainish Cycle"/>
    <meta name="calibre:series_index" content="4"/>
  </metadata>
</package>`

	doc, err := ParsePackage("OEBPS/content.opf", []byte(opf))
	require.NoError(t, err)

	assert.Equal(t, "The Left Hand of Darkness", doc.Title)
	assert.Equal(t, "First description", doc.Description)
	assert.Equal(t, "en", doc.Language)
	assert.Equal(t, "1969-03-01", doc.Date)
	assert.Equal(t, []models.Creator{
		{Name: "Ursula K. Le Guin", Role: "aut"},
		{Name: "Jane Translator", Role: "trl"},
	}, doc.Creators)
	assert.Equal(t, []string{"Science Fiction"}, doc.Subjects)
	assert.Equal(t, "Hainish Cycle", doc.Series)
	require.NotNil(t, doc.SeriesIndex)
	assert.InDelta(t, 4.0, *doc.SeriesIndex, 0.001)
	assert.Equal(t, "OEBPS", doc.BasePath())
}

func TestParsePackage_CDATADescription(t *testing.T) {
	t.Parallel()
	opf := `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title><![CDATA[Fish & Chips]]></dc:title>
    <dc:description><![CDATA[Hello <b>World</b>]]></dc:description>
  </metadata>
</package>`

	doc, err := ParsePackage("content.opf", []byte(opf))
	require.NoError(t, err)

	assert.Equal(t, "Fish & Chips", doc.Title)
	assert.Equal(t, "Hello <b>World</b>", doc.Description)
	assert.Equal(t, "", doc.BasePath())
}

func TestParsePackage_Subtitle(t *testing.T) {
	t.Parallel()
	opf := `<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title id="sub">A Subtitle</dc:title>
    <dc:title id="main">Main Title</dc:title>
    <meta refines="#sub" property="title-type">subtitle</meta>
    <meta refines="#main" property="title-type">main</meta>
  </metadata>
</package>`

	doc, err := ParsePackage("content.opf", []byte(opf))
	require.NoError(t, err)
	assert.Equal(t, "Main Title", doc.Title)
	assert.Equal(t, "A Subtitle", doc.Subtitle)
}

func TestParsePackage_CollectionSeries(t *testing.T) {
	t.Parallel()
	opf := `<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Book</dc:title>
    <meta property="belongs-to-collection" id="coll">The Expanse</meta>
    <meta refines="#coll" property="group-position">2</meta>
  </metadata>
</package>`

	doc, err := ParsePackage("content.opf", []byte(opf))
	require.NoError(t, err)
	assert.Equal(t, "The Expanse", doc.Series)
	require.NotNil(t, doc.SeriesIndex)
	assert.InDelta(t, 2.0, *doc.SeriesIndex, 0.001)
}

func TestParsePackage_CoverMetaAttributeOrder(t *testing.T) {
	t.Parallel()
	opf := `<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <meta content="cover-img" name="cover"/>
  </metadata>
  <manifest>
    <item href="img/c.jpg" id="cover-img" media-type="image/jpeg"/>
  </manifest>
</package>`

	doc, err := ParsePackage("OPS/package.opf", []byte(opf))
	require.NoError(t, err)
	assert.Equal(t, "cover-img", doc.CoverID)
	item, ok := doc.Item("cover-img")
	require.True(t, ok)
	assert.Equal(t, "OPS/img/c.jpg", doc.Resolve(item.Href))
}

func TestParsePackage_InvalidUTF8(t *testing.T) {
	t.Parallel()
	data := []byte("<package><metadata><dc:title>Bad \xff\xfe</dc:title></metadata></package>")

	_, err := ParsePackage("content.opf", data)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestParsePackage_NotAPackage(t *testing.T) {
	t.Parallel()

	_, err := ParsePackage("content.opf", []byte("<html><body>nope</body></html>"))
	assert.ErrorIs(t, err, ErrPackageUnreadable)
}

func TestParseContainer(t *testing.T) {
	t.Parallel()

	p, err := parseContainer([]byte(`<container><rootfiles><rootfile media-type="application/oebps-package+xml" full-path="OPS/book.opf"/></rootfiles></container>`))
	require.NoError(t, err)
	assert.Equal(t, "OPS/book.opf", p)

	_, err = parseContainer([]byte(`<container><rootfiles><rootfile FULL-PATH="OPS/book.opf"/></rootfiles></container>`))
	assert.ErrorIs(t, err, ErrContainerMalformed)

	_, err = parseContainer([]byte(`<container><rootfiles>`))
	assert.ErrorIs(t, err, ErrContainerMalformed)
}
