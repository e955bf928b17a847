package epub

import (
	"bytes"
	"encoding/xml"
	"io"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/pkg/errors"
)

const (
	dcNamespace  = "http://purl.org/dc/elements/1.1/"
	opfNamespace = "http://www.idpf.org/2007/opf"
)

// PackageDocument is the subset of an OPF package document we care about.
type PackageDocument struct {
	// Path of the package document inside the archive.
	Path string

	Title       string
	Subtitle    string
	Description string
	Language    string
	Date        string
	Creators    []models.Creator
	Subjects    []string
	Series      string
	SeriesIndex *float64

	// CoverID is the manifest id referenced by <meta name="cover">.
	CoverID  string
	Manifest []ManifestItem
}

type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}

// BasePath is the directory every manifest href is relative to. It is empty
// when the package document lives at the root of the archive.
func (p *PackageDocument) BasePath() string {
	dir := path.Dir(p.Path)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// Resolve turns a manifest href into an archive entry name.
func (p *PackageDocument) Resolve(href string) string {
	return path.Join(p.BasePath(), href)
}

func (p *PackageDocument) Item(id string) (ManifestItem, bool) {
	for _, item := range p.Manifest {
		if item.ID == id {
			return item, true
		}
	}
	return ManifestItem{}, false
}

type titleEntry struct {
	id   string
	text string
}

type creatorEntry struct {
	id   string
	role string
	text string
}

type metaEntry struct {
	id       string
	name     string
	content  string
	refines  string
	property string
	text     string
}

// ParsePackage parses an OPF package document. Dublin Core title,
// description, language and date keep the first non-empty match; every
// creator is kept in document order.
func ParsePackage(filename string, data []byte) (*PackageDocument, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, errors.WithStack(ErrInvalidEncoding)
	}

	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = passthroughCharset
	d.Strict = false
	d.Entity = xml.HTMLEntity

	doc := &PackageDocument{Path: filename}
	var (
		titles     []titleEntry
		creators   []creatorEntry
		metas      []metaEntry
		inMetadata bool
		sawPackage bool
	)

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(ErrPackageUnreadable, err.Error())
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "package":
				sawPackage = true
			case t.Name.Local == "metadata":
				inMetadata = true
			case isDublinCore(t.Name, "title", inMetadata):
				text, err := readText(d)
				if err != nil {
					return nil, err
				}
				titles = append(titles, titleEntry{id: attr(t, "id"), text: text})
			case isDublinCore(t.Name, "creator", inMetadata):
				role := attr(t, "role")
				id := attr(t, "id")
				text, err := readText(d)
				if err != nil {
					return nil, err
				}
				creators = append(creators, creatorEntry{id: id, role: role, text: text})
			case isDublinCore(t.Name, "description", inMetadata):
				if err := firstText(d, &doc.Description); err != nil {
					return nil, err
				}
			case isDublinCore(t.Name, "language", inMetadata):
				if err := firstText(d, &doc.Language); err != nil {
					return nil, err
				}
			case isDublinCore(t.Name, "date", inMetadata):
				if err := firstText(d, &doc.Date); err != nil {
					return nil, err
				}
			case isDublinCore(t.Name, "subject", inMetadata):
				text, err := readText(d)
				if err != nil {
					return nil, err
				}
				if text != "" {
					doc.Subjects = append(doc.Subjects, text)
				}
			case t.Name.Local == "meta" && inMetadata:
				m := metaEntry{
					id:       attr(t, "id"),
					name:     attr(t, "name"),
					content:  attr(t, "content"),
					refines:  strings.TrimPrefix(attr(t, "refines"), "#"),
					property: attr(t, "property"),
				}
				if m.property != "" {
					text, err := readText(d)
					if err != nil {
						return nil, err
					}
					m.text = text
				}
				metas = append(metas, m)
			case t.Name.Local == "item":
				doc.Manifest = append(doc.Manifest, ManifestItem{
					ID:         attr(t, "id"),
					Href:       attr(t, "href"),
					MediaType:  attr(t, "media-type"),
					Properties: attr(t, "properties"),
				})
			}
		case xml.EndElement:
			if t.Name.Local == "metadata" {
				inMetadata = false
			}
		}
	}

	if !sawPackage {
		return nil, errors.Wrap(ErrPackageUnreadable, "no package element")
	}

	// Lookup-friendly views of the meta elements.
	refined := map[string]map[string]string{}
	named := map[string]string{}
	for _, m := range metas {
		if m.refines != "" && m.property != "" {
			if _, ok := refined[m.refines]; !ok {
				refined[m.refines] = map[string]string{}
			}
			refined[m.refines][m.property] = m.text
			continue
		}
		if m.name != "" {
			if _, ok := named[m.name]; !ok {
				named[m.name] = m.content
			}
		}
	}

	for _, t := range titles {
		if t.text == "" {
			continue
		}
		if refined[t.id]["title-type"] == "subtitle" {
			if doc.Subtitle == "" {
				doc.Subtitle = t.text
			}
			continue
		}
		if doc.Title == "" {
			doc.Title = t.text
		}
	}

	for _, c := range creators {
		if c.text == "" {
			continue
		}
		role := c.role
		if role == "" && c.id != "" {
			role = refined[c.id]["role"]
		}
		doc.Creators = append(doc.Creators, models.Creator{Name: c.text, Role: role})
	}

	doc.CoverID = named["cover"]

	doc.Series = named["calibre:series"]
	if idx := named["calibre:series_index"]; idx != "" {
		if num, err := strconv.ParseFloat(idx, 64); err == nil {
			doc.SeriesIndex = &num
		}
	}
	if doc.Series == "" {
		for _, m := range metas {
			if m.property != "belongs-to-collection" || m.text == "" {
				continue
			}
			doc.Series = m.text
			if pos := refined[m.id]["group-position"]; pos != "" {
				if num, err := strconv.ParseFloat(pos, 64); err == nil {
					doc.SeriesIndex = &num
				}
			}
			break
		}
	}

	return doc, nil
}

func isDublinCore(name xml.Name, local string, inMetadata bool) bool {
	if name.Local != local {
		return false
	}
	switch name.Space {
	case dcNamespace, "dc":
		return true
	case "", opfNamespace:
		return inMetadata
	}
	return false
}

func attr(start xml.StartElement, local string) string {
	for _, a := range start.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// readText consumes tokens up to the end of the current element and returns
// its character data. CDATA sections arrive as plain character data, so any
// markup they carry is kept verbatim.
func readText(d *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return "", errors.Wrap(ErrPackageUnreadable, err.Error())
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func firstText(d *xml.Decoder, dst *string) error {
	text, err := readText(d)
	if err != nil {
		return err
	}
	if *dst == "" {
		*dst = text
	}
	return nil
}
