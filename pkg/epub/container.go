package epub

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/pkg/errors"
)

const containerPath = "META-INF/container.xml"

// parseContainer returns the package document path declared by the first
// rootfile in container.xml. The attribute name match is case-sensitive.
func parseContainer(data []byte) (string, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = passthroughCharset

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(ErrContainerMalformed, err.Error())
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "full-path" && attr.Value != "" {
				return attr.Value, nil
			}
		}
	}

	return "", errors.Wrap(ErrContainerMalformed, "no rootfile full-path")
}

// passthroughCharset lets documents that declare a non UTF-8 encoding through
// the decoder; the bytes have already been checked for UTF-8 validity.
func passthroughCharset(_ string, r io.Reader) (io.Reader, error) {
	return r, nil
}
