package mp4

import (
	"encoding/binary"
	"strings"

	gomp4 "github.com/abema/go-mp4"
)

// MP4 data types used in iTunes metadata atoms.
const (
	DataTypeUTF8    = 1  // UTF-8 text (most common)
	DataTypeUTF16BE = 2  // UTF-16 big-endian text
	DataTypeJPEG    = 13 // JPEG image data
	DataTypePNG     = 14 // PNG image data
	DataTypeGenre   = 18 // Genre text
	DataTypeBMP     = 27 // BMP image data
)

// iTunes atom type names. The © symbol is 0xA9 in MacRoman.
var (
	AtomTitle       = [4]byte{0xA9, 'n', 'a', 'm'} // ©nam
	AtomArtist      = [4]byte{0xA9, 'A', 'R', 'T'} // ©ART - author
	AtomAlbum       = [4]byte{0xA9, 'a', 'l', 'b'} // ©alb
	AtomComposer    = [4]byte{0xA9, 'c', 'm', 'p'} // ©cmp - narrator in older encoders
	AtomNarrator    = [4]byte{0xA9, 'n', 'r', 't'} // ©nrt
	AtomYear        = [4]byte{0xA9, 'd', 'a', 'y'} // ©day
	AtomGenre       = [4]byte{0xA9, 'g', 'e', 'n'} // ©gen
	AtomCover       = [4]byte{'c', 'o', 'v', 'r'}
	AtomDescription = [4]byte{'d', 'e', 's', 'c'}
)

var (
	BoxTypeMoov = gomp4.BoxTypeMoov()
	BoxTypeUdta = gomp4.BoxTypeUdta()
	BoxTypeMeta = gomp4.BoxTypeMeta()
	BoxTypeIlst = gomp4.BoxTypeIlst()
)

// extractDataBoxContent strips the header of the "data" box nested inside an
// ilst item and returns [version][type][locale][value].
func extractDataBoxContent(content []byte) []byte {
	if len(content) < 16 {
		return nil
	}
	if string(content[4:8]) != "data" {
		return nil
	}
	size := int(binary.BigEndian.Uint32(content[0:4]))
	if size >= 16 && size <= len(content) {
		return content[8:size]
	}
	return content[8:]
}

// parseDataValue splits a data atom payload. The layout is
// [1 byte version][3 bytes type][4 bytes locale][value].
func parseDataValue(data []byte) (dataType int, value []byte, ok bool) {
	if len(data) < 8 {
		return 0, nil, false
	}
	dataType = int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	return dataType, data[8:], true
}

func parseTextData(data []byte) string {
	dataType, value, ok := parseDataValue(data)
	if !ok || len(value) == 0 {
		return ""
	}
	if dataType == DataTypeUTF16BE {
		return strings.TrimSpace(decodeUTF16BE(value))
	}
	return strings.TrimSpace(string(value))
}

func parseImageData(data []byte) (imageData []byte, mimeType string, ok bool) {
	dataType, value, ok := parseDataValue(data)
	if !ok || len(value) == 0 {
		return nil, "", false
	}
	switch dataType {
	case DataTypeJPEG:
		return value, "image/jpeg", true
	case DataTypePNG:
		return value, "image/png", true
	case DataTypeBMP:
		return value, "image/bmp", true
	}
	return nil, "", false
}

func decodeUTF16BE(data []byte) string {
	start := 0
	if len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		start = 2
	}
	runes := make([]rune, 0, (len(data)-start)/2)
	for i := start; i+1 < len(data); i += 2 {
		r := rune(binary.BigEndian.Uint16(data[i : i+2]))
		if r == 0 {
			break
		}
		runes = append(runes, r)
	}
	return string(runes)
}

func atomTypeEquals(boxType gomp4.BoxType, atomType [4]byte) bool {
	return boxType == gomp4.BoxType(atomType)
}
