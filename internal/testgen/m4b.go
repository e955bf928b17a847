package testgen

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// iTunes data atom types.
const (
	dataTypeUTF8 = 1
	dataTypePNG  = 14
)

// GenerateM4B writes a minimal MP4 container with an iTunes metadata item
// list. It carries no audio samples, which is enough for tag readers and MIME
// sniffing and doesn't need ffmpeg.
func GenerateM4B(t *testing.T, dir, filename string, opts M4BOptions) string {
	t.Helper()

	var ilst bytes.Buffer
	textAtoms := []struct {
		atom  [4]byte
		value string
	}{
		{[4]byte{0xA9, 'n', 'a', 'm'}, opts.Title},
		{[4]byte{0xA9, 'A', 'R', 'T'}, opts.Artist},
		{[4]byte{0xA9, 'a', 'l', 'b'}, opts.Album},
		{[4]byte{0xA9, 'n', 'r', 't'}, opts.Narrator},
		{[4]byte{'d', 'e', 's', 'c'}, opts.Description},
	}
	for _, ta := range textAtoms {
		if ta.value == "" {
			continue
		}
		ilst.Write(itunesDataAtom(ta.atom, dataTypeUTF8, []byte(ta.value)))
	}
	if opts.HasCover {
		ilst.Write(itunesDataAtom([4]byte{'c', 'o', 'v', 'r'}, dataTypePNG, GenerateImage(t, "image/png")))
	}

	hdlr := make([]byte, 0, 25)
	hdlr = append(hdlr, 0, 0, 0, 0) // version + flags
	hdlr = append(hdlr, 0, 0, 0, 0) // pre_defined
	hdlr = append(hdlr, 'm', 'd', 'i', 'r')
	hdlr = append(hdlr, make([]byte, 12)...) // reserved
	hdlr = append(hdlr, 0)                   // empty name

	var meta bytes.Buffer
	meta.Write([]byte{0, 0, 0, 0}) // version + flags
	meta.Write(box("hdlr", hdlr))
	meta.Write(box("ilst", ilst.Bytes()))

	moov := box("moov", box("udta", box("meta", meta.Bytes())))

	var ftyp bytes.Buffer
	ftyp.WriteString("M4A ")
	ftyp.Write([]byte{0, 0, 0, 0})
	ftyp.WriteString("M4A mp42isom")

	var out bytes.Buffer
	out.Write(box("ftyp", ftyp.Bytes()))
	out.Write(moov)
	out.Write(box("mdat", nil))

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, out.Bytes(), 0600); err != nil {
		t.Fatalf("failed to write M4B file: %v", err)
	}
	return path
}

func box(boxType string, content []byte) []byte {
	buf := make([]byte, 8+len(content))
	binary.BigEndian.PutUint32(buf[0:4], uint32(8+len(content)))
	copy(buf[4:8], boxType)
	copy(buf[8:], content)
	return buf
}

// itunesDataAtom builds <atom><data>[version][type][locale][value]</data></atom>.
func itunesDataAtom(atom [4]byte, dataType int, value []byte) []byte {
	var data bytes.Buffer
	data.WriteByte(0)
	data.WriteByte(byte(dataType >> 16))
	data.WriteByte(byte(dataType >> 8))
	data.WriteByte(byte(dataType))
	data.Write([]byte{0, 0, 0, 0})
	data.Write(value)
	return box(string(atom[:]), box("data", data.Bytes()))
}
