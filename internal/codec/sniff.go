package codec

import (
	"bytes"
	"encoding/binary"
	"io"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// pngIsAnimated walks the chunk list looking for acTL before the first IDAT.
func pngIsAnimated(data []byte) bool {
	pos := len(pngSignature)
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		typ := string(data[pos+4 : pos+8])
		switch typ {
		case "acTL":
			return true
		case "IDAT", "IEND":
			return false
		}
		next := pos + 12 + length
		if length < 0 || next < pos {
			return false
		}
		pos = next
	}
	return false
}

// GIF block markers.
const (
	gifExtension  = 0x21
	gifDescriptor = 0x2C
	gifTrailer    = 0x3B
)

// gifIsAnimated reports whether data holds more than one image descriptor.
// A structure it cannot walk is treated as animated.
func gifIsAnimated(data []byte) bool {
	r := bytes.NewReader(data)
	if _, err := r.Seek(6, io.SeekStart); err != nil {
		return true
	}

	// logical screen descriptor
	var lsd [7]byte
	if _, err := io.ReadFull(r, lsd[:]); err != nil {
		return true
	}
	if lsd[4]&0x80 != 0 {
		if !skip(r, colorTableSize(lsd[4])) {
			return true
		}
	}

	images := 0
	for {
		marker, err := r.ReadByte()
		if err != nil {
			return true
		}
		switch marker {
		case gifExtension:
			if _, err := r.ReadByte(); err != nil {
				return true
			}
			if !skipSubBlocks(r) {
				return true
			}
		case gifDescriptor:
			images++
			if images > 1 {
				return true
			}
			var desc [9]byte
			if _, err := io.ReadFull(r, desc[:]); err != nil {
				return true
			}
			if desc[8]&0x80 != 0 {
				if !skip(r, colorTableSize(desc[8])) {
					return true
				}
			}
			// LZW minimum code size
			if _, err := r.ReadByte(); err != nil {
				return true
			}
			if !skipSubBlocks(r) {
				return true
			}
		case gifTrailer:
			return false
		default:
			return true
		}
	}
}

func colorTableSize(packed byte) int {
	return 3 * (1 << ((packed & 0x07) + 1))
}

func skip(r *bytes.Reader, n int) bool {
	if r.Len() < n {
		return false
	}
	_, err := r.Seek(int64(n), io.SeekCurrent)
	return err == nil
}

func skipSubBlocks(r *bytes.Reader) bool {
	for {
		size, err := r.ReadByte()
		if err != nil {
			return false
		}
		if size == 0 {
			return true
		}
		if !skip(r, int(size)) {
			return false
		}
	}
}
