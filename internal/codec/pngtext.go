package codec

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// embedTextChunk inserts a tEXt chunk (keyword\0text) into an encoded PNG
// immediately after the IHDR chunk. image/png has no API for
// writing ancillary chunks, so this operates on the raw chunk stream
// directly; every chunk's length/CRC is standard PNG, so any PNG reader that
// ignores unknown ancillary chunks still decodes the image correctly.
func embedTextChunk(pngData []byte, keyword, text string) ([]byte, error) {
	if len(pngData) < len(pngSignature) || !bytes.Equal(pngData[:len(pngSignature)], pngSignature) {
		return nil, ErrNotACarrier
	}

	chunkData := append([]byte(keyword), 0)
	chunkData = append(chunkData, []byte(text)...)
	chunk := makeChunk("tEXt", chunkData)

	// Insert after the first chunk (IHDR), which always immediately
	// follows the signature and is always exactly 25 bytes (4 length + 4
	// type + 13 data + 4 crc).
	ihdrEnd := len(pngSignature) + 25
	out := make([]byte, 0, len(pngData)+len(chunk))
	out = append(out, pngData[:ihdrEnd]...)
	out = append(out, chunk...)
	out = append(out, pngData[ihdrEnd:]...)
	return out, nil
}

// makeChunk builds a complete PNG chunk (length, type, data, crc32).
func makeChunk(typ string, data []byte) []byte {
	buf := make([]byte, 4+4+len(data)+4)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(data)))
	copy(buf[4:8], typ)
	copy(buf[8:8+len(data)], data)
	crc := crc32.NewIEEE()
	crc.Write(buf[4 : 8+len(data)])
	binary.BigEndian.PutUint32(buf[8+len(data):], crc.Sum32())
	return buf
}

// extractTextChunk scans the raw PNG byte stream for a tEXt chunk with the
// given keyword and returns its text value.
func extractTextChunk(pngData []byte, keyword string) (string, bool) {
	if len(pngData) < len(pngSignature) {
		return "", false
	}
	pos := len(pngSignature)
	for pos+8 <= len(pngData) {
		length := binary.BigEndian.Uint32(pngData[pos : pos+4])
		typ := string(pngData[pos+4 : pos+8])
		dataStart := pos + 8
		dataEnd := dataStart + int(length)
		if dataEnd+4 > len(pngData) {
			break
		}
		if typ == "tEXt" {
			data := pngData[dataStart:dataEnd]
			if idx := bytes.IndexByte(data, 0); idx >= 0 && string(data[:idx]) == keyword {
				return string(data[idx+1:]), true
			}
		}
		if typ == "IEND" {
			break
		}
		pos = dataEnd + 4
	}
	return "", false
}
