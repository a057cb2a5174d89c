package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

var (
	jpegExifHeader = []byte("Exif\x00\x00")
	jpegICCHeader  = []byte("ICC_PROFILE\x00")
)

// maxICCChunk is the largest ICC slice one APP2 segment can carry:
// 65533 bytes of payload minus the 12-byte profile header and the
// sequence/count bytes.
const maxICCChunk = 65533 - len("ICC_PROFILE\x00") - 2

// extractJPEGMetadata harvests the EXIF APP1 payload and reassembles the
// ICC profile from its APP2 segments (multi-segment profiles carry a
// sequence byte that defines their order).
func extractJPEGMetadata(data []byte) (Metadata, error) {
	meta := Metadata{}

	type iccPart struct {
		seq  int
		data []byte
	}
	var parts []iccPart

	err := walkJPEGSegments(data, func(marker byte, payload []byte) error {
		switch marker {
		case 0xe1:
			if len(meta.EXIF) == 0 && bytes.HasPrefix(payload, jpegExifHeader) {
				meta.EXIF = append([]byte(nil), payload[len(jpegExifHeader):]...)
			}
		case 0xe2:
			if !bytes.HasPrefix(payload, jpegICCHeader) {
				return nil
			}
			body := payload[len(jpegICCHeader):]
			if len(body) < 2 {
				return fmt.Errorf("truncated ICC segment")
			}
			parts = append(parts, iccPart{seq: int(body[0]), data: body[2:]})
		}
		return nil
	})
	if err != nil {
		return meta, err
	}

	if len(parts) > 0 {
		sort.Slice(parts, func(i, j int) bool { return parts[i].seq < parts[j].seq })
		for _, part := range parts {
			meta.ICC = append(meta.ICC, part.data...)
		}
	}

	return meta, nil
}

// walkJPEGSegments visits each marker segment before the scan data,
// handing fn the marker byte and its payload.
func walkJPEGSegments(data []byte, fn func(marker byte, payload []byte) error) error {
	if len(data) < 2 || data[0] != 0xff || data[1] != 0xd8 {
		return fmt.Errorf("invalid JPEG SOI")
	}

	pos := 2
	for pos < len(data) {
		for pos < len(data) && data[pos] != 0xff {
			pos++
		}
		for pos < len(data) && data[pos] == 0xff {
			pos++
		}
		if pos >= len(data) {
			return nil
		}

		marker := data[pos]
		pos++

		if marker == 0xd9 || marker == 0xda { // EOI or SOS
			return nil
		}
		if marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7) {
			continue
		}

		if pos+2 > len(data) {
			return fmt.Errorf("truncated JPEG segment")
		}
		segLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		if segLen < 2 || pos+segLen > len(data) {
			return fmt.Errorf("invalid JPEG segment length")
		}
		if err := fn(marker, data[pos+2:pos+segLen]); err != nil {
			return err
		}
		pos += segLen
	}
	return nil
}

// spliceJPEGMetadata inserts preserved EXIF and ICC segments into a
// freshly encoded JPEG, after the SOI and any APP0 the encoder wrote.
func spliceJPEGMetadata(encoded []byte, meta Metadata) ([]byte, error) {
	if len(meta.EXIF) == 0 && len(meta.ICC) == 0 {
		return encoded, nil
	}
	if len(encoded) < 2 || encoded[0] != 0xff || encoded[1] != 0xd8 {
		return nil, fmt.Errorf("encoder produced invalid JPEG")
	}

	insertAt := 2
	for insertAt+4 <= len(encoded) && encoded[insertAt] == 0xff && encoded[insertAt+1] == 0xe0 {
		segLen := int(binary.BigEndian.Uint16(encoded[insertAt+2 : insertAt+4]))
		if segLen < 2 || insertAt+2+segLen > len(encoded) {
			break
		}
		insertAt += 2 + segLen
	}

	var inject bytes.Buffer
	if n := len(meta.EXIF); n > 0 && n+len(jpegExifHeader)+2 <= 0xffff {
		writeJPEGSegment(&inject, 0xe1, jpegExifHeader, meta.EXIF)
	}
	if len(meta.ICC) > 0 {
		writeICCSegments(&inject, meta.ICC)
	}

	out := make([]byte, 0, len(encoded)+inject.Len())
	out = append(out, encoded[:insertAt]...)
	out = append(out, inject.Bytes()...)
	out = append(out, encoded[insertAt:]...)
	return out, nil
}

func writeICCSegments(w *bytes.Buffer, icc []byte) {
	total := (len(icc) + maxICCChunk - 1) / maxICCChunk
	if total > 255 {
		// Profile too large for the APP2 chunking scheme; drop it.
		return
	}
	for i := 0; i < total; i++ {
		start := i * maxICCChunk
		end := start + maxICCChunk
		if end > len(icc) {
			end = len(icc)
		}
		header := append(append([]byte{}, jpegICCHeader...), byte(i+1), byte(total))
		writeJPEGSegment(w, 0xe2, header, icc[start:end])
	}
}

func writeJPEGSegment(w *bytes.Buffer, marker byte, header, payload []byte) {
	w.Write([]byte{0xff, marker})
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(2+len(header)+len(payload)))
	w.Write(lenBuf)
	w.Write(header)
	w.Write(payload)
}
