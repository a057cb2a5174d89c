package codec

import "squish/pkg/imgutil"

// Metadata is the snapshot of a source file's preservable metadata
// blocks. Which fields are populated depends on the format: JPEG and
// WebP fill EXIF/ICC, PNG keeps its ancillary chunks verbatim (with
// EXIF mirrored from the eXIf chunk for inspection).
type Metadata struct {
	// EXIF is the raw TIFF-ordered EXIF payload, without the JPEG
	// "Exif\x00\x00" prefix.
	EXIF []byte

	// ICC is the assembled ICC profile stream.
	ICC []byte

	// PNGChunks are complete raw PNG chunks (length, type, data, CRC)
	// carried through unchanged.
	PNGChunks [][]byte
}

// Empty reports whether the snapshot holds no metadata at all.
func (m Metadata) Empty() bool {
	return len(m.EXIF) == 0 && len(m.ICC) == 0 && len(m.PNGChunks) == 0
}

func extractMetadata(data []byte, kind imgutil.Kind) (Metadata, error) {
	switch kind {
	case imgutil.KindJPEG:
		return extractJPEGMetadata(data)
	case imgutil.KindPNG:
		return extractPNGMetadata(data)
	case imgutil.KindWebP:
		return extractWebPMetadata(data)
	default:
		return Metadata{}, nil
	}
}
