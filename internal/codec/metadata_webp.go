package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	webpFlagICC   = 0x20
	webpFlagAlpha = 0x10
	webpFlagEXIF  = 0x08
)

type webpChunk struct {
	fourCC  string
	payload []byte
}

func extractWebPMetadata(data []byte) (Metadata, error) {
	meta := Metadata{}

	chunks, err := parseWebPChunks(data)
	if err != nil {
		return meta, err
	}

	for _, c := range chunks {
		switch c.fourCC {
		case "EXIF":
			raw := c.payload
			// Some writers include the JPEG-style prefix; the chunk
			// payload proper is the bare TIFF stream.
			raw = bytes.TrimPrefix(raw, jpegExifHeader)
			meta.EXIF = append([]byte(nil), raw...)
		case "ICCP":
			meta.ICC = append([]byte(nil), c.payload...)
		}
	}
	return meta, nil
}

func parseWebPChunks(data []byte) ([]webpChunk, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, fmt.Errorf("invalid WebP container")
	}

	var chunks []webpChunk
	pos := 12
	for pos+8 <= len(data) {
		fourCC := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		if pos+8+size > len(data) {
			return nil, fmt.Errorf("truncated WebP chunk %q", fourCC)
		}
		chunks = append(chunks, webpChunk{fourCC: fourCC, payload: data[pos+8 : pos+8+size]})
		pos += 8 + size
		if size%2 == 1 {
			pos++ // pad byte
		}
	}
	return chunks, nil
}

// spliceWebPMetadata rebuilds the RIFF container around the encoded
// image data with a VP8X header plus ICCP/EXIF chunks. width and height
// are the canvas dimensions of the encoded image.
func spliceWebPMetadata(encoded []byte, meta Metadata, width, height int) ([]byte, error) {
	if len(meta.EXIF) == 0 && len(meta.ICC) == 0 {
		return encoded, nil
	}

	chunks, err := parseWebPChunks(encoded)
	if err != nil {
		return nil, err
	}

	var flags byte
	var body []webpChunk
	for _, c := range chunks {
		switch c.fourCC {
		case "VP8X":
			if len(c.payload) > 0 {
				flags |= c.payload[0]
			}
		case "EXIF", "ICCP":
			// replaced below
		default:
			if c.fourCC == "ALPH" {
				flags |= webpFlagAlpha
			}
			body = append(body, c)
		}
	}
	if len(meta.ICC) > 0 {
		flags |= webpFlagICC
	}
	if len(meta.EXIF) > 0 {
		flags |= webpFlagEXIF
	}

	vp8x := make([]byte, 10)
	vp8x[0] = flags
	putUint24(vp8x[4:7], uint32(width-1))
	putUint24(vp8x[7:10], uint32(height-1))

	var out bytes.Buffer
	out.WriteString("RIFF")
	out.Write([]byte{0, 0, 0, 0}) // size patched below
	out.WriteString("WEBP")

	writeWebPChunk(&out, "VP8X", vp8x)
	if len(meta.ICC) > 0 {
		writeWebPChunk(&out, "ICCP", meta.ICC)
	}
	for _, c := range body {
		writeWebPChunk(&out, c.fourCC, c.payload)
	}
	if len(meta.EXIF) > 0 {
		writeWebPChunk(&out, "EXIF", meta.EXIF)
	}

	result := out.Bytes()
	binary.LittleEndian.PutUint32(result[4:8], uint32(len(result)-8))
	return result, nil
}

func writeWebPChunk(w *bytes.Buffer, fourCC string, payload []byte) {
	w.WriteString(fourCC)
	sizeBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBuf, uint32(len(payload)))
	w.Write(sizeBuf)
	w.Write(payload)
	if len(payload)%2 == 1 {
		w.WriteByte(0)
	}
}

func putUint24(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
}
