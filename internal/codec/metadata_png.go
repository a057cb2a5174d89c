package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

var pngSignature = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

// Ancillary chunk types carried through to the optimized output. All of
// them are valid immediately after IHDR, so splicing keeps chunk-order
// constraints intact (iCCP must precede PLTE and IDAT).
var preservedPNGChunks = map[string]bool{
	"iCCP": true,
	"eXIf": true,
	"tEXt": true,
	"zTXt": true,
	"iTXt": true,
	"tIME": true,
}

func extractPNGMetadata(data []byte) (Metadata, error) {
	meta := Metadata{}

	err := walkPNGChunks(data, func(name string, raw, payload []byte) error {
		if !preservedPNGChunks[name] {
			return nil
		}
		meta.PNGChunks = append(meta.PNGChunks, append([]byte(nil), raw...))
		if name == "eXIf" {
			meta.EXIF = append([]byte(nil), payload...)
		}
		return nil
	})
	return meta, err
}

// walkPNGChunks visits every chunk, handing fn the chunk name, the raw
// chunk bytes (length through CRC), and the payload alone.
func walkPNGChunks(data []byte, fn func(name string, raw, payload []byte) error) error {
	if !bytes.HasPrefix(data, pngSignature) {
		return fmt.Errorf("invalid PNG signature")
	}

	pos := len(pngSignature)
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		end := pos + 8 + length + 4
		if end > len(data) {
			return fmt.Errorf("truncated PNG chunk")
		}
		name := string(data[pos+4 : pos+8])
		if err := fn(name, data[pos:end], data[pos+8:pos+8+length]); err != nil {
			return err
		}
		if name == "IEND" {
			return nil
		}
		pos = end
	}
	return nil
}

// splicePNGChunks inserts preserved chunks into a freshly encoded PNG,
// directly after its IHDR chunk.
func splicePNGChunks(encoded []byte, chunks [][]byte) ([]byte, error) {
	if len(chunks) == 0 {
		return encoded, nil
	}
	if !bytes.HasPrefix(encoded, pngSignature) {
		return nil, fmt.Errorf("encoder produced invalid PNG")
	}
	if len(encoded) < len(pngSignature)+8 {
		return nil, fmt.Errorf("encoder produced truncated PNG")
	}

	ihdrLen := int(binary.BigEndian.Uint32(encoded[8:12]))
	insertAt := len(pngSignature) + 8 + ihdrLen + 4
	if insertAt > len(encoded) {
		return nil, fmt.Errorf("encoder produced truncated PNG")
	}

	var inject bytes.Buffer
	for _, chunk := range chunks {
		inject.Write(chunk)
	}

	out := make([]byte, 0, len(encoded)+inject.Len())
	out = append(out, encoded[:insertAt]...)
	out = append(out, inject.Bytes()...)
	out = append(out, encoded[insertAt:]...)
	return out, nil
}
