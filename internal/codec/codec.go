// Package codec provides the image transform capability used by the
// optimization engine: decode, scale, and re-encode, plus snapshot and
// reattachment of EXIF/ICC metadata blocks. Output format always matches
// input format.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	chaiwebp "github.com/chai2010/webp"
	"golang.org/x/image/draw"
	xwebp "golang.org/x/image/webp"

	"squish/pkg/imgutil"
)

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	// Quality is 1-100 for lossy formats. Ignored when Lossless is set.
	Quality int

	// Lossless selects the encoder's lossless-optimize mode. Always
	// implied for PNG.
	Lossless bool

	// Meta holds metadata blocks to reattach to the encoded output.
	Meta Metadata
}

// Codec is the pixel-level capability the engine delegates to. All
// methods are pure and safe for concurrent use.
type Codec interface {
	Decode(data []byte, kind imgutil.Kind) (image.Image, error)
	Extract(data []byte, kind imgutil.Kind) (Metadata, error)
	Resize(img image.Image, width, height int) image.Image
	Encode(img image.Image, kind imgutil.Kind, opts EncodeOptions) ([]byte, error)
}

// Std returns the built-in codec backed by the standard image encoders,
// x/image scaling and webp decoding, and libwebp encoding.
func Std() Codec {
	return stdCodec{}
}

type stdCodec struct{}

func (stdCodec) Decode(data []byte, kind imgutil.Kind) (image.Image, error) {
	r := bytes.NewReader(data)
	switch kind {
	case imgutil.KindJPEG:
		return jpeg.Decode(r)
	case imgutil.KindPNG:
		return png.Decode(r)
	case imgutil.KindWebP:
		return xwebp.Decode(r)
	default:
		return nil, fmt.Errorf("unsupported image kind %q", kind)
	}
}

func (stdCodec) Extract(data []byte, kind imgutil.Kind) (Metadata, error) {
	return extractMetadata(data, kind)
}

func (stdCodec) Resize(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func (stdCodec) Encode(img image.Image, kind imgutil.Kind, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer

	switch kind {
	case imgutil.KindJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
			return nil, err
		}
		return spliceJPEGMetadata(buf.Bytes(), opts.Meta)

	case imgutil.KindPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
		return splicePNGChunks(buf.Bytes(), opts.Meta.PNGChunks)

	case imgutil.KindWebP:
		wopts := chaiwebp.Options{Quality: float32(opts.Quality), Lossless: opts.Lossless}
		if err := chaiwebp.Encode(&buf, img, &wopts); err != nil {
			return nil, err
		}
		b := img.Bounds()
		return spliceWebPMetadata(buf.Bytes(), opts.Meta, b.Dx(), b.Dy())

	default:
		return nil, fmt.Errorf("unsupported image kind %q", kind)
	}
}
