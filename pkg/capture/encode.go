package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/aretw0/narrate/pkg/domain"
	"golang.org/x/image/draw"
)

// Quality loop bounds for JPEG encoding.
const (
	StartQuality = 80
	QualityStep  = 10
	FloorQuality = 30
)

// Encode decodes a rendered capture, scales it down to maxWidth and JPEG-encodes it,
// lowering quality until the result fits in budget bytes. At the floor quality it
// stops trying and returns what it has.
func Encode(raw []byte, maxWidth, budget int) (domain.Image, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return domain.Image{}, fmt.Errorf("decode capture: %w", err)
	}
	img := downscale(src, maxWidth)

	var buf bytes.Buffer
	q := StartQuality
	for {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return domain.Image{}, fmt.Errorf("encode capture: %w", err)
		}
		if budget <= 0 || buf.Len() <= budget || q-QualityStep < FloorQuality {
			break
		}
		q -= QualityStep
	}

	b := img.Bounds()
	return domain.Image{
		DataURI: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Size:    buf.Len(),
		Width:   b.Dx(),
		Height:  b.Dy(),
		Quality: q,
	}, nil
}

func downscale(src image.Image, maxWidth int) image.Image {
	b := src.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return src
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
