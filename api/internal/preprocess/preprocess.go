package preprocess

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"label-reader/api/internal/apperr"
)

// DefaultContrast is the contrast factor applied after grayscale conversion.
const DefaultContrast = 2.0

type Preprocessor struct {
	Contrast float64
}

func New(contrast float64) *Preprocessor {
	if contrast <= 0 {
		contrast = DefaultContrast
	}
	return &Preprocessor{Contrast: contrast}
}

// Preprocess decodes data, converts it to luma and stretches contrast around
// the mean level. The result keeps the source dimensions.
func (p *Preprocessor) Preprocess(data []byte) (*image.Gray, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Decode(err)
	}

	gray := imaging.Grayscale(src)
	mean := meanLevel(gray)
	factor := p.Contrast

	enhanced := imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		v := clip8(mean + factor*(float64(c.R)-mean))
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})

	return toGray(enhanced), nil
}

// EncodePNG serializes img for engines that want encoded bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// meanLevel is the average luma rounded to the nearest integer.
func meanLevel(img *image.NRGBA) float64 {
	n := len(img.Pix) / 4
	if n == 0 {
		return 0
	}
	var sum uint64
	for i := 0; i < len(img.Pix); i += 4 {
		sum += uint64(img.Pix[i])
	}
	return float64(int(float64(sum)/float64(n) + 0.5))
}

func clip8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}

func toGray(img *image.NRGBA) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return out
}
