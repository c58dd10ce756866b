// Package media renders ghost thumbnails for display.
package media

import (
	"bytes"
	"errors"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// ErrUnsupported is returned for thumbnail files no decoder here can read.
var ErrUnsupported = errors.New("unsupported thumbnail format")

// Thumbnail renders the image at path as a PNG resized to fit within
// width x height while preserving the aspect ratio. Images are never
// upscaled; a non-positive bound leaves that dimension unconstrained.
//
// Unless selfAlpha is set, every pixel with the same colour as the top-left
// pixel is made transparent, which is how shells without their own alpha
// channel mark the background.
func Thumbnail(path string, width, height int, selfAlpha bool) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := decodeImage(ext, f)
	if err != nil {
		return nil, err
	}

	img := toNRGBA(src)
	if !selfAlpha {
		applyKeyColor(img)
	}
	thumb := resizeFit(img, width, height)

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeImage decodes an image from r using the decoder appropriate for ext.
// APNG files decode to their default frame.
func decodeImage(ext string, r io.Reader) (image.Image, error) {
	switch ext {
	case ".png", ".apng":
		return png.Decode(r)
	case ".jpg", ".jpeg":
		return jpeg.Decode(r)
	case ".gif":
		return gif.Decode(r)
	case ".webp":
		return webp.Decode(r)
	default:
		return nil, ErrUnsupported
	}
}

func toNRGBA(src image.Image) *image.NRGBA {
	if img, ok := src.(*image.NRGBA); ok && img.Bounds().Min == (image.Point{}) {
		return img
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// applyKeyColor clears the alpha of every pixel whose RGB matches the
// top-left pixel.
func applyKeyColor(img *image.NRGBA) {
	if img.Bounds().Empty() {
		return
	}
	key := img.NRGBAAt(0, 0)
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		if pix[i] == key.R && pix[i+1] == key.G && pix[i+2] == key.B {
			pix[i+3] = 0
		}
	}
}

// resizeFit scales src to fit within the dstW x dstH bounding box,
// preserving the aspect ratio, using BiLinear interpolation.
func resizeFit(src *image.NRGBA, dstW, dstH int) image.Image {
	srcBounds := src.Bounds()
	srcW := srcBounds.Dx()
	srcH := srcBounds.Dy()

	if srcW == 0 || srcH == 0 {
		return src
	}

	scale := 1.0
	if dstW > 0 {
		scale = min(scale, float64(dstW)/float64(srcW))
	}
	if dstH > 0 {
		scale = min(scale, float64(dstH)/float64(srcH))
	}

	// No upscaling. An image that already fits is returned as is.
	if scale >= 1.0 {
		return src
	}

	newW := max(int(float64(srcW)*scale), 1)
	newH := max(int(float64(srcH)*scale), 1)

	dst := image.NewNRGBA(image.Rect(0, 0, newW, newH))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, srcBounds, draw.Src, nil)
	return dst
}
