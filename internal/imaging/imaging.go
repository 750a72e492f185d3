// Package imaging normalises user-supplied pictures before they are stored
// in a wardrobe item or attached to a generation request.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// MaxDimension is the largest width or height sent upstream.
const MaxDimension = 1024

// JPEGQuality is the re-encode quality.
const JPEGQuality = 85

// MaxUploadBytes caps raw uploads.
const MaxUploadBytes = 10 << 20

// MaxPixels caps decoded width*height; compressed size says little about it.
const MaxPixels = 40_000_000

// ErrTooManyPixels is returned before decoding an oversized picture.
var ErrTooManyPixels = errors.New("image dimensions too large")

// AllowedMIME lists accepted input types, sniffed from content.
var AllowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Image is an encoded picture and its MIME type.
type Image struct {
	Data []byte
	MIME string
}

// DataURL renders the image as a data: URL.
func (i Image) DataURL() string {
	return ToDataURL(i.Data, i.MIME)
}

// Process sniffs, decodes, downscales and re-encodes an upload as JPEG.
func Process(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", MaxUploadBytes)
	}
	return ProcessBytes(data)
}

// ProcessBytes is Process for data already in memory.
func ProcessBytes(data []byte) (*Image, error) {
	detected := http.DetectContentType(data)
	if !AllowedMIME[detected] {
		return nil, fmt.Errorf("unsupported image format: %s", detected)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	img = downscale(img, MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	return &Image{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

// downscale keeps the aspect ratio and never upscales.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// ToDataURL encodes data as data:<mime>;base64,<payload>.
func ToDataURL(data []byte, mime string) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// IsDataURL reports whether s carries inline image bytes.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// ParseDataURL splits a base64 data URL into bytes and MIME type.
func ParseDataURL(s string) (*Image, error) {
	if !IsDataURL(s) {
		return nil, fmt.Errorf("not a data URL")
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("data URL has no payload")
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, fmt.Errorf("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding data URL: %w", err)
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return &Image{Data: data, MIME: mime}, nil
}

// Decode accepts either a data URL or bare base64 and returns a processed image.
func Decode(s string) (*Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty image")
	}
	if IsDataURL(s) {
		img, err := ParseDataURL(s)
		if err != nil {
			return nil, err
		}
		return ProcessBytes(img.Data)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 image: %w", err)
	}
	return ProcessBytes(data)
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
	image.RegisterFormat("webp", "RIFF????WEBPVP8", webp.Decode, webp.DecodeConfig)
}
