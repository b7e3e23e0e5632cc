package upload

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// ShrinkOptions bound the output of Shrink.
type ShrinkOptions struct {
	MaxDim  int // longest edge after scaling
	Quality int // JPEG quality
}

// Shrink decodes a base64 image payload (with or without a data: URI
// prefix), scales it so neither edge exceeds MaxDim, and re-encodes it
// as JPEG. The result is raw JPEG bytes ready for upload.
func Shrink(payload string, opts ShrinkOptions) ([]byte, error) {
	raw, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}

	img, format, err := decodeImage(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s image: %w", format, err)
	}

	img = scaleDown(img, opts.MaxDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePayload(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		if idx := strings.Index(payload, ","); idx >= 0 {
			payload = payload[idx+1:]
		}
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 payload: %w", err)
	}
	return raw, nil
}

func decodeImage(raw []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err == nil {
		return img, format, nil
	}
	// image.Decode only knows registered formats; try webp explicitly.
	if wimg, werr := webp.Decode(bytes.NewReader(raw)); werr == nil {
		return wimg, "webp", nil
	}
	return nil, "unknown", err
}

func scaleDown(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
