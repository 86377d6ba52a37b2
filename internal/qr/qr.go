// Package qr renders protocol URIs as QR code PNGs.
package qr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// DefaultSize is the edge length in pixels of generated QR codes.
const DefaultSize = 256

// EncodePNG renders content as a QR code PNG of size x size pixels.
func EncodePNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}

	writer := qrcode.NewQRCodeWriter()
	matrix, err := writer.Encode(content, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, fmt.Errorf("encoding QR matrix: %w", err)
	}

	width := matrix.GetWidth()
	height := matrix.GetHeight()
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if matrix.Get(x, y) {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
