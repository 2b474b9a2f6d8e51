// Package imageio loads and saves raster images as OpenCV matrices.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/tiff"
)

// ErrUnsupportedFormat is returned for file extensions neither OpenCV nor
// the Go decoders handle.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Mode selects how Load decodes the file.
type Mode int

const (
	// Color loads 3-channel 8-bit BGR.
	Color Mode = iota
	// Gray loads single-channel 8-bit.
	Gray
	// Unchanged keeps channel count and bit depth, e.g. 16-bit TIFF.
	Unchanged
)

func (m Mode) flags() gocv.IMReadFlag {
	switch m {
	case Gray:
		return gocv.IMReadGrayScale
	case Unchanged:
		return gocv.IMReadUnchanged
	}
	return gocv.IMReadColor
}

// Load reads an image file. OpenCV is tried first; if it cannot decode the
// file the Go decoders (PNG, JPEG, TIFF) are used as a fallback.
func Load(path string, mode Mode) (gocv.Mat, error) {
	if !IsSupportedFormat(path) {
		return gocv.Mat{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if _, err := os.Stat(path); err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to open image: %w", err)
	}

	mat := gocv.IMRead(path, mode.flags())
	if !mat.Empty() {
		return mat, nil
	}
	mat.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to open image: %w", err)
	}
	return decodeGo(data, mode)
}

// Decode decodes an in-memory image, e.g. an upload.
func Decode(data []byte, mode Mode) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, mode.flags())
	if err == nil && !mat.Empty() {
		return mat, nil
	}
	mat.Close()
	return decodeGo(data, mode)
}

func decodeGo(data []byte, mode Mode) (gocv.Mat, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to decode image: %w", err)
	}
	mat, err := ImageToMat(img)
	if err != nil {
		return gocv.Mat{}, err
	}
	if mode != Gray {
		return mat, nil
	}
	gray := gocv.NewMat()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)
	mat.Close()
	return gray, nil
}

// Save writes mat to path; the format follows the extension.
func Save(path string, mat gocv.Mat) error {
	if mat.Empty() {
		return fmt.Errorf("refusing to write empty image to %s", path)
	}
	if !IsSupportedFormat(path) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if !gocv.IMWrite(path, mat) {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}

// Encode returns mat encoded as PNG.
func Encode(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes()), nil
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg", ".bmp"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
