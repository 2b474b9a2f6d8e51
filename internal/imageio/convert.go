package imageio

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"gocv.io/x/gocv"
)

// forStripes runs fn over horizontal stripes of height rows in parallel.
func forStripes(height int, fn func(yStart, yEnd int)) {
	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := min(startY+rowsPerWorker, height)
		if startY >= height {
			break
		}
		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			fn(yStart, yEnd)
		}(startY, endY)
	}
	wg.Wait()
}

// ImageToMat converts a Go image to a Mat. Gray and Gray16 images become
// single-channel CV_8U and CV_16U, everything else 8-bit BGR.
func ImageToMat(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return gocv.Mat{}, fmt.Errorf("image has no pixels")
	}

	switch src := img.(type) {
	case *image.Gray:
		mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)
		data, err := mat.DataPtrUint8()
		if err != nil {
			mat.Close()
			return gocv.Mat{}, err
		}
		forStripes(height, func(yStart, yEnd int) {
			for y := yStart; y < yEnd; y++ {
				copy(data[y*width:(y+1)*width], src.Pix[y*src.Stride:y*src.Stride+width])
			}
		})
		return mat, nil

	case *image.Gray16:
		mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV16UC1)
		data, err := mat.DataPtrUint16()
		if err != nil {
			mat.Close()
			return gocv.Mat{}, err
		}
		forStripes(height, func(yStart, yEnd int) {
			for y := yStart; y < yEnd; y++ {
				row := src.Pix[y*src.Stride:]
				for x := 0; x < width; x++ {
					// Gray16 stores big-endian samples
					data[y*width+x] = uint16(row[2*x])<<8 | uint16(row[2*x+1])
				}
			}
		})
		return mat, nil
	}

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	data, err := mat.DataPtrUint8()
	if err != nil {
		mat.Close()
		return gocv.Mat{}, err
	}
	forStripes(height, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			for x := 0; x < width; x++ {
				r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
				// OpenCV uses BGR format
				off := (y*width + x) * 3
				data[off+0] = uint8(b >> 8)
				data[off+1] = uint8(g >> 8)
				data[off+2] = uint8(r >> 8)
			}
		}
	})
	return mat, nil
}

// MatToImage converts a Mat to a Go image. Single-channel 8-bit Mats become
// *image.Gray, BGR and BGRA Mats *image.RGBA. Other depths are stretched to
// 8 bits first.
func MatToImage(mat gocv.Mat) (image.Image, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("image has no pixels")
	}
	src := mat
	if mat.Type()&7 != gocv.MatTypeCV8U {
		stretched := gocv.NewMat()
		defer stretched.Close()
		gocv.Normalize(mat, &stretched, 0, 255, gocv.NormMinMax)
		src = gocv.NewMat()
		defer src.Close()
		stretched.ConvertTo(&src, gocv.MatTypeCV8U)
	}

	h, w, ch := src.Rows(), src.Cols(), src.Channels()
	if ch != 1 && ch != 3 && ch != 4 {
		return nil, fmt.Errorf("cannot convert %d-channel image", ch)
	}

	// ToBytes copies, so non-continuous ROIs are fine too
	data := src.ToBytes()
	if ch == 1 {
		img := image.NewGray(image.Rect(0, 0, w, h))
		forStripes(h, func(yStart, yEnd int) {
			for y := yStart; y < yEnd; y++ {
				copy(img.Pix[y*img.Stride:y*img.Stride+w], data[y*w:(y+1)*w])
			}
		})
		return img, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	stride := img.Stride
	forStripes(h, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			rowOffset := y * stride
			for x := 0; x < w; x++ {
				in := (y*w + x) * ch
				pixOffset := rowOffset + x*4
				img.Pix[pixOffset+0] = data[in+2] // R
				img.Pix[pixOffset+1] = data[in+1] // G
				img.Pix[pixOffset+2] = data[in+0] // B
				img.Pix[pixOffset+3] = 255
				if ch == 4 {
					img.Pix[pixOffset+3] = data[in+3]
				}
			}
		}
	})
	return img, nil
}
