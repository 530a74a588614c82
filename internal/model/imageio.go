package model

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// ImageNet channel statistics used by the torchvision DenseNet family.
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// resolveImagePath maps an image reference onto a file below root.
// Absolute references and ones that climb out of root are rejected,
// also when root is empty.
func resolveImagePath(root, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty image reference", ErrInputUnavailable)
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: image reference %q escapes image root", ErrInputUnavailable, ref)
	}
	if root == "" {
		return clean, nil
	}
	return filepath.Join(root, clean), nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrInputUnavailable, filepath.Base(path))
		}
		return nil, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInputUnavailable, filepath.Base(path), err)
	}
	return img, nil
}

// preprocess resizes img to size x size and returns a normalized CHW
// float tensor. Grayscale radiographs are replicated across channels by
// the RGBA conversion.
func preprocess(img image.Image, size int) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := dst.PixOffset(x, y)
			p := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[i+c]) / 255
				out[c*plane+p] = (v - imagenetMean[c]) / imagenetStd[c]
			}
		}
	}
	return out
}
