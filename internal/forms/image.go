package forms

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrNotImage = errors.New("not an image")

// Image describes an upload that was sniffed and decoded as an image.
type Image struct {
	ContentType string
	Ext         string
	Format      string
	Width       int
	Height      int
}

// DetectImage identifies data by its content alone and makes sure the
// header decodes.
func DetectImage(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrNotImage
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String())
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	contentType, _, _ := strings.Cut(mtype.String(), ";")
	return &Image{
		ContentType: contentType,
		Ext:         mtype.Extension(),
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}
