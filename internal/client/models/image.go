// Package models defines the client-side data model of artforge: images,
// generation requests and their lifecycle status, history entries and
// subscription tiers.
package models

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned for empty or undecodable image bytes.
var ErrInvalidImage = errors.New("invalid image")

// Image is an encoded image together with the metadata read from its header.
// Data is kept in its original encoding so it can be persisted byte-for-byte.
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// DecodeImage validates data by decoding its header and returns an Image
// holding the original bytes.
func DecodeImage(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrInvalidImage
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrInvalidImage
	}
	return &Image{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Ext returns the file extension (without dot) conventionally used for the format.
func (i *Image) Ext() string {
	switch i.Format {
	case "jpeg":
		return "jpg"
	case "":
		return "bin"
	default:
		return i.Format
	}
}

// ContentType returns the MIME type of the image encoding.
func (i *Image) ContentType() string {
	switch i.Format {
	case "png", "jpeg", "gif", "webp":
		return "image/" + i.Format
	default:
		return "application/octet-stream"
	}
}

// Clone returns a copy that does not share the Data backing array.
func (i *Image) Clone() *Image {
	if i == nil {
		return nil
	}
	c := *i
	c.Data = bytes.Clone(i.Data)
	return &c
}
