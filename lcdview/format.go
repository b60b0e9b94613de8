// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdview

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"sync"
)

// Format is the encoding of the frames sent by a Stream. The zero value is
// PNG, which keeps the glyph edges sharp.
type Format uint8

const (
	FormatPNG Format = iota
	FormatJPEG
)

// formats is indexed by Format. The first name is the canonical one.
var formats = [...]struct {
	names       []string
	contentType string
	encode      func(io.Writer, image.Image) error
}{
	FormatPNG:  {[]string{"png"}, "image/png", pngEncoder.Encode},
	FormatJPEG: {[]string{"jpeg", "jpg"}, "image/jpeg", encodeJPEG},
}

func (f Format) valid() bool {
	return int(f) < len(formats)
}

// String returns the name used in the "format" URL parameter.
func (f Format) String() string {
	if !f.valid() {
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
	return formats[f].names[0]
}

// contentType is the MIME type of a frame part.
func (f Format) contentType() string {
	if !f.valid() {
		return "application/octet-stream"
	}
	return formats[f].contentType
}

// ParseFormat returns the Format named s, ignoring case.
func ParseFormat(s string) (Format, error) {
	for f, d := range formats {
		for _, name := range d.names {
			if strings.EqualFold(s, name) {
				return Format(f), nil
			}
		}
	}
	return FormatPNG, fmt.Errorf("lcdview: unknown frame format %q", s)
}

func (f Format) encode(w io.Writer, img image.Image) error {
	if !f.valid() {
		return fmt.Errorf("lcdview: cannot encode %s", f)
	}
	return formats[f].encode(w, img)
}

// pngBuffers shares the deflate state of every PNG encoder.
type pngBuffers sync.Pool

func (p *pngBuffers) Get() *png.EncoderBuffer {
	buf, _ := (*sync.Pool)(p).Get().(*png.EncoderBuffer)
	return buf
}

func (p *pngBuffers) Put(buf *png.EncoderBuffer) {
	(*sync.Pool)(p).Put(buf)
}

// The panel is a handful of flat colors; speed matters more than size.
var pngEncoder = &png.Encoder{
	CompressionLevel: png.BestSpeed,
	BufferPool:       &pngBuffers{},
}

func encodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
}
