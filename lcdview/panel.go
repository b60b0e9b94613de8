// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdview

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/GermanBionicSystems/lcd16x2/lcdsim"
)

// PanelOpts represents the options of a Panel. Zero values take defaults.
type PanelOpts struct {
	// Cell size in pixels. Defaults to 14x22.
	CellW, CellH int
	// Margin around the glass. Defaults to 12.
	Margin int
	// Face draws the characters. Defaults to Go Mono at 16 points, or
	// basicfont.Face7x13 when the TrueType font does not parse.
	Face font.Face

	Background, Cell, Ink color.Color
}

// Panel renders a snapshot of the display into an image. It is not safe for
// concurrent use: the TrueType face caches glyphs.
type Panel struct {
	rows, cols int
	opts       PanelOpts
}

// NewPanel returns a Panel for a display of the given geometry.
func NewPanel(rows, cols int, opts *PanelOpts) *Panel {
	o := *opts
	if o.CellW == 0 {
		o.CellW = 14
	}
	if o.CellH == 0 {
		o.CellH = 22
	}
	if o.Margin == 0 {
		o.Margin = 12
	}
	if o.Face == nil {
		o.Face = monoFace(16)
	}
	if o.Background == nil {
		o.Background = color.NRGBA{0x20, 0x60, 0x20, 255}
	}
	if o.Cell == nil {
		o.Cell = color.NRGBA{0x80, 0xc0, 0x40, 255}
	}
	if o.Ink == nil {
		o.Ink = color.NRGBA{0x10, 0x20, 0x10, 255}
	}
	return &Panel{rows: rows, cols: cols, opts: o}
}

func monoFace(points float64) font.Face {
	f, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(f, &truetype.Options{Size: points, DPI: 72, Hinting: font.HintingFull})
}

func (p *Panel) String() string {
	return "Panel"
}

// Bounds returns the size of the rendered images.
func (p *Panel) Bounds() image.Rectangle {
	o := &p.opts
	return image.Rect(0, 0, 2*o.Margin+p.cols*o.CellW, 2*o.Margin+p.rows*o.CellH)
}

// Render draws s. Rows and columns beyond the panel geometry are ignored.
func (p *Panel) Render(s lcdsim.Snapshot) *image.RGBA {
	o := &p.opts
	b := p.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.SetColor(o.Background)
	dc.Clear()
	dc.SetFontFace(o.Face)

	for row := 0; row < p.rows; row++ {
		var text string
		if row < len(s.Rows) {
			text = s.Rows[row]
		}
		for col := 0; col < p.cols; col++ {
			x := float64(o.Margin + col*o.CellW)
			y := float64(o.Margin + row*o.CellH)
			dc.DrawRectangle(x+1, y+1, float64(o.CellW-2), float64(o.CellH-2))
			dc.SetColor(o.Cell)
			dc.Fill()
			if !s.DisplayOn {
				continue
			}
			dc.SetColor(o.Ink)
			if col < len(text) {
				if c := printable(text[col]); c != ' ' {
					dc.DrawStringAnchored(string(rune(c)), x+float64(o.CellW)/2, y+float64(o.CellH)/2, 0.5, 0.35)
				}
			}
			if s.Cursor && s.Row == row && s.Col == col {
				dc.SetLineWidth(2)
				dc.DrawLine(x+2, y+float64(o.CellH)-3, x+float64(o.CellW)-2, y+float64(o.CellH)-3)
				dc.Stroke()
			}
		}
	}

	if img, ok := dc.Image().(*image.RGBA); ok {
		return img
	}
	img := image.NewRGBA(b)
	draw.Draw(img, b, dc.Image(), image.Point{}, draw.Src)
	return img
}
