package streamdeck

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/pkg/errors"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const keySize = 72

const lockClosedSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24">
<path fill="currentColor" d="M12 1a5 5 0 0 0-5 5v4H6a2 2 0 0 0-2 2v9a2 2 0 0 0 2 2h12a2 2 0 0 0 2-2v-9a2 2 0 0 0-2-2h-1V6a5 5 0 0 0-5-5zm-3 5a3 3 0 0 1 6 0v4H9V6z"/>
</svg>`

const lockOpenSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24">
<path fill="currentColor" d="M17 1a5 5 0 0 0-5 5v4H6a2 2 0 0 0-2 2v9a2 2 0 0 0 2 2h12a2 2 0 0 0 2-2v-9a2 2 0 0 0-2-2h-4V6a3 3 0 0 1 6 0v2h2V6a5 5 0 0 0-5-5z"/>
</svg>`

var (
	colorKeyBg   = color.RGBA{40, 40, 40, 255}
	colorSecure  = color.RGBA{76, 175, 80, 255}
	colorOpen    = color.RGBA{120, 120, 120, 255}
	colorPending = color.RGBA{255, 191, 0, 255}
	colorWhite   = color.RGBA{255, 255, 255, 255}
)

// KeyRenderer draws the toggle key face
type KeyRenderer struct {
	labelFace font.Face
}

func NewKeyRenderer() (*KeyRenderer, error) {
	tt, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse label font")
	}

	face, err := opentype.NewFace(tt, &opentype.FaceOptions{
		Size:    11,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create label face")
	}

	return &KeyRenderer{labelFace: face}, nil
}

// Render draws a closed green lock when secure and an open grey one otherwise.
// pending tints the icon while a gesture cycle is in progress.
func (r *KeyRenderer) Render(secure, pending bool) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, keySize, keySize))
	draw.Draw(img, img.Bounds(), &image.Uniform{colorKeyBg}, image.Point{}, draw.Src)

	icon, iconColor, label := lockOpenSVG, color.Color(colorOpen), "Open"
	if secure {
		icon, iconColor, label = lockClosedSVG, colorSecure, "Secure"
	}
	if pending {
		iconColor = colorPending
	}

	iconImg := renderSVGIcon(icon, 40, iconColor)
	iconX := (keySize - 40) / 2
	iconY := 8
	draw.Draw(img, image.Rect(iconX, iconY, iconX+40, iconY+40), iconImg, image.Point{}, draw.Over)

	r.drawTextCentered(img, label, keySize/2, 62, colorWhite)
	return img
}

// renderSVGIcon renders an SVG with currentColor replaced by iconColor
func renderSVGIcon(svgContent string, size int, iconColor color.Color) image.Image {
	cr, cg, cb, _ := iconColor.RGBA()
	hex := fmt.Sprintf("#%02x%02x%02x", cr>>8, cg>>8, cb>>8)
	svgContent = strings.ReplaceAll(svgContent, "currentColor", hex)

	img := image.NewRGBA(image.Rect(0, 0, size, size))

	icon, err := oksvg.ReadIconStream(strings.NewReader(svgContent))
	if err != nil {
		return img
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	return img
}

func (r *KeyRenderer) drawTextCentered(img *image.RGBA, text string, centerX, y int, col color.Color) {
	width := font.MeasureString(r.labelFace, text).Ceil()
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: r.labelFace,
		Dot:  fixed.Point26_6{X: fixed.I(centerX - width/2), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
