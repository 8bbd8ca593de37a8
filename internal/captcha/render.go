// Package captcha shows captcha images to the operator, in the terminal and as a file.
package captcha

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dictsync/internal/apperr"
	"dictsync/internal/components/telemetry"

	"github.com/muesli/termenv"
)

const report_renderer_render = "renderer.render"

// DefaultWidth is the widest a captcha is drawn, in terminal columns.
const DefaultWidth = 80

type Options struct {
	// Path is where the raw image is written on every render, empty skips the file.
	Path string
	// Out receives the drawing.
	Out io.Writer
	// Profile defaults to what the environment of Out supports.
	Profile *termenv.Profile
	Width   int
}

// Renderer draws images with half block characters, each character cell holds two pixels.
// Terminals without color support get a grayscale ramp instead.
type Renderer struct {
	tel     telemetry.API
	path    string
	out     io.Writer
	profile termenv.Profile
	width   int
}

func NewRenderer(opts Options, tel telemetry.API) *Renderer {
	profile := termenv.NewOutput(opts.Out).EnvColorProfile()
	if opts.Profile != nil {
		profile = *opts.Profile
	}
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	return &Renderer{
		tel:     telemetry.NewScopedAPI("captcha", tel),
		path:    opts.Path,
		out:     opts.Out,
		profile: profile,
		width:   width,
	}
}

// Render saves data to the configured path and draws it.
func (r *Renderer) Render(data []byte) error {
	if r.path != "" {
		err := os.MkdirAll(filepath.Dir(r.path), 0700)
		if err == nil {
			err = os.WriteFile(r.path, data, 0600)
		}
		if err != nil {
			r.tel.ReportWarning(report_renderer_render, fmt.Errorf("write captcha file: %w", err), r.path)
		}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return apperr.Newf(apperr.KindEncoding, "render captcha", "decode image: %w", err)
	}
	r.tel.ReportDebug("rendering captcha", format, img.Bounds().String())

	_, err = io.WriteString(r.out, r.draw(img))
	if err != nil {
		return err
	}
	if r.path != "" {
		fmt.Fprintf(r.out, "captcha saved to %s\n", r.path)
	}
	return nil
}

func (r *Renderer) draw(img image.Image) string {
	bounds := img.Bounds()
	cols := bounds.Dx()
	rows := bounds.Dy()
	if cols > r.width {
		rows = rows * r.width / cols
		cols = r.width
	}
	if rows < 1 {
		rows = 1
	}

	sample := func(x, y int) color.Color {
		sx := bounds.Min.X + x*bounds.Dx()/cols
		sy := bounds.Min.Y + y*bounds.Dy()/rows
		return flatten(img.At(sx, sy))
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		for x := 0; x < cols; x++ {
			top := sample(x, y)
			bottom := color.Color(color.White)
			if y+1 < rows {
				bottom = sample(x, y+1)
			}
			sb.WriteString(r.cell(top, bottom))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (r *Renderer) cell(top, bottom color.Color) string {
	if r.profile == termenv.Ascii {
		return grayscale(top, bottom)
	}
	return r.profile.String("▀").
		Foreground(r.profile.FromColor(top)).
		Background(r.profile.FromColor(bottom)).
		String()
}

var ramp = []string{"█", "▓", "▒", "░", " "}

// grayscale picks a shade from the average luminance of both pixels, dark pixels get the
// densest block.
func grayscale(top, bottom color.Color) string {
	lum := (luminance(top) + luminance(bottom)) / 2
	idx := int(lum * float64(len(ramp)) / 256)
	if idx >= len(ramp) {
		idx = len(ramp) - 1
	}
	return ramp[idx]
}

func luminance(c color.Color) float64 {
	g := color.GrayModel.Convert(c).(color.Gray)
	return float64(g.Y)
}

// flatten composites c over white.
func flatten(c color.Color) color.Color {
	r, g, b, a := c.RGBA()
	if a == 0xffff {
		return c
	}
	blend := func(v uint32) uint8 {
		return uint8((v + (0xffff - a)) >> 8)
	}
	return color.RGBA{R: blend(r), G: blend(g), B: blend(b), A: 0xff}
}
