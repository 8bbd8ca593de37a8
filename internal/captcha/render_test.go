package captcha

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dictsync/internal/apperr"
	"dictsync/internal/components/telemetry"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"
)

func halfBlackPng(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			if y < height/2 {
				c = color.RGBA{A: 0xff}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	err := png.Encode(&buf, img)
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRenderAscii(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captcha.png")
	out := &bytes.Buffer{}
	profile := termenv.Ascii
	renderer := NewRenderer(Options{Path: path, Out: out, Profile: &profile}, &telemetry.Recorder{})

	data := halfBlackPng(t, 4, 4)
	require.NoError(t, renderer.Render(data))

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, data, saved)

	lines := strings.Split(out.String(), "\n")
	require.Equal(t, "████", lines[0])
	require.Equal(t, "    ", lines[1])
	require.Equal(t, "captcha saved to "+path, lines[2])
}

func TestRenderColor(t *testing.T) {
	out := &bytes.Buffer{}
	profile := termenv.TrueColor
	renderer := NewRenderer(Options{Out: out, Profile: &profile, Width: 10}, &telemetry.Recorder{})

	require.NoError(t, renderer.Render(halfBlackPng(t, 40, 8)))

	drawing := out.String()
	require.Equal(t, 10, strings.Count(strings.Split(drawing, "\n")[0], "▀"))
	// 40x8 scaled to 10 columns leaves 2 pixel rows, one line of cells
	require.Equal(t, 1, strings.Count(drawing, "\n"))
	require.Contains(t, drawing, "\x1b[")
}

func TestRenderInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captcha.png")
	out := &bytes.Buffer{}
	renderer := NewRenderer(Options{Path: path, Out: out}, &telemetry.Recorder{})

	err := renderer.Render([]byte("<html>not an image</html>"))
	require.Error(t, err)
	require.Equal(t, apperr.KindEncoding, apperr.KindOf(err))

	// the raw response is still kept for inspection
	_, err = os.Stat(path)
	require.NoError(t, err)
}
