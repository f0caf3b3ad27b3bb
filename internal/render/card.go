package render

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image/color"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"libertax/internal/domain"
)

// Theme es la paleta con que se exporta la tarjeta.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme acepta "dark" o "light"; cualquier otro valor usa el oscuro.
func ParseTheme(s string) Theme {
	if strings.EqualFold(strings.TrimSpace(s), string(ThemeLight)) {
		return ThemeLight
	}
	return ThemeDark
}

type palette struct {
	background color.Color
	text       color.Color
	muted      color.Color
	track      color.Color
}

var palettes = map[Theme]palette{
	ThemeDark: {
		background: mustHex("#0b1120"),
		text:       mustHex("#f1f5f9"),
		muted:      mustHex("#94a3b8"),
		track:      mustHex("#1e293b"),
	},
	ThemeLight: {
		background: mustHex("#f8fafc"),
		text:       mustHex("#0f172a"),
		muted:      mustHex("#64748b"),
		track:      mustHex("#e2e8f0"),
	},
}

const (
	CardWidth = 1080

	padding     = 64.0
	barHeight   = 18.0
	lineSpacing = 1.45
	footerText  = "LibertaX · Respuesta táctica"
)

// CardRenderer rasteriza una respuesta del feed a PNG.
type CardRenderer struct {
	regular *truetype.Font
	bold    *truetype.Font
}

func NewCardRenderer() (*CardRenderer, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &CardRenderer{regular: regular, bold: bold}, nil
}

// FileName es el nombre con que se descarga la tarjeta exportada.
func FileName(id string) string {
	return fmt.Sprintf("LibertaX-Tactical-%s.png", id)
}

// Render dibuja la tarjeta. Las caras tipograficas se crean por llamada
// porque truetype.Face no es segura entre goroutines.
func (r *CardRenderer) Render(item domain.FeedItem, theme Theme) ([]byte, error) {
	pal, ok := palettes[theme]
	if !ok {
		pal = palettes[ThemeDark]
	}

	handleFace := r.face(r.bold, 40)
	labelFace := r.face(r.regular, 24)
	bodyFace := r.face(r.regular, 34)
	meterFace := r.face(r.bold, 24)
	defer func() {
		for _, f := range []font.Face{handleFace, labelFace, bodyFace, meterFace} {
			f.Close()
		}
	}()

	textWidth := CardWidth - 2*padding

	measure := gg.NewContext(1, 1)
	measure.SetFontFace(bodyFace)
	lines := measure.WordWrap(strings.TrimSpace(item.GeneratedContent), textWidth)
	bodyLineHeight := measure.FontHeight() * lineSpacing

	fallacyLines := make([]string, 0, len(item.Fallacies))
	for _, f := range item.Fallacies {
		fallacyLines = append(fallacyLines, "• "+f.Name)
	}

	height := padding + barHeight + 40 + // barra y respiro
		48 + 36 + // handle y etiquetas
		60 + // colectivometro
		float64(len(lines))*bodyLineHeight + 32 +
		float64(len(fallacyLines))*34 +
		80 // pie

	dc := gg.NewContext(CardWidth, int(height))
	dc.SetColor(pal.background)
	dc.Clear()

	style := domain.StyleFor(item.Tone)
	grad := gg.NewLinearGradient(0, 0, CardWidth, 0)
	grad.AddColorStop(0, mustHex(style.GradientFrom))
	grad.AddColorStop(1, mustHex(style.GradientTo))
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, CardWidth, barHeight)
	dc.Fill()

	y := barHeight + padding

	dc.SetFontFace(handleFace)
	dc.SetColor(pal.text)
	dc.DrawStringAnchored("@"+item.Username, padding, y, 0, 0.5)
	y += 48

	dc.SetFontFace(labelFace)
	dc.SetColor(mustHex(style.Accent))
	dc.DrawStringAnchored(strings.ToUpper(item.ToneLabel), padding, y, 0, 0.5)
	dc.SetColor(pal.muted)
	dc.DrawStringAnchored(item.PersonaLabel, CardWidth-padding, y, 1, 0.5)
	y += 36

	r.drawMeter(dc, meterFace, pal, item.Meter, y, textWidth)
	y += 60

	dc.SetFontFace(bodyFace)
	dc.SetColor(pal.text)
	for _, line := range lines {
		y += bodyLineHeight
		dc.DrawString(line, padding, y)
	}
	y += 32

	if len(fallacyLines) > 0 {
		dc.SetFontFace(labelFace)
		dc.SetColor(pal.muted)
		for _, line := range fallacyLines {
			y += 34
			dc.DrawString(line, padding, y)
		}
	}

	dc.SetColor(pal.track)
	dc.DrawLine(padding, height-64, CardWidth-padding, height-64)
	dc.SetLineWidth(1)
	dc.Stroke()

	dc.SetFontFace(labelFace)
	dc.SetColor(pal.muted)
	dc.DrawStringAnchored(footerText, padding, height-32, 0, 0.5)
	if !item.CreatedAt.IsZero() {
		dc.DrawStringAnchored(item.CreatedAt.Format("02/01/2006"), CardWidth-padding, height-32, 1, 0.5)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *CardRenderer) drawMeter(dc *gg.Context, face font.Face, pal palette, m domain.Meter, y, width float64) {
	dc.SetFontFace(face)
	dc.SetColor(pal.muted)
	dc.DrawStringAnchored("COLECTIVÓMETRO", padding, y, 0, 0.5)
	dc.SetColor(mustHex(m.Color))
	dc.DrawStringAnchored(fmt.Sprintf("%d%%", m.Percent), CardWidth-padding, y, 1, 0.5)

	trackY := y + 22
	dc.SetColor(pal.track)
	dc.DrawRoundedRectangle(padding, trackY, width, 10, 5)
	dc.Fill()

	if m.Percent > 0 {
		dc.SetColor(mustHex(m.Color))
		dc.DrawRoundedRectangle(padding, trackY, width*float64(m.Percent)/100, 10, 5)
		dc.Fill()
	}
}

func (r *CardRenderer) face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

func parseHex(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("expected 6 hex chars, got %q", s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: 0xff}, nil
}

func mustHex(s string) color.NRGBA {
	c, err := parseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}
