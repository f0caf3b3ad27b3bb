package render

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
	"time"

	"libertax/internal/domain"
)

func sampleItem(tone domain.Tone, text string) domain.FeedItem {
	return domain.NewFeedItem(domain.StoredResponse{
		ID:                "r1",
		Username:          "EstatistaPromedio",
		GeneratedContent:  text,
		Tone:              tone,
		Persona:           domain.PersonaAncap,
		CollectivismScore: 87,
		Fallacies:         []domain.Fallacy{{Name: "Hombre de paja"}},
		CreatedAt:         time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	})
}

func TestRender_AggressiveCardHasRedBar(t *testing.T) {
	r, err := NewCardRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	data, err := r.Render(sampleItem(domain.ToneAggressive, "La inflación es un impuesto."), ThemeDark)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != CardWidth {
		t.Fatalf("expected width %d, got %d", CardWidth, img.Bounds().Dx())
	}

	red, green, blue, _ := img.At(4, 6).RGBA()
	if red>>8 < 200 || green>>8 > 100 || blue>>8 > 110 {
		t.Fatalf("expected red tone bar, got rgb(%d,%d,%d)", red>>8, green>>8, blue>>8)
	}

	// fondo oscuro debajo de la barra
	r2, g2, b2, _ := img.At(4, 40).RGBA()
	if r2>>8 > 0x20 || g2>>8 > 0x20 || b2>>8 > 0x30 {
		t.Fatalf("expected dark background, got rgb(%d,%d,%d)", r2>>8, g2>>8, b2>>8)
	}
}

func TestRender_LightThemeAndLongText(t *testing.T) {
	r, err := NewCardRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	short, err := r.Render(sampleItem(domain.ToneAcademic, "Corto."), ThemeLight)
	if err != nil {
		t.Fatalf("render short: %v", err)
	}
	long, err := r.Render(sampleItem(domain.ToneAcademic, strings.Repeat("El control de precios genera escasez. ", 40)), ThemeLight)
	if err != nil {
		t.Fatalf("render long: %v", err)
	}

	shortImg, _ := png.Decode(bytes.NewReader(short))
	longImg, _ := png.Decode(bytes.NewReader(long))
	if longImg.Bounds().Dy() <= shortImg.Bounds().Dy() {
		t.Fatalf("expected card to grow with wrapped text")
	}

	rr, gg, bb, _ := shortImg.At(4, 40).RGBA()
	if rr>>8 < 0xf0 || gg>>8 < 0xf0 || bb>>8 < 0xf0 {
		t.Fatalf("expected light background, got rgb(%d,%d,%d)", rr>>8, gg>>8, bb>>8)
	}
}

func TestParseThemeAndFileName(t *testing.T) {
	if ParseTheme("LIGHT") != ThemeLight || ParseTheme("") != ThemeDark || ParseTheme("neon") != ThemeDark {
		t.Fatalf("unexpected theme parsing")
	}
	if got := FileName("abc"); got != "LibertaX-Tactical-abc.png" {
		t.Fatalf("unexpected file name %q", got)
	}
}

func TestParseHex(t *testing.T) {
	c, err := parseHex("#ef4444")
	if err != nil || c.R != 0xef || c.G != 0x44 || c.B != 0x44 || c.A != 0xff {
		t.Fatalf("unexpected color %+v %v", c, err)
	}
	if _, err := parseHex("zzz"); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
}
