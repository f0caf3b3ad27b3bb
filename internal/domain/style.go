package domain

import (
	"fmt"
	"math"
)

// ToneStyle agrupa el icono y los colores con que se pinta una tarjeta de cada tono.
type ToneStyle struct {
	Icon         string `json:"icon"`
	GradientFrom string `json:"gradient_from"`
	GradientTo   string `json:"gradient_to"`
	Accent       string `json:"accent"`
}

var toneStyles = map[Tone]ToneStyle{
	ToneSarcastic:  {Icon: "zap", GradientFrom: "#a855f7", GradientTo: "#6366f1", Accent: "#c084fc"},
	ToneAcademic:   {Icon: "library", GradientFrom: "#3b82f6", GradientTo: "#06b6d4", Accent: "#60a5fa"},
	ToneAggressive: {Icon: "swords", GradientFrom: "#ef4444", GradientTo: "#e11d48", Accent: "#f87171"},
	ToneDiplomatic: {Icon: "handshake", GradientFrom: "#10b981", GradientTo: "#0d9488", Accent: "#34d399"},
	ToneIronic:     {Icon: "ghost", GradientFrom: "#f59e0b", GradientTo: "#ea580c", Accent: "#fbbf24"},
}

// StyleFor devuelve el estilo del tono; los tonos desconocidos usan el sarcástico.
func StyleFor(t Tone) ToneStyle {
	if s, ok := toneStyles[t]; ok {
		return s
	}
	return toneStyles[ToneSarcastic]
}

// Meter es la representación del colectivómetro.
type Meter struct {
	Percent int    `json:"percent"`
	Color   string `json:"color"`
	Leaning string `json:"leaning"`
}

type rgb struct{ r, g, b float64 }

var (
	meterLow  = rgb{0x3b, 0x82, 0xf6}
	meterMid  = rgb{0xa8, 0x55, 0xf7}
	meterHigh = rgb{0xdc, 0x26, 0x26}
)

// CollectivismMeter interpola azul -> violeta -> rojo según el puntaje.
func CollectivismMeter(score int) Meter {
	score = ClampScore(score)

	var c rgb
	if score <= 50 {
		c = lerp(meterLow, meterMid, float64(score)/50)
	} else {
		c = lerp(meterMid, meterHigh, float64(score-50)/50)
	}

	leaning := "purple"
	switch {
	case score < 34:
		leaning = "blue"
	case score >= 67:
		leaning = "red"
	}

	return Meter{Percent: score, Color: c.hex(), Leaning: leaning}
}

func lerp(a, b rgb, t float64) rgb {
	return rgb{
		r: a.r + (b.r-a.r)*t,
		g: a.g + (b.g-a.g)*t,
		b: a.b + (b.b-a.b)*t,
	}
}

func (c rgb) hex() string {
	return fmt.Sprintf("#%02x%02x%02x", int(math.Round(c.r)), int(math.Round(c.g)), int(math.Round(c.b)))
}

// FeedItem es una respuesta decorada para el feed.
type FeedItem struct {
	StoredResponse
	ToneLabel    string    `json:"tone_label"`
	PersonaLabel string    `json:"persona_label"`
	Style        ToneStyle `json:"style"`
	Meter        Meter     `json:"meter"`
}

func NewFeedItem(r StoredResponse) FeedItem {
	return FeedItem{
		StoredResponse: r,
		ToneLabel:      r.Tone.Label(),
		PersonaLabel:   r.Persona.Label(),
		Style:          StyleFor(r.Tone),
		Meter:          CollectivismMeter(r.CollectivismScore),
	}
}
