package domain

import (
	"fmt"
	"strings"
	"time"
)

// Tone es el estilo retórico de la respuesta generada.
type Tone string

const (
	ToneSarcastic  Tone = "SARCASTIC"
	ToneAcademic   Tone = "ACADEMIC"
	ToneAggressive Tone = "AGGRESSIVE"
	ToneDiplomatic Tone = "DIPLOMATIC"
	ToneIronic     Tone = "IRONIC"
)

var toneLabels = map[Tone]string{
	ToneSarcastic:  "Sarcastic & Sharp",
	ToneAcademic:   "Academic & Economic",
	ToneAggressive: "Aggressive Debunker",
	ToneDiplomatic: "Diplomatic Libertarian",
	ToneIronic:     "Ironic/Meme Style",
}

// Tones devuelve los tonos en orden de presentación.
func Tones() []Tone {
	return []Tone{ToneSarcastic, ToneAcademic, ToneAggressive, ToneDiplomatic, ToneIronic}
}

func (t Tone) Valid() bool {
	_, ok := toneLabels[t]
	return ok
}

func (t Tone) Label() string {
	return toneLabels[t]
}

// ParseTone acepta la clave (sin distinguir mayúsculas) o la etiqueta visible.
func ParseTone(s string) (Tone, error) {
	s = strings.TrimSpace(s)
	if t := Tone(strings.ToUpper(s)); t.Valid() {
		return t, nil
	}
	for t, label := range toneLabels {
		if strings.EqualFold(label, s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tone %q", s)
}

// Persona es la voz ideológica de la respuesta generada.
type Persona string

const (
	PersonaAncap            Persona = "ANCAP"
	PersonaMinarchist       Persona = "MINARCHIST"
	PersonaClassicLiberal   Persona = "CLASSIC_LIBERAL"
	PersonaPaleolibertarian Persona = "PALEOLIBERTARIAN"
)

var personaLabels = map[Persona]string{
	PersonaAncap:            "Anarcocapitalista (Milei Style)",
	PersonaMinarchist:       "Minarquista (Estado Mínimo)",
	PersonaClassicLiberal:   "Liberal Clásico (Alberdi/Smith)",
	PersonaPaleolibertarian: "Paleolibertario (Tradición)",
}

func Personas() []Persona {
	return []Persona{PersonaAncap, PersonaMinarchist, PersonaClassicLiberal, PersonaPaleolibertarian}
}

func (p Persona) Valid() bool {
	_, ok := personaLabels[p]
	return ok
}

func (p Persona) Label() string {
	return personaLabels[p]
}

func ParsePersona(s string) (Persona, error) {
	s = strings.TrimSpace(s)
	if p := Persona(strings.ToUpper(s)); p.Valid() {
		return p, nil
	}
	for p, label := range personaLabels {
		if strings.EqualFold(label, s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown persona %q", s)
}

type Fallacy struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GroundingSource es una cita web devuelta por el modelo con búsqueda activada.
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// GenerationRequest vive solo durante un envío del composer.
type GenerationRequest struct {
	SourceText     string  `json:"source_text"`
	SourceImage    string  `json:"source_image,omitempty"`
	Tone           Tone    `json:"tone"`
	Persona        Persona `json:"persona"`
	TargetUsername string  `json:"target_username,omitempty"`
	UseWebEvidence bool    `json:"use_web_evidence"`
}

// IsEmpty indica que no hay ni texto ni imagen que analizar.
func (r GenerationRequest) IsEmpty() bool {
	return strings.TrimSpace(r.SourceText) == "" && strings.TrimSpace(r.SourceImage) == ""
}

type GenerationResult struct {
	RebuttalText      string            `json:"rebuttal_text"`
	MemeCaption       string            `json:"meme_caption"`
	Fallacies         []Fallacy         `json:"fallacies"`
	CollectivismScore int               `json:"collectivism_score"`
	Sources           []GroundingSource `json:"sources"`
}

// DefaultTargetUsername se usa cuando el usuario no indica a quién responde.
const DefaultTargetUsername = "EstatistaPromedio"

// StoredResponse es la fila persistida en la tabla responses.
type StoredResponse struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	Username          string            `json:"username"`
	OriginalText      string            `json:"original_text"`
	OriginalImage     string            `json:"original_image,omitempty"`
	GeneratedContent  string            `json:"generated_content"`
	MemeCaption       string            `json:"meme_caption,omitempty"`
	GeneratedImageURL string            `json:"generated_image_url,omitempty"`
	Tone              Tone              `json:"tone"`
	Persona           Persona           `json:"persona"`
	Fallacies         []Fallacy         `json:"fallacies"`
	CollectivismScore int               `json:"collectivism_score"`
	Sources           []GroundingSource `json:"sources"`
	CreatedAt         time.Time         `json:"created_at"`
}

func (r StoredResponse) HasMeme() bool {
	return strings.TrimSpace(r.GeneratedImageURL) != ""
}

// MemeText es el texto que se envía al generador de imágenes.
func (r StoredResponse) MemeText() string {
	if c := strings.TrimSpace(r.MemeCaption); c != "" {
		return c
	}
	return r.GeneratedContent
}

// ClampScore fuerza el puntaje de colectivismo al rango [0,100].
func ClampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
