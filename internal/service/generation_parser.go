package service

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"libertax/internal/domain"
)

const (
	fallbackRebuttalText = "Error generando respuesta."
	fallbackMemeCaption  = "Liberty Wins"
	fallbackScore        = 50
	fallbackSourceTitle  = "Fuente"
)

var (
	fenceStartRe = regexp.MustCompile("(?is)^\\s*```(?:json)?\\s*")
	fenceEndRe   = regexp.MustCompile("(?is)\\s*```\\s*$")
)

// parseRebuttal convierte la respuesta cruda en un GenerationResult.
// Nunca falla: los campos ausentes o ilegibles toman los valores por defecto y cada
// campo se lee por separado, asi un tipo incorrecto no descarta el resto.
// El bool es false si no hubo JSON o si algun campo presente no se pudo leer.
func parseRebuttal(raw string) (domain.GenerationResult, bool) {
	result := domain.GenerationResult{
		RebuttalText:      fallbackRebuttalText,
		MemeCaption:       fallbackMemeCaption,
		Fallacies:         []domain.Fallacy{},
		CollectivismScore: fallbackScore,
		Sources:           []domain.GroundingSource{},
	}

	fields, ok := decodeRebuttalObject(raw)
	if !ok {
		return result, false
	}

	clean := true
	if msg, present := fields["response"]; present {
		if text, ok := decodeText(msg); ok {
			if text != "" {
				result.RebuttalText = text
			}
		} else {
			clean = false
		}
	}
	if msg, present := fields["memeCaption"]; present {
		if caption, ok := decodeText(msg); ok {
			if caption != "" {
				result.MemeCaption = caption
			}
		} else {
			clean = false
		}
	}
	if msg, present := fields["fallacies"]; present {
		fallacies, ok := decodeFallacies(msg)
		result.Fallacies = fallacies
		clean = clean && ok
	}
	if msg, present := fields["collectivismScore"]; present {
		if score, ok := decodeScore(msg); ok {
			result.CollectivismScore = score
		} else {
			clean = false
		}
	}
	return result, clean
}

func decodeRebuttalObject(raw string) (map[string]json.RawMessage, bool) {
	cleaned := cleanJSONFences(raw)
	candidates := []string{cleaned}
	if obj := extractFirstJSONObject(cleaned); obj != "" && obj != cleaned {
		candidates = append(candidates, obj)
	}

	for _, candidate := range candidates {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &fields); err == nil && fields != nil {
			// null cuenta como ausente
			for k, v := range fields {
				if strings.TrimSpace(string(v)) == "null" {
					delete(fields, k)
				}
			}
			return fields, true
		}
	}
	return nil, false
}

func decodeText(msg json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// decodeFallacies conserva las entradas legibles con nombre.
func decodeFallacies(msg json.RawMessage) ([]domain.Fallacy, bool) {
	out := []domain.Fallacy{}
	var items []json.RawMessage
	if err := json.Unmarshal(msg, &items); err != nil {
		return out, false
	}
	clean := true
	for _, item := range items {
		var f domain.Fallacy
		if err := json.Unmarshal(item, &f); err != nil {
			clean = false
			continue
		}
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		out = append(out, domain.Fallacy{Name: name, Description: strings.TrimSpace(f.Description)})
	}
	return out, clean
}

// decodeScore acepta numeros o strings numericos y acota a [0,100] antes de convertir.
func decodeScore(msg json.RawMessage) (int, bool) {
	var v float64
	if err := json.Unmarshal(msg, &v); err != nil {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	}
	if math.IsNaN(v) {
		return 0, false
	}
	v = math.Max(0, math.Min(100, v))
	return domain.ClampScore(int(math.Round(v))), true
}

// cleanJSONFences quita fences ```json ... ``` y BOM.
func cleanJSONFences(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "\uFEFF")
	s = fenceStartRe.ReplaceAllString(s, "")
	s = fenceEndRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// extractFirstJSONObject devuelve el primer objeto {...} balanceado, respetando strings.
func extractFirstJSONObject(input string) string {
	start := strings.IndexByte(input, '{')
	if start == -1 {
		return ""
	}

	inString := false
	escape := false
	depth := 0

	for i := start; i < len(input); i++ {
		ch := input[i]

		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
		}
	}
	return ""
}

// dedupeSources elimina citas repetidas por URI conservando el primer título.
func dedupeSources(in []domain.GroundingSource) []domain.GroundingSource {
	out := make([]domain.GroundingSource, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		uri := strings.TrimSpace(s.URI)
		if uri == "" {
			continue
		}
		if _, dup := seen[uri]; dup {
			continue
		}
		seen[uri] = struct{}{}
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = fallbackSourceTitle
		}
		out = append(out, domain.GroundingSource{Title: title, URI: uri})
	}
	return out
}
