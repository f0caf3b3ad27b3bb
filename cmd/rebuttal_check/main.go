package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"libertax/internal/config"
	"libertax/internal/domain"
	"libertax/internal/llm"
	"libertax/internal/render"
	"libertax/internal/service"
)

// Scenario es un post de prueba con la banda de colectivismo esperada.
type Scenario struct {
	Name     string
	Post     string
	Tone     domain.Tone
	Persona  domain.Persona
	MinScore int
	MaxScore int
}

// rebuttal_check corre la generacion real contra Gemini y verifica que el puntaje
// caiga en la banda esperada. Con CARD_OUT_DIR definido exporta cada tarjeta a PNG.
func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		log.Fatalf("GEMINI_API_KEY is required")
	}

	client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiTextModel, cfg.GeminiImageModel, zap.NewNop())
	if err != nil {
		log.Fatalf("gemini client: %v", err)
	}
	generator := service.NewGenerationService(client, zap.NewNop(), service.GenerationOptions{Temperature: cfg.GenerationTemp})

	var cards *render.CardRenderer
	outDir := strings.TrimSpace(os.Getenv("CARD_OUT_DIR"))
	if outDir != "" {
		if cards, err = render.NewCardRenderer(); err != nil {
			log.Fatalf("card renderer: %v", err)
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			log.Fatalf("card dir: %v", err)
		}
	}

	scenarios := []Scenario{
		{
			Name:     "Control de precios",
			Post:     "Hay que congelar todos los precios por decreto y meter presos a los empresarios que remarcan.",
			Tone:     domain.ToneAggressive,
			Persona:  domain.PersonaAncap,
			MinScore: 70,
			MaxScore: 100,
		},
		{
			Name:     "Impuesto a la riqueza",
			Post:     "Los ricos tienen que pagar el 50% de su patrimonio, el Estado sabe mejor que nadie en que gastarlo.",
			Tone:     domain.ToneAcademic,
			Persona:  domain.PersonaClassicLiberal,
			MinScore: 60,
			MaxScore: 100,
		},
		{
			Name:     "Post pro mercado (control)",
			Post:     "Bajar impuestos y desregular el mercado de alquileres aumento la oferta de viviendas.",
			Tone:     domain.ToneDiplomatic,
			Persona:  domain.PersonaMinarchist,
			MinScore: 0,
			MaxScore: 40,
		},
	}

	passed := 0
	total := len(scenarios)

	for i, sc := range scenarios {
		fmt.Printf("=== Ejecutando: %s ===\n", sc.Name)

		runCtx, cancel := context.WithTimeout(ctx, 90*time.Second)
		res, err := generator.GenerateRebuttal(runCtx, domain.GenerationRequest{
			SourceText: sc.Post,
			Tone:       sc.Tone,
			Persona:    sc.Persona,
		})
		cancel()
		if err != nil {
			fmt.Printf("❌ FAIL [%s] generate: %v\n\n", sc.Name, err)
			continue
		}

		fmt.Println("--- Respuesta generada ---")
		fmt.Println(res.RebuttalText)
		for _, f := range res.Fallacies {
			fmt.Printf("  · %s: %s\n", f.Name, f.Description)
		}
		fmt.Println("--------------------------")

		if cards != nil {
			item := domain.NewFeedItem(domain.StoredResponse{
				ID:                fmt.Sprintf("check-%d", i+1),
				Username:          domain.DefaultTargetUsername,
				GeneratedContent:  res.RebuttalText,
				Tone:              sc.Tone,
				Persona:           sc.Persona,
				Fallacies:         res.Fallacies,
				CollectivismScore: res.CollectivismScore,
				CreatedAt:         time.Now().UTC(),
			})
			png, err := cards.Render(item, render.ThemeDark)
			if err != nil {
				fmt.Printf("⚠️  card [%s]: %v\n", sc.Name, err)
			} else if err := os.WriteFile(filepath.Join(outDir, render.FileName(item.ID)), png, 0o644); err != nil {
				fmt.Printf("⚠️  write card [%s]: %v\n", sc.Name, err)
			}
		}

		inBand := res.CollectivismScore >= sc.MinScore && res.CollectivismScore <= sc.MaxScore
		if inBand && strings.TrimSpace(res.RebuttalText) != "" {
			fmt.Printf("✅ PASS [%s] score=%d banda=[%d,%d]\n\n", sc.Name, res.CollectivismScore, sc.MinScore, sc.MaxScore)
			passed++
		} else {
			fmt.Printf("❌ FAIL [%s] score=%d banda=[%d,%d]\n\n", sc.Name, res.CollectivismScore, sc.MinScore, sc.MaxScore)
		}
	}

	fmt.Printf("Tests: %d/%d pasaron\n", passed, total)
	if passed != total {
		os.Exit(1)
	}
	os.Exit(0)
}
