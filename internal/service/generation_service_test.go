package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"libertax/internal/domain"
	"libertax/internal/llm"
)

func newTestGenerationService(client llm.Client) *GenerationService {
	return NewGenerationService(client, zap.NewNop(), GenerationOptions{})
}

func TestGenerateRebuttal_BuildsPrompt(t *testing.T) {
	mock := &llm.MockClient{Reply: llm.StructuredReply{
		Text: `{"response":"El Estado no crea riqueza.","memeCaption":"Taxation Is Theft","fallacies":[{"name":"Falso dilema","description":"..."}],"collectivismScore":87}`,
	}}
	svc := newTestGenerationService(mock)

	res, err := svc.GenerateRebuttal(context.Background(), domain.GenerationRequest{
		SourceText: "El estado debe regular todo",
		Tone:       domain.ToneSarcastic,
		Persona:    domain.PersonaAncap,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.CollectivismScore != 87 || res.RebuttalText != "El Estado no crea riqueza." || len(res.Fallacies) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Sources == nil || len(res.Sources) != 0 {
		t.Fatalf("expected empty sources without web evidence, got %+v", res.Sources)
	}

	if mock.StructuredCallCount() != 1 {
		t.Fatalf("expected one provider call")
	}
	call := mock.StructuredCalls[0]
	for _, want := range []string{"TONE: Sarcastic & Sharp", "PERSONA: Anarcocapitalista (Milei Style)", "TARGET USER: Unknown", "POST CONTENT: El estado debe regular todo"} {
		if !strings.Contains(call.Prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, call.Prompt)
		}
	}
	if call.WebSearch || call.Image != nil || call.Schema == nil || call.Temperature != 0.7 {
		t.Fatalf("unexpected request %+v", call)
	}
	if !strings.Contains(call.SystemInstruction, "LibertaX Response Expert") {
		t.Fatalf("expected system instruction")
	}
}

func TestGenerateRebuttal_ImageOnly(t *testing.T) {
	mock := &llm.MockClient{Reply: llm.StructuredReply{Text: `{}`}}
	svc := newTestGenerationService(mock)

	_, err := svc.GenerateRebuttal(context.Background(), domain.GenerationRequest{
		SourceImage:    "data:image/png;base64,aGVsbG8=",
		Tone:           domain.ToneIronic,
		Persona:        domain.PersonaMinarchist,
		TargetUsername: "zurdo123",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	call := mock.StructuredCalls[0]
	if call.Image == nil || call.Image.MIMEType != "image/png" || string(call.Image.Data) != "hello" {
		t.Fatalf("unexpected inline image %+v", call.Image)
	}
	if !strings.Contains(call.Prompt, "Analyze the attached image.") || !strings.Contains(call.Prompt, "TARGET USER: zurdo123") {
		t.Fatalf("unexpected prompt %s", call.Prompt)
	}
}

func TestGenerateRebuttal_InvalidImage(t *testing.T) {
	mock := &llm.MockClient{}
	svc := newTestGenerationService(mock)

	for _, img := range []string{"data:text/plain;base64,aGVsbG8=", "data:image/png,raw", "%%%"} {
		_, err := svc.GenerateRebuttal(context.Background(), domain.GenerationRequest{
			SourceImage: img,
			Tone:        domain.ToneIronic,
			Persona:     domain.PersonaMinarchist,
		})
		if !errors.Is(err, ErrInvalidImage) {
			t.Fatalf("%q: expected ErrInvalidImage, got %v", img, err)
		}
	}
	if mock.StructuredCallCount() != 0 {
		t.Fatalf("invalid images must not reach the provider")
	}
}

func TestGenerateRebuttal_MalformedPayloadUsesDefaults(t *testing.T) {
	mock := &llm.MockClient{Reply: llm.StructuredReply{Text: "lo siento, no puedo"}}
	svc := newTestGenerationService(mock)

	res, err := svc.GenerateRebuttal(context.Background(), domain.GenerationRequest{
		SourceText: "x", Tone: domain.ToneAcademic, Persona: domain.PersonaClassicLiberal,
	})
	if err != nil {
		t.Fatalf("malformed payload must not fail: %v", err)
	}
	if res.CollectivismScore != 50 || res.MemeCaption != "Liberty Wins" || res.RebuttalText != "Error generando respuesta." || len(res.Fallacies) != 0 {
		t.Fatalf("unexpected defaults %+v", res)
	}
}

func TestGenerateRebuttal_ClampsScore(t *testing.T) {
	mock := &llm.MockClient{Reply: llm.StructuredReply{Text: `{"response":"ok","collectivismScore":420}`}}
	svc := newTestGenerationService(mock)

	res, err := svc.GenerateRebuttal(context.Background(), domain.GenerationRequest{
		SourceText: "x", Tone: domain.ToneAcademic, Persona: domain.PersonaClassicLiberal,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.CollectivismScore != 100 {
		t.Fatalf("expected clamped score 100, got %d", res.CollectivismScore)
	}
	if res.MemeCaption != "Liberty Wins" {
		t.Fatalf("expected caption default, got %q", res.MemeCaption)
	}
}

func TestGenerateRebuttal_WebEvidenceSources(t *testing.T) {
	mock := &llm.MockClient{Reply: llm.StructuredReply{
		Text: `{"response":"ok","memeCaption":"c","fallacies":[],"collectivismScore":10}`,
		Citations: []llm.Citation{
			{Title: "Mises", URI: "https://mises.org/a"},
			{Title: "Mises again", URI: "https://mises.org/a"},
			{Title: "", URI: "https://cato.org/b"},
			{Title: "no uri", URI: ""},
		},
	}}
	svc := newTestGenerationService(mock)

	res, err := svc.GenerateRebuttal(context.Background(), domain.GenerationRequest{
		SourceText: "x", Tone: domain.ToneAcademic, Persona: domain.PersonaClassicLiberal, UseWebEvidence: true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !mock.StructuredCalls[0].WebSearch {
		t.Fatalf("expected web search tool enabled")
	}
	want := []domain.GroundingSource{{Title: "Mises", URI: "https://mises.org/a"}, {Title: "Fuente", URI: "https://cato.org/b"}}
	if len(res.Sources) != len(want) {
		t.Fatalf("unexpected sources %+v", res.Sources)
	}
	for i := range want {
		if res.Sources[i] != want[i] {
			t.Fatalf("source %d: expected %+v, got %+v", i, want[i], res.Sources[i])
		}
	}
}

func TestGenerateRebuttal_ProviderError(t *testing.T) {
	mock := &llm.MockClient{Err: errors.New("quota exceeded")}
	svc := newTestGenerationService(mock)

	_, err := svc.GenerateRebuttal(context.Background(), domain.GenerationRequest{
		SourceText: "x", Tone: domain.ToneAcademic, Persona: domain.PersonaClassicLiberal,
	})
	var genErr *GenerationError
	if !errors.As(err, &genErr) || !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Op != "rebuttal" {
		t.Fatalf("unexpected op %q", genErr.Op)
	}
}

func TestGenerateRebuttal_MissingCredential(t *testing.T) {
	svc := newTestGenerationService(llm.NewDisabledClient(""))

	_, err := svc.GenerateRebuttal(context.Background(), domain.GenerationRequest{
		SourceText: "x", Tone: domain.ToneAcademic, Persona: domain.PersonaClassicLiberal,
	})
	if !errors.Is(err, ErrGeneration) || !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("expected generation error wrapping ErrNotConfigured, got %v", err)
	}
}

func TestGenerateRebuttal_InvalidEnums(t *testing.T) {
	svc := newTestGenerationService(&llm.MockClient{})
	if _, err := svc.GenerateRebuttal(context.Background(), domain.GenerationRequest{SourceText: "x", Tone: "LOUD", Persona: domain.PersonaAncap}); !errors.Is(err, ErrInvalidTone) {
		t.Fatalf("expected ErrInvalidTone, got %v", err)
	}
	if _, err := svc.GenerateRebuttal(context.Background(), domain.GenerationRequest{SourceText: "x", Tone: domain.ToneIronic, Persona: "TANKIE"}); !errors.Is(err, ErrInvalidPersona) {
		t.Fatalf("expected ErrInvalidPersona, got %v", err)
	}
}

func TestGenerateMemeImage(t *testing.T) {
	mock := &llm.MockClient{Image: llm.Image{MIMEType: "image/jpeg", Data: []byte("jpg")}}
	svc := newTestGenerationService(mock)

	uri, err := svc.GenerateMemeImage(context.Background(), "Taxation Is Theft")
	if err != nil {
		t.Fatalf("meme: %v", err)
	}
	if uri != "data:image/jpeg;base64,anBn" {
		t.Fatalf("unexpected data uri %q", uri)
	}
	call := mock.ImageCalls[0]
	if !strings.Contains(call.Prompt, `"Taxation Is Theft"`) || call.AspectRatio != "1:1" || call.MIMEType != "image/jpeg" {
		t.Fatalf("unexpected image request %+v", call)
	}
}

func TestGenerateMemeImage_Failures(t *testing.T) {
	svc := newTestGenerationService(&llm.MockClient{ImageErr: errors.New("blocked")})
	if _, err := svc.GenerateMemeImage(context.Background(), "caption"); !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}

	svc = newTestGenerationService(&llm.MockClient{})
	if _, err := svc.GenerateMemeImage(context.Background(), "caption"); !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected generation error for empty image, got %v", err)
	}

	mock := &llm.MockClient{}
	svc = newTestGenerationService(mock)
	if _, err := svc.GenerateMemeImage(context.Background(), "   "); !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected generation error for empty caption, got %v", err)
	}
	if mock.ImageCallCount() != 0 {
		t.Fatalf("empty caption must not reach the provider")
	}
}
