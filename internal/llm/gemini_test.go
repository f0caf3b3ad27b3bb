package llm

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

func TestCitationsFrom(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				GroundingMetadata: &genai.GroundingMetadata{
					GroundingChunks: []*genai.GroundingChunk{
						{Web: &genai.GroundingChunkWeb{Title: "Mises", URI: "https://mises.org/a"}},
						nil,
						{},
						{Web: &genai.GroundingChunkWeb{URI: "https://cato.org/b"}},
					},
				},
			},
		},
	}

	got := citationsFrom(resp)
	if len(got) != 2 {
		t.Fatalf("expected 2 citations, got %+v", got)
	}
	if got[0].Title != "Mises" || got[1].URI != "https://cato.org/b" {
		t.Fatalf("unexpected citations %+v", got)
	}
	if citationsFrom(&genai.GenerateContentResponse{}) != nil {
		t.Fatalf("expected nil without candidates")
	}
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background(), " ", "", "", nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDisabledClient(t *testing.T) {
	c := NewDisabledClient("GEMINI_API_KEY not configured")
	if _, err := c.GenerateStructured(context.Background(), StructuredRequest{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := c.GenerateImage(context.Background(), ImageRequest{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
