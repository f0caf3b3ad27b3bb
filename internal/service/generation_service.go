package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"libertax/internal/domain"
	"libertax/internal/llm"
	"libertax/internal/metrics"
)

const rebuttalSystemInstruction = `You are "LibertaX Response Expert", a tactical debate agent for the cultural battle.
Your reasoning is grounded in Austrian Economics, Natural Rights and Individual Liberty.

For every post you receive:
1. Identify the logical fallacies it commits.
2. Rate its Collectivism Score from 0 (libertarian) to 100 (communist/totalitarian).
3. Write a devastating reply for X.com in Spanish, at most 280 characters.
4. Write a very short, punchy MEME CAPTION in ENGLISH (3-5 words) summarising the reply.

Never take a left-wing position. If the post is already pro-liberty, reinforce it with more logic.`

const memePromptTemplate = `A political meme with the text: "%s". Mocking state bureaucracy, high quality, vibrant colors.`

// rebuttalSchema restringe la respuesta del modelo a la forma que parsea parseRebuttal.
var rebuttalSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"response":    {Type: genai.TypeString},
		"memeCaption": {Type: genai.TypeString},
		"fallacies": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":        {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
				},
				Required: []string{"name", "description"},
			},
		},
		"collectivismScore": {Type: genai.TypeNumber},
	},
	Required: []string{"response", "memeCaption", "fallacies", "collectivismScore"},
}

// GenerationOptions ajusta llamadas al proveedor.
type GenerationOptions struct {
	Temperature float32
	// Timeout acota cada llamada; cero significa sin límite.
	Timeout time.Duration
	Metrics *metrics.Recorder
}

// GenerationService envuelve al modelo generativo y normaliza sus respuestas. No guarda estado.
type GenerationService struct {
	llm         llm.Client
	logger      *zap.Logger
	metrics     *metrics.Recorder
	temperature float32
	timeout     time.Duration
}

func NewGenerationService(client llm.Client, logger *zap.Logger, opts GenerationOptions) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	temp := opts.Temperature
	if temp <= 0 {
		temp = 0.7
	}
	return &GenerationService{
		llm:         client,
		logger:      logger,
		metrics:     opts.Metrics,
		temperature: temp,
		timeout:     opts.Timeout,
	}
}

// GenerateRebuttal pide la refutación, la lista de falacias, el puntaje y, opcionalmente, fuentes web.
func (s *GenerationService) GenerateRebuttal(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	if !req.Tone.Valid() {
		return domain.GenerationResult{}, ErrInvalidTone
	}
	if !req.Persona.Valid() {
		return domain.GenerationResult{}, ErrInvalidPersona
	}
	image, err := decodeSourceImage(req.SourceImage)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	if s.llm == nil {
		return domain.GenerationResult{}, &GenerationError{Op: "rebuttal", Err: llm.ErrNotConfigured}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	reply, err := s.llm.GenerateStructured(ctx, llm.StructuredRequest{
		SystemInstruction: rebuttalSystemInstruction,
		Prompt:            buildRebuttalPrompt(req),
		Image:             image,
		Schema:            rebuttalSchema,
		Temperature:       s.temperature,
		WebSearch:         req.UseWebEvidence,
	})
	if err != nil {
		s.metrics.ObserveGeneration("rebuttal", "error", time.Since(start))
		s.logger.Error("rebuttal generation failed", zap.Error(err))
		return domain.GenerationResult{}, &GenerationError{Op: "rebuttal", Err: err}
	}

	result, ok := parseRebuttal(reply.Text)
	if !ok {
		s.metrics.ObserveGeneration("rebuttal", "malformed", time.Since(start))
		s.logger.Warn("malformed rebuttal payload, using defaults", zap.Int("raw_len", len(reply.Text)))
	} else {
		s.metrics.ObserveGeneration("rebuttal", "ok", time.Since(start))
	}

	if req.UseWebEvidence {
		sources := make([]domain.GroundingSource, 0, len(reply.Citations))
		for _, c := range reply.Citations {
			sources = append(sources, domain.GroundingSource{Title: c.Title, URI: c.URI})
		}
		result.Sources = dedupeSources(sources)
	}
	return result, nil
}

// GenerateMemeImage devuelve una imagen JPEG como data URI. Sin imagen de respaldo.
func (s *GenerationService) GenerateMemeImage(ctx context.Context, caption string) (string, error) {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return "", &GenerationError{Op: "meme", Err: errors.New("empty caption")}
	}
	if s.llm == nil {
		return "", &GenerationError{Op: "meme", Err: llm.ErrNotConfigured}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	img, err := s.llm.GenerateImage(ctx, llm.ImageRequest{
		Prompt:      fmt.Sprintf(memePromptTemplate, caption),
		MIMEType:    "image/jpeg",
		AspectRatio: "1:1",
	})
	if err == nil && len(img.Data) == 0 {
		err = errors.New("empty image")
	}
	if err != nil {
		s.metrics.ObserveGeneration("meme", "error", time.Since(start))
		s.logger.Error("meme generation failed", zap.Error(err))
		return "", &GenerationError{Op: "meme", Err: err}
	}
	s.metrics.ObserveGeneration("meme", "ok", time.Since(start))

	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data), nil
}

func (s *GenerationService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

func buildRebuttalPrompt(req domain.GenerationRequest) string {
	target := strings.TrimSpace(req.TargetUsername)
	if target == "" {
		target = "Unknown"
	}
	content := strings.TrimSpace(req.SourceText)
	if content == "" {
		content = "Analyze the attached image."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TONE: %s\n", req.Tone.Label())
	fmt.Fprintf(&b, "PERSONA: %s\n", req.Persona.Label())
	fmt.Fprintf(&b, "TARGET USER: %s\n", target)
	fmt.Fprintf(&b, "POST CONTENT: %s\n\n", content)
	b.WriteString("Return a JSON object with: response (Spanish), memeCaption (English), fallacies (array of {name, description}) and collectivismScore (0-100).")
	return b.String()
}

// decodeSourceImage acepta un data URI o base64 pelado. Sin imagen devuelve nil.
func decodeSourceImage(src string) (*llm.InlineImage, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}

	mimeType := "image/jpeg"
	payload := src
	if strings.HasPrefix(src, "data:") {
		header, data, found := strings.Cut(src, ",")
		if !found {
			return nil, ErrInvalidImage
		}
		meta := strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(meta, ";base64") {
			return nil, ErrInvalidImage
		}
		if mt := strings.TrimSuffix(meta, ";base64"); mt != "" {
			mimeType = mt
		}
		payload = data
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, ErrInvalidImage
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, ErrInvalidImage
	}
	return &llm.InlineImage{MIMEType: mimeType, Data: data}, nil
}
