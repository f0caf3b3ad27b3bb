package llm

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// Client define la interfaz contra el modelo generativo externo.
type Client interface {
	GenerateStructured(ctx context.Context, req StructuredRequest) (StructuredReply, error)
	GenerateImage(ctx context.Context, req ImageRequest) (Image, error)
}

// ErrNotConfigured se devuelve cuando no hay credencial para el proveedor.
var ErrNotConfigured = errors.New("llm api key not configured")

// InlineImage es una imagen adjunta al prompt.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

// StructuredRequest pide una respuesta JSON restringida por un schema.
type StructuredRequest struct {
	SystemInstruction string
	Prompt            string
	Image             *InlineImage
	Schema            *genai.Schema
	Temperature       float32
	WebSearch         bool
}

type Citation struct {
	Title string
	URI   string
}

// StructuredReply trae el texto crudo (JSON esperado) y las citas de grounding.
type StructuredReply struct {
	Text      string
	Citations []Citation
}

type ImageRequest struct {
	Prompt      string
	MIMEType    string
	AspectRatio string
}

type Image struct {
	MIMEType string
	Data     []byte
}

type disabledClient struct {
	reason string
}

// NewDisabledClient devuelve un cliente que falla siempre; se usa cuando falta la API key.
func NewDisabledClient(reason string) Client {
	return &disabledClient{reason: reason}
}

func (c *disabledClient) GenerateStructured(context.Context, StructuredRequest) (StructuredReply, error) {
	return StructuredReply{}, c.err()
}

func (c *disabledClient) GenerateImage(context.Context, ImageRequest) (Image, error) {
	return Image{}, c.err()
}

func (c *disabledClient) err() error {
	if c.reason == "" {
		return ErrNotConfigured
	}
	return errors.Join(ErrNotConfigured, errors.New(c.reason))
}
