package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar al proveedor real.
type MockClient struct {
	mu sync.Mutex

	Reply    StructuredReply
	Err      error
	Image    Image
	ImageErr error

	StructuredCalls []StructuredRequest
	ImageCalls      []ImageRequest
}

func (m *MockClient) GenerateStructured(_ context.Context, req StructuredRequest) (StructuredReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StructuredCalls = append(m.StructuredCalls, req)
	return m.Reply, m.Err
}

func (m *MockClient) GenerateImage(_ context.Context, req ImageRequest) (Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ImageCalls = append(m.ImageCalls, req)
	return m.Image, m.ImageErr
}

func (m *MockClient) StructuredCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.StructuredCalls)
}

func (m *MockClient) ImageCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ImageCalls)
}
