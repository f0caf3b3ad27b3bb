package service

import (
	"sync"
	"time"

	"libertax/internal/domain"
)

// SessionHub reparte eventos de sesion a los suscriptores de cada usuario.
// Publish nunca bloquea: un suscriptor lento pierde eventos.
type SessionHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan domain.SessionEvent
}

func NewSessionHub() *SessionHub {
	return &SessionHub{subs: make(map[string]map[int]chan domain.SessionEvent)}
}

// Subscribe devuelve el canal de eventos del usuario y la funcion para cancelar.
func (h *SessionHub) Subscribe(userID string) (<-chan domain.SessionEvent, func()) {
	ch := make(chan domain.SessionEvent, 8)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan domain.SessionEvent)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if byUser, ok := h.subs[userID]; ok {
				delete(byUser, id)
				if len(byUser) == 0 {
					delete(h.subs, userID)
				}
			}
			close(ch)
		})
	}
}

func (h *SessionHub) Publish(userID string, typ domain.SessionEventType) {
	evt := domain.SessionEvent{Type: typ, UserID: userID, At: time.Now().UTC()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[userID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers cuenta las suscripciones activas del usuario.
func (h *SessionHub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}
