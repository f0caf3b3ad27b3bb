package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"libertax/internal/domain"
	"libertax/internal/metrics"
	"libertax/internal/repository"
)

const shareIntentURL = "https://twitter.com/intent/tweet?text="

// Generator es la parte de GenerationService que usa el workspace.
type Generator interface {
	GenerateRebuttal(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error)
	GenerateMemeImage(ctx context.Context, caption string) (string, error)
}

// ComposerState son los valores con los que se abre el Composer.
// Tono, persona y evidencia web se recuerdan entre envios; texto e imagen arrancan vacios.
type ComposerState struct {
	SourceText     string          `json:"source_text"`
	SourceImage    string          `json:"source_image"`
	TargetUsername string          `json:"target_username"`
	Tone           domain.Tone     `json:"tone"`
	Persona        domain.Persona  `json:"persona"`
	UseWebEvidence bool            `json:"use_web_evidence"`
	Tones          []ToneOption    `json:"tones"`
	Personas       []PersonaOption `json:"personas"`
}

type ToneOption struct {
	Key   domain.Tone `json:"key"`
	Label string      `json:"label"`
}

type PersonaOption struct {
	Key   domain.Persona `json:"key"`
	Label string         `json:"label"`
}

// Workspace es la cache del feed de un usuario con sesion abierta.
// El feed se reemplaza completo (copy-on-write) bajo mu, nunca se muta en sitio.
type Workspace struct {
	userID    string
	responses repository.ResponseRepository
	generator Generator
	inflight  InFlightSet
	metrics   *metrics.Recorder
	logger    *zap.Logger

	initial sync.Once

	mu      sync.RWMutex
	feed    []domain.StoredResponse
	tone    domain.Tone
	persona domain.Persona
	useWeb  bool
}

func newWorkspace(userID string, deps workspaceDeps) *Workspace {
	return &Workspace{
		userID:    userID,
		responses: deps.responses,
		generator: deps.generator,
		inflight:  deps.inflight,
		metrics:   deps.metrics,
		logger:    deps.logger.With(zap.String("user_id", userID)),
		feed:      []domain.StoredResponse{},
		tone:      domain.ToneSarcastic,
		persona:   domain.PersonaAncap,
	}
}

func (w *Workspace) UserID() string { return w.userID }

// Load reemplaza el feed con el historial guardado, mas nuevo primero.
// Los items agregados en memoria que el historial aun no trae se conservan al frente.
func (w *Workspace) Load(ctx context.Context) error {
	rows, err := w.responses.ListByUser(ctx, w.userID)
	if err != nil {
		return &PersistenceError{Op: "list", Err: err}
	}
	known := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		known[r.ID] = struct{}{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	next := make([]domain.StoredResponse, 0, len(w.feed)+len(rows))
	for _, r := range w.feed {
		if _, ok := known[r.ID]; !ok {
			next = append(next, r)
		}
	}
	w.feed = append(next, rows...)
	return nil
}

// Feed devuelve los items decorados para el render.
func (w *Workspace) Feed() []domain.FeedItem {
	w.mu.RLock()
	feed := w.feed
	w.mu.RUnlock()

	items := make([]domain.FeedItem, 0, len(feed))
	for _, r := range feed {
		items = append(items, domain.NewFeedItem(r))
	}
	return items
}

func (w *Workspace) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.feed)
}

func (w *Workspace) Composer() ComposerState {
	w.mu.RLock()
	state := ComposerState{Tone: w.tone, Persona: w.persona, UseWebEvidence: w.useWeb}
	w.mu.RUnlock()

	for _, t := range domain.Tones() {
		state.Tones = append(state.Tones, ToneOption{Key: t, Label: t.Label()})
	}
	for _, p := range domain.Personas() {
		state.Personas = append(state.Personas, PersonaOption{Key: p, Label: p.Label()})
	}
	return state
}

// Submit genera la refutacion, la persiste y la antepone al feed.
// Ante cualquier falla el feed queda como estaba.
func (w *Workspace) Submit(ctx context.Context, req domain.GenerationRequest) (domain.StoredResponse, error) {
	if req.IsEmpty() {
		w.metrics.CountSubmission("empty")
		return domain.StoredResponse{}, ErrNothingToSubmit
	}
	if !req.Tone.Valid() {
		return domain.StoredResponse{}, ErrInvalidTone
	}
	if !req.Persona.Valid() {
		return domain.StoredResponse{}, ErrInvalidPersona
	}

	release, ok := w.inflight.Acquire(ctx, composerKey(w.userID))
	if !ok {
		w.metrics.CountSubmission("busy")
		return domain.StoredResponse{}, ErrComposerBusy
	}
	defer release()

	w.mu.Lock()
	w.tone, w.persona, w.useWeb = req.Tone, req.Persona, req.UseWebEvidence
	w.mu.Unlock()

	result, err := w.generator.GenerateRebuttal(ctx, req)
	if err != nil {
		w.metrics.CountSubmission("generation_error")
		return domain.StoredResponse{}, err
	}

	username := strings.TrimPrefix(strings.TrimSpace(req.TargetUsername), "@")
	if username == "" {
		username = domain.DefaultTargetUsername
	}
	row := domain.StoredResponse{
		UserID:            w.userID,
		Username:          username,
		OriginalText:      req.SourceText,
		OriginalImage:     req.SourceImage,
		GeneratedContent:  result.RebuttalText,
		MemeCaption:       result.MemeCaption,
		Tone:              req.Tone,
		Persona:           req.Persona,
		Fallacies:         result.Fallacies,
		CollectivismScore: domain.ClampScore(result.CollectivismScore),
		Sources:           result.Sources,
	}

	stored, err := w.responses.Insert(ctx, row)
	if err != nil {
		w.metrics.CountSubmission("persistence_error")
		w.logger.Error("insert response failed", zap.Error(err))
		return domain.StoredResponse{}, &PersistenceError{Op: "insert", Err: err}
	}

	w.prepend(stored)

	w.metrics.CountSubmission("ok")
	return stored, nil
}

// GenerateMeme adjunta una imagen al item. Se rechaza sin llamar al proveedor si ya tiene
// imagen o si hay otra generacion en curso para el mismo item.
func (w *Workspace) GenerateMeme(ctx context.Context, responseID string) (domain.StoredResponse, error) {
	item, err := w.Find(ctx, responseID)
	if err != nil {
		return domain.StoredResponse{}, err
	}
	if item.HasMeme() {
		return domain.StoredResponse{}, ErrMemeAlreadyAttached
	}

	release, ok := w.inflight.Acquire(ctx, memeKey(responseID))
	if !ok {
		return domain.StoredResponse{}, ErrMemeInFlight
	}
	defer release()

	// otra generacion pudo terminar entre la lectura y la toma del lock
	if item, err = w.Find(ctx, responseID); err != nil {
		return domain.StoredResponse{}, err
	}
	if item.HasMeme() {
		return domain.StoredResponse{}, ErrMemeAlreadyAttached
	}

	imageURL, err := w.generator.GenerateMemeImage(ctx, item.MemeText())
	if err != nil {
		return domain.StoredResponse{}, err
	}

	if err := w.responses.UpdateImageURL(ctx, responseID, w.userID, imageURL); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.StoredResponse{}, ErrMemeAlreadyAttached
		}
		w.logger.Error("attach meme failed", zap.String("response_id", responseID), zap.Error(err))
		return domain.StoredResponse{}, &PersistenceError{Op: "update_image", Err: err}
	}

	item.GeneratedImageURL = imageURL
	if updated, ok := w.replace(responseID, func(r domain.StoredResponse) domain.StoredResponse {
		r.GeneratedImageURL = imageURL
		return r
	}); ok {
		return updated, nil
	}
	return item, nil
}

// Find busca un item del usuario. Primero en el feed en memoria; si no esta (historial
// que fallo al cargar, fila creada desde otra instancia) lo lee del store.
func (w *Workspace) Find(ctx context.Context, responseID string) (domain.StoredResponse, error) {
	w.mu.RLock()
	for _, r := range w.feed {
		if r.ID == responseID {
			w.mu.RUnlock()
			return r, nil
		}
	}
	w.mu.RUnlock()

	row, err := w.responses.GetByID(ctx, responseID, w.userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.StoredResponse{}, ErrResponseNotFound
		}
		return domain.StoredResponse{}, &PersistenceError{Op: "get", Err: err}
	}
	return row, nil
}

// CopyText devuelve el texto generado tal cual se copia al portapapeles.
func (w *Workspace) CopyText(ctx context.Context, responseID string) (string, error) {
	item, err := w.Find(ctx, responseID)
	if err != nil {
		return "", err
	}
	return item.GeneratedContent, nil
}

// ShareLink arma el intent de X con "@usuario respuesta".
func (w *Workspace) ShareLink(ctx context.Context, responseID string) (string, error) {
	item, err := w.Find(ctx, responseID)
	if err != nil {
		return "", err
	}
	return ShareIntent(item), nil
}

func ShareIntent(r domain.StoredResponse) string {
	text := "@" + r.Username + " " + r.GeneratedContent
	return shareIntentURL + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

// prepend antepone el item salvo que una recarga del historial ya lo haya traido.
func (w *Workspace) prepend(row domain.StoredResponse) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.feed {
		if r.ID == row.ID {
			return
		}
	}
	next := make([]domain.StoredResponse, 0, len(w.feed)+1)
	next = append(next, row)
	w.feed = append(next, w.feed...)
}

// replace aplica fn al item con ese id sobre una copia nueva del feed.
func (w *Workspace) replace(responseID string, fn func(domain.StoredResponse) domain.StoredResponse) (domain.StoredResponse, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := make([]domain.StoredResponse, len(w.feed))
	copy(next, w.feed)
	var (
		updated domain.StoredResponse
		found   bool
	)
	for i, r := range next {
		if r.ID == responseID {
			next[i] = fn(r)
			updated, found = next[i], true
		}
	}
	w.feed = next
	return updated, found
}

type workspaceDeps struct {
	responses repository.ResponseRepository
	generator Generator
	inflight  InFlightSet
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

// WorkspaceRegistry guarda un Workspace por usuario con sesion abierta.
type WorkspaceRegistry struct {
	deps workspaceDeps

	mu     sync.Mutex
	spaces map[string]*Workspace
}

type WorkspaceOptions struct {
	InFlight InFlightSet
	Metrics  *metrics.Recorder
}

func NewWorkspaceRegistry(logger *zap.Logger, responses repository.ResponseRepository, generator Generator, opts WorkspaceOptions) *WorkspaceRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	inflight := opts.InFlight
	if inflight == nil {
		inflight = NewMemoryInFlightSet()
	}
	return &WorkspaceRegistry{
		deps: workspaceDeps{
			responses: responses,
			generator: generator,
			inflight:  inflight,
			metrics:   opts.Metrics,
			logger:    logger,
		},
		spaces: make(map[string]*Workspace),
	}
}

// Open carga el historial del usuario al iniciar sesion. Si ya hay un workspace abierto
// (otra sesion, otro dispositivo) se reutiliza para no perder envios en curso.
// Si la carga falla se registra y el feed queda como estaba.
func (r *WorkspaceRegistry) Open(ctx context.Context, userID string) *Workspace {
	ws := r.workspace(userID)
	loaded := false
	ws.initial.Do(func() {
		r.load(ctx, ws)
		loaded = true
	})
	if !loaded {
		r.load(ctx, ws)
	}
	return ws
}

// Get devuelve el workspace abierto o lo abre si el proceso se reinicio con la sesion viva.
// Llamadas concurrentes comparten una unica carga del historial.
func (r *WorkspaceRegistry) Get(ctx context.Context, userID string) *Workspace {
	ws := r.workspace(userID)
	ws.initial.Do(func() { r.load(ctx, ws) })
	return ws
}

func (r *WorkspaceRegistry) workspace(userID string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.spaces[userID]
	if !ok {
		ws = newWorkspace(userID, r.deps)
		r.spaces[userID] = ws
	}
	return ws
}

func (r *WorkspaceRegistry) load(ctx context.Context, ws *Workspace) {
	if err := ws.Load(ctx); err != nil {
		r.deps.logger.Warn("load history failed", zap.String("user_id", ws.userID), zap.Error(err))
	}
}

func (r *WorkspaceRegistry) Close(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.spaces, userID)
}
