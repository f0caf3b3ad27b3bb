package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"libertax/internal/domain"
	"libertax/internal/render"
	"libertax/internal/service"
)

// ResponseHandler atiende el Composer y las acciones del feed.
type ResponseHandler struct {
	logger     *zap.Logger
	workspaces *service.WorkspaceRegistry
	cards      *render.CardRenderer
}

func NewResponseHandler(logger *zap.Logger, workspaces *service.WorkspaceRegistry, cards *render.CardRenderer) *ResponseHandler {
	return &ResponseHandler{
		logger:     logger,
		workspaces: workspaces,
		cards:      cards,
	}
}

type createResponseRequest struct {
	SourceText     string `json:"source_text"`
	SourceImage    string `json:"source_image"`
	Tone           string `json:"tone"`
	Persona        string `json:"persona"`
	TargetUsername string `json:"target_username"`
	UseWebEvidence bool   `json:"use_web_evidence"`
}

// Composer maneja GET /composer.
func (h *ResponseHandler) Composer(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ws.Composer())
}

// List maneja GET /responses.
func (h *ResponseHandler) List(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"feed": ws.Feed()})
}

// Create maneja POST /responses. Tono y persona ausentes toman el ultimo valor usado.
func (h *ResponseHandler) Create(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	var req createResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create response request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	composer := ws.Composer()
	genReq := domain.GenerationRequest{
		SourceText:     req.SourceText,
		SourceImage:    req.SourceImage,
		Tone:           composer.Tone,
		Persona:        composer.Persona,
		TargetUsername: req.TargetUsername,
		UseWebEvidence: req.UseWebEvidence,
	}
	if strings.TrimSpace(req.Tone) != "" {
		tone, err := domain.ParseTone(req.Tone)
		if err != nil {
			h.writeError(c, "create response", service.ErrInvalidTone)
			return
		}
		genReq.Tone = tone
	}
	if strings.TrimSpace(req.Persona) != "" {
		persona, err := domain.ParsePersona(req.Persona)
		if err != nil {
			h.writeError(c, "create response", service.ErrInvalidPersona)
			return
		}
		genReq.Persona = persona
	}

	stored, err := ws.Submit(c.Request.Context(), genReq)
	if err != nil {
		h.writeError(c, "create response", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"response": domain.NewFeedItem(stored)})
}

// Text maneja GET /responses/:id/text.
func (h *ResponseHandler) Text(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	text, err := ws.CopyText(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "copy text", err)
		return
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.String(http.StatusOK, text)
}

// Share maneja GET /responses/:id/share.
func (h *ResponseHandler) Share(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	link, err := ws.ShareLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "share", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link})
}

// Card maneja GET /responses/:id/card.png?theme=dark|light.
func (h *ResponseHandler) Card(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	item, err := ws.Find(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "card", err)
		return
	}

	png, err := h.cards.Render(domain.NewFeedItem(item), render.ParseTheme(c.Query("theme")))
	if err != nil {
		h.logger.Error("render card failed", zap.String("response_id", item.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not render card"})
		return
	}
	c.Header("Content-Type", "image/png")
	c.Header("Content-Disposition", `attachment; filename="`+render.FileName(item.ID)+`"`)
	c.Data(http.StatusOK, "image/png", png)
}

// Meme maneja POST /responses/:id/meme.
func (h *ResponseHandler) Meme(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	updated, err := ws.GenerateMeme(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrGeneration) {
			h.logger.Warn("meme generation failed", zap.String("response_id", c.Param("id")), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "meme generation failed"})
			return
		}
		h.writeError(c, "meme", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": domain.NewFeedItem(updated)})
}

func (h *ResponseHandler) workspace(c *gin.Context) (*service.Workspace, bool) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return nil, false
	}
	return h.workspaces.Get(c.Request.Context(), claims.UserID), true
}

func (h *ResponseHandler) writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNothingToSubmit):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidTone),
		errors.Is(err, service.ErrInvalidPersona),
		errors.Is(err, service.ErrInvalidImage):
		h.logger.Warn(op+" rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrComposerBusy),
		errors.Is(err, service.ErrMemeInFlight),
		errors.Is(err, service.ErrMemeAlreadyAttached):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrResponseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrGeneration), errors.Is(err, service.ErrPersistence):
		h.logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not " + op})
	}
}
