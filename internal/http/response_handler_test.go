package http

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"strings"
	"testing"

	"libertax/internal/config"
	"libertax/internal/domain"
	"libertax/internal/service"
)

type responseEnvelope struct {
	Response domain.FeedItem `json:"response"`
}

type feedEnvelope struct {
	Feed []domain.FeedItem `json:"feed"`
}

func TestResponseHandler_Scenario(t *testing.T) {
	s := newTestServer(t, testServerOptions{})
	sess := s.signUp(t, "user@example.com")
	token := sess.AccessToken

	rec := performRequest(s.router, http.MethodPost, "/responses", token, map[string]any{
		"source_text":     "El estado debe regular todo",
		"tone":            "AGGRESSIVE",
		"persona":         "ANCAP",
		"target_username": "@zurdo123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created responseEnvelope
	decodeBody(t, rec, &created)
	item := created.Response
	if item.ID == "" || item.Username != "zurdo123" || item.CollectivismScore != 87 {
		t.Fatalf("unexpected item %+v", item)
	}
	if item.Meter.Leaning != "red" || item.ToneLabel != "Aggressive Debunker" || item.Style.GradientFrom != "#ef4444" {
		t.Fatalf("unexpected decoration %+v", item)
	}

	rec = performRequest(s.router, http.MethodGet, "/composer", token, nil)
	var composer service.ComposerState
	decodeBody(t, rec, &composer)
	if composer.Tone != domain.ToneAggressive || composer.Persona != domain.PersonaAncap || composer.SourceText != "" {
		t.Fatalf("expected remembered selectors, got %+v", composer)
	}
	if len(composer.Tones) != 5 || len(composer.Personas) != 4 {
		t.Fatalf("expected selector options, got %+v", composer)
	}

	rec = performRequest(s.router, http.MethodGet, "/responses/"+item.ID+"/text", token, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "El Estado no crea riqueza, la destruye." {
		t.Fatalf("unexpected copy text %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain, got %q", ct)
	}

	rec = performRequest(s.router, http.MethodGet, "/responses/"+item.ID+"/share", token, nil)
	var share struct {
		URL string `json:"url"`
	}
	decodeBody(t, rec, &share)
	if !strings.HasPrefix(share.URL, "https://twitter.com/intent/tweet?text=%40zurdo123%20El%20Estado") {
		t.Fatalf("unexpected share link %q", share.URL)
	}

	rec = performRequest(s.router, http.MethodGet, "/responses/"+item.ID+"/card.png?theme=light", token, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected card response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "LibertaX-Tactical-"+item.ID+".png") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Fatalf("card is not a png: %v", err)
	}

	rec = performRequest(s.router, http.MethodPost, "/responses/"+item.ID+"/meme", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on meme, got %d: %s", rec.Code, rec.Body.String())
	}
	var meme responseEnvelope
	decodeBody(t, rec, &meme)
	if meme.Response.GeneratedImageURL != "data:image/jpeg;base64,anBn" {
		t.Fatalf("unexpected image url %q", meme.Response.GeneratedImageURL)
	}

	rec = performRequest(s.router, http.MethodPost, "/responses/"+item.ID+"/meme", token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second meme, got %d", rec.Code)
	}
	if s.llm.ImageCallCount() != 1 {
		t.Fatalf("expected a single image call, got %d", s.llm.ImageCallCount())
	}

	// sin tono ni persona se usan los ultimos elegidos
	rec = performRequest(s.router, http.MethodPost, "/responses", token, map[string]any{"source_text": "Otro post"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var second responseEnvelope
	decodeBody(t, rec, &second)
	if second.Response.Tone != domain.ToneAggressive || second.Response.Username != domain.DefaultTargetUsername {
		t.Fatalf("unexpected second item %+v", second.Response)
	}

	rec = performRequest(s.router, http.MethodGet, "/responses", token, nil)
	var feed feedEnvelope
	decodeBody(t, rec, &feed)
	if len(feed.Feed) != 2 || feed.Feed[0].ID != second.Response.ID || feed.Feed[1].GeneratedImageURL == "" {
		t.Fatalf("expected newest first with meme attached, got %+v", feed.Feed)
	}
}

func TestResponseHandler_Errors(t *testing.T) {
	s := newTestServer(t, testServerOptions{})
	token := s.signUp(t, "user@example.com").AccessToken

	if rec := performRequest(s.router, http.MethodGet, "/responses", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec := performRequest(s.router, http.MethodPost, "/responses", token, map[string]any{"source_text": "   "})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on empty submission, got %d", rec.Code)
	}

	rec = performRequest(s.router, http.MethodPost, "/responses", token, map[string]any{"source_text": "x", "tone": "FURIOUS"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on invalid tone, got %d", rec.Code)
	}

	rec = performRequest(s.router, http.MethodPost, "/responses", token, map[string]any{"source_image": "data:image/png;base64,@@@"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on invalid image, got %d", rec.Code)
	}

	rec = performRequest(s.router, http.MethodGet, "/responses/missing/text", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on unknown response, got %d", rec.Code)
	}

	s.llm.Err = errors.New("quota exceeded")
	rec = performRequest(s.router, http.MethodPost, "/responses", token, map[string]any{"source_text": "x"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on generation failure, got %d", rec.Code)
	}
	s.llm.Err = nil

	s.responses.insertErr = errors.New("connection reset")
	rec = performRequest(s.router, http.MethodPost, "/responses", token, map[string]any{"source_text": "x"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on persistence failure, got %d", rec.Code)
	}
	s.responses.insertErr = nil

	rec = performRequest(s.router, http.MethodGet, "/responses", token, nil)
	var feed feedEnvelope
	decodeBody(t, rec, &feed)
	if len(feed.Feed) != 0 {
		t.Fatalf("failures must leave the feed untouched, got %d items", len(feed.Feed))
	}
}

func TestResponseHandler_MemeFailureIsGeneric(t *testing.T) {
	s := newTestServer(t, testServerOptions{})
	token := s.signUp(t, "user@example.com").AccessToken

	rec := performRequest(s.router, http.MethodPost, "/responses", token, map[string]any{"source_text": "x"})
	var created responseEnvelope
	decodeBody(t, rec, &created)

	s.llm.ImageErr = errors.New("safety filter")
	rec = performRequest(s.router, http.MethodPost, "/responses/"+created.Response.ID+"/meme", token, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["error"] != "meme generation failed" {
		t.Fatalf("expected generic body, got %v", body)
	}

	// el boton vuelve a estar disponible
	s.llm.ImageErr = nil
	rec = performRequest(s.router, http.MethodPost, "/responses/"+created.Response.ID+"/meme", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
}

func TestResponseHandler_ConfigGate(t *testing.T) {
	s := newTestServer(t, testServerOptions{ConfigErr: &config.ConfigurationError{Missing: []string{"GEMINI_API_KEY"}}})
	sess, err := s.jwt.IssueSession(context.Background(), domain.User{ID: "u1", Email: "user@example.com"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	rec := performRequest(s.router, http.MethodPost, "/responses", sess.AccessToken, map[string]any{"source_text": "x"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if hint, _ := body["hint"].(string); !strings.Contains(hint, "GEMINI_API_KEY") {
		t.Fatalf("expected remediation hint, got %v", body)
	}
	if s.llm.StructuredCallCount() != 0 {
		t.Fatalf("gate must not reach the provider")
	}

	rec = performRequest(s.router, http.MethodGet, "/responses", sess.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reading the feed is not gated, got %d", rec.Code)
	}
}
