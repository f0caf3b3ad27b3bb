package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"libertax/internal/domain"
)

// ResponseRepository persiste las respuestas generadas de cada usuario.
type ResponseRepository interface {
	ListByUser(ctx context.Context, userID string) ([]domain.StoredResponse, error)
	// Insert guarda la fila y devuelve la version con id y created_at asignados por la base.
	Insert(ctx context.Context, resp domain.StoredResponse) (domain.StoredResponse, error)
	// UpdateImageURL solo escribe si la fila no tenia imagen; devuelve ErrNotFound en otro caso.
	UpdateImageURL(ctx context.Context, id, userID, url string) error
	GetByID(ctx context.Context, id, userID string) (domain.StoredResponse, error)
}

type PgResponseRepository struct {
	pool *pgxpool.Pool
}

func NewPgResponseRepository(pool *pgxpool.Pool) *PgResponseRepository {
	return &PgResponseRepository{pool: pool}
}

const responseColumns = `
	id, user_id, username, original_text, COALESCE(original_image, ''), generated_content,
	COALESCE(meme_caption, ''), COALESCE(generated_image_url, ''), tone, persona,
	fallacies, collectivism_score, sources, created_at`

func (r *PgResponseRepository) ListByUser(ctx context.Context, userID string) ([]domain.StoredResponse, error) {
	query := `SELECT ` + responseColumns + `
		FROM responses
		WHERE user_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.StoredResponse, 0)
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PgResponseRepository) Insert(ctx context.Context, resp domain.StoredResponse) (domain.StoredResponse, error) {
	fallacies, sources, err := marshalResponseJSON(resp)
	if err != nil {
		return domain.StoredResponse{}, err
	}

	const query = `
		INSERT INTO responses (
			user_id, username, original_text, original_image, generated_content, meme_caption,
			generated_image_url, tone, persona, fallacies, collectivism_score, sources
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`
	err = r.pool.QueryRow(ctx, query,
		resp.UserID,
		resp.Username,
		resp.OriginalText,
		resp.OriginalImage,
		resp.GeneratedContent,
		resp.MemeCaption,
		resp.GeneratedImageURL,
		string(resp.Tone),
		string(resp.Persona),
		fallacies,
		domain.ClampScore(resp.CollectivismScore),
		sources,
	).Scan(&resp.ID, &resp.CreatedAt)
	if err != nil {
		return domain.StoredResponse{}, err
	}
	resp.CollectivismScore = domain.ClampScore(resp.CollectivismScore)
	return resp, nil
}

func (r *PgResponseRepository) UpdateImageURL(ctx context.Context, id, userID, url string) error {
	const query = `
		UPDATE responses
		SET generated_image_url = $3
		WHERE id = $1 AND user_id = $2 AND generated_image_url IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, id, userID, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgResponseRepository) GetByID(ctx context.Context, id, userID string) (domain.StoredResponse, error) {
	query := `SELECT ` + responseColumns + ` FROM responses WHERE id = $1 AND user_id = $2`
	resp, err := scanResponse(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StoredResponse{}, ErrNotFound
	}
	return resp, err
}

func marshalResponseJSON(resp domain.StoredResponse) ([]byte, []byte, error) {
	fallacies := resp.Fallacies
	if fallacies == nil {
		fallacies = []domain.Fallacy{}
	}
	sources := resp.Sources
	if sources == nil {
		sources = []domain.GroundingSource{}
	}
	f, err := json.Marshal(fallacies)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal fallacies: %w", err)
	}
	s, err := json.Marshal(sources)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal sources: %w", err)
	}
	return f, s, nil
}

func scanResponse(row pgx.Row) (domain.StoredResponse, error) {
	var (
		resp            domain.StoredResponse
		tone, persona   string
		fallacies, srcs []byte
	)
	if err := row.Scan(
		&resp.ID,
		&resp.UserID,
		&resp.Username,
		&resp.OriginalText,
		&resp.OriginalImage,
		&resp.GeneratedContent,
		&resp.MemeCaption,
		&resp.GeneratedImageURL,
		&tone,
		&persona,
		&fallacies,
		&resp.CollectivismScore,
		&srcs,
		&resp.CreatedAt,
	); err != nil {
		return domain.StoredResponse{}, err
	}
	resp.Tone = domain.Tone(tone)
	resp.Persona = domain.Persona(persona)
	resp.Fallacies = []domain.Fallacy{}
	resp.Sources = []domain.GroundingSource{}
	if len(fallacies) > 0 {
		if err := json.Unmarshal(fallacies, &resp.Fallacies); err != nil {
			return domain.StoredResponse{}, fmt.Errorf("decode fallacies: %w", err)
		}
	}
	if len(srcs) > 0 {
		if err := json.Unmarshal(srcs, &resp.Sources); err != nil {
			return domain.StoredResponse{}, fmt.Errorf("decode sources: %w", err)
		}
	}
	return resp, nil
}
