package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilothq/postpilot/internal/models"
)

type SettingsRepository interface {
	Create(ctx context.Context, settings *models.Settings) (int64, error)
	GetByUserID(ctx context.Context, userID int64) (*models.Settings, bool, error)
	UpdateSettings(ctx context.Context, s *models.Settings, userID int64) error
}

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Create(ctx context.Context, settings *models.Settings) (int64, error) {
	query := `
		INSERT INTO settings (user_id, timezone, ai_tone)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, settings.UserID, settings.Timezone, settings.AITone).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *settingsRepository) GetByUserID(ctx context.Context, userID int64) (*models.Settings, bool, error) {
	query := `SELECT id, user_id, timezone, ai_tone, created_at, updated_at FROM settings WHERE user_id = $1`
	row := r.db.QueryRowContext(ctx, query, userID)

	var settings models.Settings
	err := row.Scan(&settings.ID, &settings.UserID, &settings.Timezone, &settings.AITone, &settings.CreatedAt, &settings.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}

	return &settings, true, nil
}

func (r *settingsRepository) UpdateSettings(ctx context.Context, s *models.Settings, userID int64) error {
	query := `
		UPDATE settings
		SET timezone = $1,
			ai_tone = $2,
			updated_at = $3
		WHERE user_id = $4
	`
	_, err := r.db.ExecContext(ctx, query, s.Timezone, s.AITone, time.Now(), userID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
