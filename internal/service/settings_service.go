package service

import (
	"context"
	"fmt"

	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/repository"
)

type SettingsService interface {
	GetSettingsInfo(ctx context.Context, userID int64) (*models.Settings, error)
	UpdateSettings(ctx context.Context, userID int64, timezone, aiTone string) error
}

type settingsService struct {
	sr repository.SettingsRepository
}

func NewSettingsService(sr repository.SettingsRepository) SettingsService {
	return &settingsService{
		sr: sr,
	}
}

func (s *settingsService) GetSettingsInfo(ctx context.Context, userID int64) (*models.Settings, error) {
	settings, isExist, err := s.sr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Error getting settings")
	}

	if !isExist {
		return &models.Settings{UserID: userID, Timezone: "UTC"}, nil
	}

	return settings, nil
}

func (s *settingsService) UpdateSettings(ctx context.Context, userID int64, timezone, aiTone string) error {
	settings := &models.Settings{
		UserID:   userID,
		Timezone: timezone,
		AITone:   aiTone,
	}

	_, isExist, err := s.sr.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("Error getting settings")
	}

	if !isExist {
		if _, err := s.sr.Create(ctx, settings); err != nil {
			return fmt.Errorf("Error creating settings")
		}
		return nil
	}

	if err := s.sr.UpdateSettings(ctx, settings, userID); err != nil {
		return fmt.Errorf("Error updating settings")
	}
	return nil
}
