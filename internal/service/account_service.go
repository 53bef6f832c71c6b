package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	config "github.com/postpilothq/postpilot/configs"
	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/publisher"
	"github.com/postpilothq/postpilot/internal/repository"
	"github.com/postpilothq/postpilot/pkg/utils"
)

type AccountService interface {
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Verify(ctx context.Context, userID, accountID int64) (bool, error)
	Delete(ctx context.Context, userID, accountID int64) error
}

type accountService struct {
	cfg      config.Config
	sa       repository.SocialAccountRepository
	registry *publisher.Registry
}

func NewAccountService(cfg config.Config, sa repository.SocialAccountRepository, registry *publisher.Registry) AccountService {
	return &accountService{
		cfg:      cfg,
		sa:       sa,
		registry: registry,
	}
}

func (s *accountService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	var err error

	if userID == 0 {
		err = errors.New("UserID is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	accounts, err := s.sa.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Error getting social accounts")
	}

	return accounts, nil
}

// Verify asks the platform whether the stored credentials still work. It
// has no side effects on the account.
func (s *accountService) Verify(ctx context.Context, userID, accountID int64) (bool, error) {
	account, err := s.ownedAccount(ctx, userID, accountID)
	if err != nil {
		return false, err
	}

	pub, ok := s.registry.Get(account.Platform)
	if !ok {
		return false, fmt.Errorf("platform %s is not supported", account.Platform)
	}

	accessToken, err := utils.Decrypt(account.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return false, fmt.Errorf("unable to decrypt account credentials")
	}

	return pub.VerifyConnection(ctx, publisher.Account{
		UserID:      account.UserID,
		Platform:    account.Platform,
		RemoteID:    account.AccountID,
		Username:    account.AccountUsername,
		AccessToken: accessToken,
	})
}

func (s *accountService) Delete(ctx context.Context, userID, accountID int64) error {
	if _, err := s.ownedAccount(ctx, userID, accountID); err != nil {
		return err
	}

	err := s.sa.Remove(ctx, accountID)
	if err != nil {
		return fmt.Errorf("Error removing account Info")
	}

	return nil
}

func (s *accountService) ownedAccount(ctx context.Context, userID, accountID int64) (*models.SocialAccount, error) {
	var err error

	if userID == 0 {
		err = errors.New("UserID is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	if accountID == 0 {
		err = errors.New("AccountID is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}

	if !isValid {
		err = errors.New("Social account doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	account, err := s.sa.GetByID(ctx, accountID)
	if err != nil || account == nil {
		return nil, fmt.Errorf("Unable to get social account info")
	}

	return account, nil
}
