package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/postpilothq/postpilot/internal/models"
)

type MediaAssetRepository interface {
	Create(ctx context.Context, tx *sql.Tx, asset *models.MediaAsset) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.MediaAsset, error)
	CheckByUserID(ctx context.Context, assetID, userID int64) (bool, error)
}

type mediaAssetRepository struct {
	db *sql.DB
}

func NewMediaAssetRepository(db *sql.DB) MediaAssetRepository {
	return &mediaAssetRepository{db: db}
}

func (r *mediaAssetRepository) Create(ctx context.Context, tx *sql.Tx, asset *models.MediaAsset) (int64, error) {
	query := `
		INSERT INTO media_assets (user_id, file_name, file_type, file_size, file_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, asset.UserID, asset.FileName, asset.FileType, asset.FileSize, asset.FileURL).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, asset.UserID, asset.FileName, asset.FileType, asset.FileSize, asset.FileURL).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *mediaAssetRepository) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	query := `SELECT id, user_id, file_name, file_type, file_size, file_url, created_at FROM media_assets WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var asset models.MediaAsset
	err := row.Scan(&asset.ID, &asset.UserID, &asset.FileName, &asset.FileType, &asset.FileSize, &asset.FileURL, &asset.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &asset, nil
}

func (r *mediaAssetRepository) CheckByUserID(ctx context.Context, assetID, userID int64) (bool, error) {
	query := "SELECT 1 FROM media_assets WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, assetID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

type PostMediaRepository interface {
	Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error
	ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error)
}

type postMediaRepository struct {
	db *sql.DB
}

func NewPostMediaRepository(db *sql.DB) PostMediaRepository {
	return &postMediaRepository{db: db}
}

func (r *postMediaRepository) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	query := `INSERT INTO post_media (post_id, asset_id, display_order) VALUES ($1, $2, $3)`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, pm.PostID, pm.AssetID, pm.DisplayOrder)
	} else {
		_, err = r.db.ExecContext(ctx, query, pm.PostID, pm.AssetID, pm.DisplayOrder)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postMediaRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error) {
	query := `SELECT post_id, asset_id, display_order, created_at FROM post_media WHERE post_id = $1 ORDER BY display_order ASC`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var medias []*models.PostMedia
	for rows.Next() {
		var pm models.PostMedia
		err := rows.Scan(&pm.PostID, &pm.AssetID, &pm.DisplayOrder, &pm.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		medias = append(medias, &pm)
	}
	return medias, nil
}
