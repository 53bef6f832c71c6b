package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	cfg "github.com/postpilothq/postpilot/configs"
	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/repository"
)

// MediaService sniffs, stores and records post media. Objects live in a
// Cloudflare R2 bucket behind its S3-compatible API.
type MediaService struct {
	config cfg.Config
	ma     repository.MediaAssetRepository
	pm     repository.PostMediaRepository
}

func NewMediaService(cfg cfg.Config, ma repository.MediaAssetRepository, pm repository.PostMediaRepository) *MediaService {
	return &MediaService{config: cfg, ma: ma, pm: pm}
}

func (r *MediaService) r2Client(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.R2.AccessKey, r.config.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.R2.AccountID))
	}), nil
}

func (r *MediaService) UploadToR2(ctx context.Context, key string, file []byte, contentType string) error {
	client, err := r.r2Client(ctx)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(contentType),
	}

	_, err = client.PutObject(ctx, input)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

// ProcessFiles uploads each file and links it to the post, continuing the
// display order after any already-attached assets.
func (r *MediaService) ProcessFiles(ctx context.Context, tx *sql.Tx, userID, postID int64, orderOffset int, files []*multipart.FileHeader) error {
	allowedTypes := map[string]struct{}{
		"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {},
	}

	for i, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return fmt.Errorf("error opening file: %w", err)
		}
		defer fileContent.Close()

		fileBytes, err := io.ReadAll(fileContent)
		if err != nil {
			return fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return fmt.Errorf("unsupported file type: %w", err)
		}
		if _, ok := allowedTypes[fileType.Extension]; !ok {
			return fmt.Errorf("file type %s is not allowed", fileType.Extension)
		}

		assetID, err := r.saveFile(ctx, tx, userID, fileType.MIME.Value, fileBytes)
		if err != nil {
			return fmt.Errorf("error uploading file: %w", err)
		}

		postMedia := models.PostMedia{
			PostID:       postID,
			AssetID:      assetID,
			DisplayOrder: orderOffset + i,
		}
		if err := r.pm.Create(ctx, tx, &postMedia); err != nil {
			return fmt.Errorf("error saving media file: %w", err)
		}
	}
	return nil
}

func (r *MediaService) saveFile(ctx context.Context, tx *sql.Tx, userID int64, contentType string, file []byte) (int64, error) {
	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	if err := r.UploadToR2(ctx, id, file, contentType); err != nil {
		return 0, err
	}

	ma := models.MediaAsset{
		UserID:   userID,
		FileName: id,
		FileType: contentType,
		FileSize: int64(len(file)),
		FileURL:  fmt.Sprintf("https://%s.r2.dev/%s", r.config.R2.BucketName, id),
	}

	assetID, err := r.ma.Create(ctx, tx, &ma)
	if err != nil {
		return 0, err
	}

	return assetID, nil
}
