package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/postpilothq/postpilot/internal/models"
)

func (j *Queue) HandleGenerateCaptionTask(ctx context.Context, task *asynq.Task) error {
	var payload GenerateCaptionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return j.GenerateCaption(ctx, payload)
}

// GenerateCaption drafts the body for a draft post. Posts that already
// left the draft state are never touched.
func (j *Queue) GenerateCaption(ctx context.Context, payload GenerateCaptionPayload) error {
	post, err := j.pr.GetByID(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		slog.Info("post for caption generation no longer exists", "post_id", payload.PostID)
		return nil
	}
	if post.UserID != payload.UserID {
		return errors.New("post belongs to another user")
	}
	if post.Status != models.PostStatusDraft {
		return errors.New("only draft posts can be regenerated")
	}

	tone := payload.Tone
	if tone == "" {
		if settings, ok, err := j.settings.GetByUserID(ctx, payload.UserID); err == nil && ok {
			tone = settings.AITone
		}
	}

	body, err := j.gen.GeneratePost(ctx, payload.Topic, tone)
	if err != nil {
		slog.Error("caption generation failed", "post_id", payload.PostID, "error", err.Error())
		return err
	}

	return j.pr.UpdateBody(ctx, post.ID, body)
}
