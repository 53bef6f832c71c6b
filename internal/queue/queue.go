package queue

import (
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

func EnqueueGenerateCaption(asynqClient *asynq.Client, payload GenerateCaptionPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeGenerateCaption, taskPayload)

	_, err = asynqClient.Enqueue(task)
	if err != nil {
		return err
	}

	slog.Info("caption generation task enqueued", "post_id", payload.PostID)
	return nil
}
