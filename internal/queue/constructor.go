package queue

import (
	"github.com/postpilothq/postpilot/internal/ai"
	"github.com/postpilothq/postpilot/internal/repository"
)

type Queue struct {
	pr       repository.PostRepository
	settings repository.SettingsRepository
	gen      *ai.Generator
}

func NewQueue(
	pr repository.PostRepository,
	settings repository.SettingsRepository,
	gen *ai.Generator) *Queue {
	return &Queue{
		pr:       pr,
		settings: settings,
		gen:      gen,
	}
}

const TaskTypeGenerateCaption = "generate:caption"

type GenerateCaptionPayload struct {
	PostID int64  `json:"post_id"`
	UserID int64  `json:"user_id"`
	Topic  string `json:"topic"`
	Tone   string `json:"tone"`
}
