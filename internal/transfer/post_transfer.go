package transfer

type PostCreation struct {
	Body          string   `json:"body"`
	Title         string   `json:"title"`
	Hashtags      []string `json:"hashtags"`
	Mentions      []string `json:"mentions"`
	Platforms     []string `json:"platforms"`
	ScheduledTime string   `json:"scheduled_time"`
	Draft         bool     `json:"draft"`
	AssetIDs      []int64  `json:"asset_ids"`
}

type PublishNowResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type SchedulerStatus struct {
	Running bool   `json:"running"`
	NextRun string `json:"next_run,omitempty"`
}

type GenerateRequest struct {
	Topic string `json:"topic"`
	Tone  string `json:"tone"`
	Async bool   `json:"async"`
}

type SettingsUpdate struct {
	Timezone string `json:"timezone"`
	AITone   string `json:"ai_tone"`
}
