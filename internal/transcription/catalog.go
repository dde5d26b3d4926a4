package transcription

import (
	"strings"
	"time"
)

// Model describes a selectable speech recognition model.
type Model struct {
	ID          string
	DisplayName string
	Size        string
	Description string
}

// Models lists the supported whisper models, recommended first.
var Models = []Model{
	{ID: "whisper-small", DisplayName: "Whisper Small (Multilingual)", Size: "~244MB", Description: "Good accuracy, supports multiple languages (recommended)"},
	{ID: "whisper-medium", DisplayName: "Whisper Medium (Multilingual)", Size: "~769MB", Description: "High accuracy, supports multiple languages"},
	{ID: "whisper-large-v3", DisplayName: "Whisper Large v3 (Multilingual)", Size: "~1550MB", Description: "Highest accuracy, supports multiple languages"},
	{ID: "whisper-base", DisplayName: "Whisper Base (Multilingual)", Size: "~74MB", Description: "Faster processing, supports multiple languages"},
	{ID: "whisper-base.en", DisplayName: "Whisper Base (English)", Size: "~74MB", Description: "Faster processing, English only"},
	{ID: "whisper-small.en", DisplayName: "Whisper Small (English)", Size: "~244MB", Description: "Good accuracy, English only"},
	{ID: "whisper-medium.en", DisplayName: "Whisper Medium (English)", Size: "~769MB", Description: "High accuracy, English only"},
	{ID: "whisper-large-v3-turbo", DisplayName: "Whisper Large v3 Turbo (Multilingual)", Size: "~809MB", Description: "Optimized large model, faster than regular large"},
}

// LookupModel returns the catalog entry for id.
func LookupModel(id string) (Model, bool) {
	for _, m := range Models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// EngineModel strips the catalog prefix, e.g. "whisper-large-v3" becomes
// "large-v3".
func EngineModel(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return strings.TrimPrefix(id, "whisper-")
}

const minEstimate = 10 * time.Second

// Estimate predicts processing time for audio of the given duration. Larger
// models run slower than real time.
func Estimate(modelID string, audio time.Duration) time.Duration {
	factor := 1.5
	switch id := strings.ToLower(modelID); {
	case strings.Contains(id, "large"):
		factor = 4
	case strings.Contains(id, "medium"):
		factor = 3
	case strings.Contains(id, "small"):
		factor = 2
	}
	return max(time.Duration(float64(audio)*factor), minEstimate)
}
