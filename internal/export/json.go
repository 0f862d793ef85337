package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/sealtrack/internal/datastore"
)

type jsonExport struct {
	ExportedAt string         `json:"exported_at"`
	Count      int            `json:"count"`
	Activities []jsonActivity `json:"activities"`
}

type jsonActivity struct {
	ID          string   `json:"id"`
	Task        string   `json:"task"`
	Tags        []string `json:"tags"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time,omitempty"`
	DurationSec int64    `json:"duration_seconds"`
	Duration    string   `json:"duration"`
	Timezone    string   `json:"timezone,omitempty"`
	Running     bool     `json:"running,omitempty"`
}

func ToJSON(activities []datastore.Activity, path string) error {
	export := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(activities),
	}

	for _, a := range activities {
		secs := durationSeconds(a)
		tags := a.Tags
		if tags == nil {
			tags = []string{}
		}
		export.Activities = append(export.Activities, jsonActivity{
			ID:          a.ID,
			Task:        a.Task,
			Tags:        tags,
			StartTime:   formatTime(a.Start(), a.Timezone),
			EndTime:     endTime(a),
			DurationSec: secs,
			Duration:    formatDuration(secs),
			Timezone:    a.Timezone,
			Running:     a.Running(),
		})
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}
