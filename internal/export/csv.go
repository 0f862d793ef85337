package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sadopc/sealtrack/internal/datastore"
)

// ToCSV writes one row per activity. Running activities have an empty End
// and a zero duration.
func ToCSV(activities []datastore.Activity, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"ID", "Task", "Tags", "Start", "End", "Duration (s)", "Duration", "Timezone"}); err != nil {
		return err
	}

	for _, a := range activities {
		secs := durationSeconds(a)
		row := []string{
			a.ID,
			a.Task,
			strings.Join(a.Tags, ";"),
			formatTime(a.Start(), a.Timezone),
			endTime(a),
			fmt.Sprintf("%d", secs),
			formatDuration(secs),
			a.Timezone,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

func durationSeconds(a datastore.Activity) int64 {
	if a.Running() {
		return 0
	}
	return int64(a.Duration(time.Time{}).Seconds())
}

func endTime(a datastore.Activity) string {
	end := a.End()
	if end == nil {
		return ""
	}
	return formatTime(*end, a.Timezone)
}

// formatTime renders t in the activity's own zone when it is known,
// otherwise in local time.
func formatTime(t time.Time, zone string) string {
	if zone != "" {
		if loc, err := time.LoadLocation(zone); err == nil {
			return t.In(loc).Format(time.RFC3339)
		}
	}
	return t.Local().Format(time.RFC3339)
}

func formatDuration(secs int64) string {
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
