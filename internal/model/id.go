package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var taskIDRegex = regexp.MustCompile(`^task_[0-9]{10}_[0-9a-f]{8}$`)

// GenerateTaskID returns a fresh task id of the form
// task_<unix-seconds>_<8 hex chars>. The random suffix keeps ids unique
// across rapid enqueues within the same second.
func GenerateTaskID() (string, error) {
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return fmt.Sprintf("task_%010d_%s", time.Now().Unix(), hex.EncodeToString(randomBytes)), nil
}

// IsGeneratedTaskID reports whether id matches the generated form. Caller
// -assigned ids of any other shape are accepted everywhere else as-is.
func IsGeneratedTaskID(id string) bool {
	return taskIDRegex.MatchString(id)
}

// TaskIDTimestamp extracts the creation time embedded in a generated id.
func TaskIDTimestamp(id string) (time.Time, error) {
	if !IsGeneratedTaskID(id) {
		return time.Time{}, fmt.Errorf("not a generated task id: %s", id)
	}
	tsStr := id[len("task_") : len("task_")+10]
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp from id %s: %w", id, err)
	}
	return time.Unix(ts, 0), nil
}
