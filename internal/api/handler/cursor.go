package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/market-bridge/internal/api/storage"
)

// DecodeJobCursor parses a base64 "<created_at unix nanos>|<job_id>" cursor
func DecodeJobCursor(cursorStr string) (*storage.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	createdPart, jobID, ok := strings.Cut(string(decoded), "|")
	if !ok || jobID == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(createdPart, "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &storage.JobCursor{
		CreatedAt: time.Unix(0, createdAt),
		JobID:     jobID,
	}, nil
}

func EncodeJobCursor(cursor *storage.JobCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.JobID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
