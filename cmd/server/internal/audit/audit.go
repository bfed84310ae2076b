// Package audit records every summary delivery attempt to a rotating
// JSON-lines log, so operators can reconstruct what was posted where.
package audit

import (
	"encoding/json"
	"log"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger appends delivery records to a rotating file.
type Logger struct {
	logger *log.Logger
	now    func() time.Time
}

// NewLogger creates a delivery audit logger under dir. Rotation keeps
// files bounded in size and age.
func NewLogger(dir string) *Logger {
	writer := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "deliveries.log"),
		MaxSize:    50, // MB
		MaxBackups: 10,
		MaxAge:     90, // days
		Compress:   true,
	}

	return &Logger{
		logger: log.New(writer, "", 0), // records carry their own timestamp
		now:    time.Now,
	}
}

// LogDelivery records one delivery attempt. summaryChars is the length
// of the posted summary; the text itself is not logged.
func (a *Logger) LogDelivery(taskID, meetingID, roomID, source string, summaryChars int, err error) {
	record := map[string]interface{}{
		"timestamp":     a.now().UTC().Format(time.RFC3339),
		"task_id":       taskID,
		"meeting_id":    meetingID,
		"room_id":       roomID,
		"source":        source,
		"summary_chars": summaryChars,
		"result":        "success",
	}
	if err != nil {
		record["result"] = "failed"
		record["error_message"] = err.Error()
	}

	data, _ := json.Marshal(record)
	a.logger.Println(string(data))
}

// LogSweep records one automatic sweep run.
func (a *Logger) LogSweep(examined, processed, failed int) {
	record := map[string]interface{}{
		"timestamp": a.now().UTC().Format(time.RFC3339),
		"event":     "sweep",
		"examined":  examined,
		"processed": processed,
		"failed":    failed,
	}

	data, _ := json.Marshal(record)
	a.logger.Println(string(data))
}
