package models

// SessionStatus represents the status of a recording session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusParsing  SessionStatus = "parsing"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
)

// RecordingSession is a parsed, queryable recording.
type RecordingSession struct {
	ID               string        `json:"id"`
	FileID           string        `json:"fileId"`
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	MessageCount     int           `json:"messageCount,omitempty"`
	TopicCount       int           `json:"topicCount,omitempty"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	StartTime        *Time         `json:"startTime,omitempty"`
	EndTime          *Time         `json:"endTime,omitempty"`
	ParserName       string        `json:"parserName,omitempty"`
	Errors           []ParseError  `json:"errors,omitempty"`
}

// ParseError represents an error encountered during parsing.
type ParseError struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// TimeRange is the span of receive times in a recording.
type TimeRange struct {
	Start Time `json:"start"`
	End   Time `json:"end"`
}

// NewRecordingSession creates a new session in pending status.
func NewRecordingSession(id, fileID string) *RecordingSession {
	return &RecordingSession{
		ID:       id,
		FileID:   fileID,
		Status:   SessionStatusPending,
		Progress: 0,
		Errors:   make([]ParseError, 0),
	}
}
