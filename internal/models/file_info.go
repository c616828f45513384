// Package models contains domain types for the plot visualizer.
package models

import "time"

// FileStatus is the lifecycle state of an uploaded recording file.
type FileStatus string

const (
	FileStatusUploaded FileStatus = "uploaded"
	FileStatusParsed   FileStatus = "parsed"
	FileStatusError    FileStatus = "error"
)

// FileInfo represents metadata about an uploaded recording.
type FileInfo struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Size       int64      `json:"size" yaml:"size"`
	UploadedAt time.Time  `json:"uploadedAt" yaml:"uploadedAt"`
	Status     FileStatus `json:"status" yaml:"status"`
}
