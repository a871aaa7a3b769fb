package api

import (
	"encoding/json"

	"github.com/starford/ansuz/internal/models"
)

// FileListItem is a lightweight playbook file descriptor.
type FileListItem struct {
	Name     string `json:"name"`
	Sections int    `json:"sections"`
}

// FileListResponse wraps the file listing.
type FileListResponse struct {
	Files []FileListItem `json:"files"`
}

// FileDetail is the full file response payload.
type FileDetail struct {
	Name     string            `json:"name"`
	Sections []*models.Section `json:"sections"`
}

// ContextResponse wraps a context selection preview.
type ContextResponse struct {
	Sections   []*models.Section `json:"sections"`
	Characters int               `json:"characters"`
}

// TurnRequest is the body of POST /turn: the turn log plus the optional
// raw reflection output (when the caller runs the reasoner itself).
type TurnRequest struct {
	Log        models.TurnLog  `json:"log"`
	Reflection json.RawMessage `json:"reflection,omitempty"`
}
