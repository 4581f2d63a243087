// Package session manages ephemeral, TTL-bound LSP session records.
package session

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a session does not exist or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrForbidden is returned when a session belongs to a different caller.
	ErrForbidden = errors.New("session does not belong to user")
)

// Session is the externally stored record binding a caller to an
// interactive sandbox container. OwnerID is immutable once set.
type Session struct {
	ID             string     `json:"-"`
	OwnerID        string     `json:"ownerId"`
	ContainerID    string     `json:"containerId,omitempty"`
	WorkspaceRoot  string     `json:"workspaceRoot"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
	UploadedFiles  []string   `json:"uploadedFiles,omitempty"`
}

// HasFile reports whether a file name was already recorded for this session.
func (s *Session) HasFile(name string) bool {
	for _, f := range s.UploadedFiles {
		if f == name {
			return true
		}
	}
	return false
}
