// Package commands defines the command interface the orchestration core uses
// to reach the backend. The core treats every call as an opaque operation that
// either succeeds or fails; transaction and retry semantics belong to the
// implementation.
package commands

import (
	"context"
	"time"
)

type (
	// Commands is the backend surface capabilities mutate and query.
	// Implementations must be safe for concurrent use: the batch processor
	// dispatches calls from several goroutines.
	Commands interface {
		// CreateProject creates a project and returns it with its
		// backend-assigned ID.
		CreateProject(ctx context.Context, name, description string, status ProjectStatus) (*Project, error)
		// GetProjects lists every project.
		GetProjects(ctx context.Context) ([]*Project, error)
		// CreateFile stores a file. projectID may be empty for unfiled
		// content.
		CreateFile(ctx context.Context, name, fileType, projectID, content string) (*File, error)
		// GetAllFiles lists every file.
		GetAllFiles(ctx context.Context) ([]*File, error)
		// StoreMessage appends a chat message to the session transcript and
		// returns the message ID.
		StoreMessage(ctx context.Context, role Role, content, sessionID string) (string, error)
	}

	// Project is a dashboard project.
	Project struct {
		ID          string
		Name        string
		Description string
		Status      ProjectStatus
		CreatedAt   time.Time
	}

	// File is a piece of generated content, optionally attached to a project.
	File struct {
		ID        string
		Name      string
		Type      string
		ProjectID string
		Content   string
		CreatedAt time.Time
	}

	// Message is a stored chat message.
	Message struct {
		ID        string
		Role      Role
		Content   string
		SessionID string
		CreatedAt time.Time
	}

	// ProjectStatus is the lifecycle state of a project.
	ProjectStatus string

	// Role identifies the author of a chat message.
	Role string
)

const (
	// ProjectPlanning marks a project that has not started.
	ProjectPlanning ProjectStatus = "planning"
	// ProjectActive marks a project in progress.
	ProjectActive ProjectStatus = "active"
	// ProjectCompleted marks a finished project.
	ProjectCompleted ProjectStatus = "completed"

	// RoleUser is a message written by the user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by a capability.
	RoleAssistant Role = "assistant"
)

// File types written by the built-in capabilities.
const (
	FileTypeDocument      = "document"
	FileTypeSocialPost    = "social-post"
	FileTypeScheduledPost = "scheduled-post"
)

// ParseProjectStatus maps free text onto a ProjectStatus. ok is false when
// the text names no known status.
func ParseProjectStatus(s string) (ProjectStatus, bool) {
	switch ProjectStatus(s) {
	case ProjectPlanning, ProjectActive, ProjectCompleted:
		return ProjectStatus(s), true
	}
	return "", false
}
