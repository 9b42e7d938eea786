// Package inmem provides a process-local implementation of commands.Commands.
//
// It backs tests and the CLI when no database is configured. Failures can be
// injected per call to exercise error paths in callers.
package inmem

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/agentdesk/runtime/commands"
)

type (
	// Store is an in-memory commands.Commands. It is safe for concurrent use.
	Store struct {
		mu       sync.RWMutex
		projects []*commands.Project
		files    []*commands.File
		messages []*commands.Message
		fail     FailFunc
		now      func() time.Time
	}

	// FailFunc decides whether a call fails. op is the command name (for
	// example "CreateFile") and subject its main argument (the project or
	// file name, or the message content).
	FailFunc func(op, subject string) error

	// Option configures a Store.
	Option func(*Store)
)

// WithFailures installs a failure injector.
func WithFailures(fn FailFunc) Option {
	return func(s *Store) { s.fail = fn }
}

// WithClock overrides the clock used for CreatedAt timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ commands.Commands = (*Store)(nil)

// CreateProject implements commands.Commands.
func (s *Store) CreateProject(ctx context.Context, name, description string, status commands.ProjectStatus) (*commands.Project, error) {
	if err := s.check(ctx, "CreateProject", name); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.New("project name is required")
	}
	if status == "" {
		status = commands.ProjectActive
	}
	p := &commands.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Status:      status,
		CreatedAt:   s.now().UTC(),
	}
	s.mu.Lock()
	s.projects = append(s.projects, p)
	s.mu.Unlock()
	out := *p
	return &out, nil
}

// GetProjects implements commands.Commands.
func (s *Store) GetProjects(ctx context.Context) ([]*commands.Project, error) {
	if err := s.check(ctx, "GetProjects", ""); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*commands.Project, len(s.projects))
	for i, p := range s.projects {
		cp := *p
		out[i] = &cp
	}
	return out, nil
}

// CreateFile implements commands.Commands.
func (s *Store) CreateFile(ctx context.Context, name, fileType, projectID, content string) (*commands.File, error) {
	if err := s.check(ctx, "CreateFile", name); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.New("file name is required")
	}
	f := &commands.File{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      fileType,
		ProjectID: projectID,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.files = append(s.files, f)
	s.mu.Unlock()
	out := *f
	return &out, nil
}

// GetAllFiles implements commands.Commands.
func (s *Store) GetAllFiles(ctx context.Context) ([]*commands.File, error) {
	if err := s.check(ctx, "GetAllFiles", ""); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*commands.File, len(s.files))
	for i, f := range s.files {
		cp := *f
		out[i] = &cp
	}
	return out, nil
}

// StoreMessage implements commands.Commands.
func (s *Store) StoreMessage(ctx context.Context, role commands.Role, content, sessionID string) (string, error) {
	if err := s.check(ctx, "StoreMessage", content); err != nil {
		return "", err
	}
	m := &commands.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		SessionID: sessionID,
		CreatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
	return m.ID, nil
}

// Messages returns the stored messages for a session in insertion order.
func (s *Store) Messages(sessionID string) []commands.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []commands.Message
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, *m)
		}
	}
	return out
}

func (s *Store) check(ctx context.Context, op, subject string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.fail != nil {
		return s.fail(op, subject)
	}
	return nil
}
