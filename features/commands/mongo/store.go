package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"goa.design/clue/health"

	"goa.design/agentdesk/runtime/commands"
)

const (
	defaultProjectsCollection = "projects"
	defaultFilesCollection    = "files"
	defaultMessagesCollection = "messages"
	defaultOpTimeout          = 5 * time.Second
	clientName                = "commands-mongo"
)

type (
	// Options configures the Store.
	Options struct {
		Client             *mongodriver.Client
		Database           string
		ProjectsCollection string
		FilesCollection    string
		MessagesCollection string
		// Timeout bounds every database operation. Defaults to 5s.
		Timeout time.Duration
	}

	// Store implements commands.Commands on MongoDB.
	Store struct {
		client   *mongodriver.Client
		projects *mongodriver.Collection
		files    *mongodriver.Collection
		messages *mongodriver.Collection
		timeout  time.Duration
		now      func() time.Time
	}

	projectDocument struct {
		ID          string    `bson:"_id"`
		Name        string    `bson:"name"`
		Description string    `bson:"description,omitempty"`
		Status      string    `bson:"status"`
		CreatedAt   time.Time `bson:"created_at"`
	}

	fileDocument struct {
		ID        string    `bson:"_id"`
		Name      string    `bson:"name"`
		Type      string    `bson:"type"`
		ProjectID string    `bson:"project_id,omitempty"`
		Content   string    `bson:"content"`
		CreatedAt time.Time `bson:"created_at"`
	}

	messageDocument struct {
		ID        string    `bson:"_id"`
		Role      string    `bson:"role"`
		Content   string    `bson:"content"`
		SessionID string    `bson:"session_id"`
		CreatedAt time.Time `bson:"created_at"`
	}
)

var (
	_ commands.Commands = (*Store)(nil)
	_ health.Pinger     = (*Store)(nil)
)

// New returns a Store and creates the indexes it relies on.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	db := opts.Client.Database(opts.Database)
	s := &Store{
		client:   opts.Client,
		projects: db.Collection(orDefault(opts.ProjectsCollection, defaultProjectsCollection)),
		files:    db.Collection(orDefault(opts.FilesCollection, defaultFilesCollection)),
		messages: db.Collection(orDefault(opts.MessagesCollection, defaultMessagesCollection)),
		timeout:  opts.Timeout,
		now:      time.Now,
	}
	if s.timeout <= 0 {
		s.timeout = defaultOpTimeout
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return s, nil
}

// Name implements health.Pinger.
func (s *Store) Name() string { return clientName }

// Ping implements health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// CreateProject implements commands.Commands.
func (s *Store) CreateProject(ctx context.Context, name, description string, status commands.ProjectStatus) (*commands.Project, error) {
	if name == "" {
		return nil, errors.New("project name is required")
	}
	if status == "" {
		status = commands.ProjectActive
	}
	doc := projectDocument{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Status:      string(status),
		CreatedAt:   s.now().UTC(),
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.projects.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return doc.toProject(), nil
}

// GetProjects implements commands.Commands. Projects are returned in
// creation order.
func (s *Store) GetProjects(ctx context.Context) ([]*commands.Project, error) {
	var docs []projectDocument
	if err := s.findAll(ctx, s.projects, &docs); err != nil {
		return nil, fmt.Errorf("find projects: %w", err)
	}
	out := make([]*commands.Project, len(docs))
	for i, d := range docs {
		out[i] = d.toProject()
	}
	return out, nil
}

// CreateFile implements commands.Commands.
func (s *Store) CreateFile(ctx context.Context, name, fileType, projectID, content string) (*commands.File, error) {
	if name == "" {
		return nil, errors.New("file name is required")
	}
	doc := fileDocument{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      fileType,
		ProjectID: projectID,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.files.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}
	return doc.toFile(), nil
}

// GetAllFiles implements commands.Commands.
func (s *Store) GetAllFiles(ctx context.Context) ([]*commands.File, error) {
	var docs []fileDocument
	if err := s.findAll(ctx, s.files, &docs); err != nil {
		return nil, fmt.Errorf("find files: %w", err)
	}
	out := make([]*commands.File, len(docs))
	for i, d := range docs {
		out[i] = d.toFile()
	}
	return out, nil
}

// StoreMessage implements commands.Commands.
func (s *Store) StoreMessage(ctx context.Context, role commands.Role, content, sessionID string) (string, error) {
	doc := messageDocument{
		ID:        uuid.NewString(),
		Role:      string(role),
		Content:   content,
		SessionID: sessionID,
		CreatedAt: s.now().UTC(),
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return doc.ID, nil
}

// Messages returns the transcript of a chat session in order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]commands.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.messages.Find(ctx, bson.M{"session_id": sessionID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	out := make([]commands.Message, len(docs))
	for i, d := range docs {
		out[i] = commands.Message{
			ID:        d.ID,
			Role:      commands.Role(d.Role),
			Content:   d.Content,
			SessionID: d.SessionID,
			CreatedAt: d.CreatedAt,
		}
	}
	return out, nil
}

func (s *Store) findAll(ctx context.Context, coll *mongodriver.Collection, out any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.files.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "project_id", Value: 1}},
	}); err != nil {
		return err
	}
	_, err := s.messages.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (d projectDocument) toProject() *commands.Project {
	return &commands.Project{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Status:      commands.ProjectStatus(d.Status),
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

func (d fileDocument) toFile() *commands.File {
	return &commands.File{
		ID:        d.ID,
		Name:      d.Name,
		Type:      d.Type,
		ProjectID: d.ProjectID,
		Content:   d.Content,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
