package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/agentdesk/runtime/commands"
)

var (
	testClient    *mongodriver.Client
	testContainer testcontainers.Container
	skipMongo     bool
)

func TestMain(m *testing.M) {
	setupMongo()
	code := m.Run()
	if testClient != nil {
		_ = testClient.Disconnect(context.Background())
	}
	if testContainer != nil {
		_ = testContainer.Terminate(context.Background())
	}
	os.Exit(code)
}

func setupMongo() {
	ctx := context.Background()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("docker not available: %v", r)
			}
		}()
		testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				ExposedPorts: []string{"27017/tcp"},
				WaitingFor:   wait.ForLog("Waiting for connections"),
				Tmpfs:        map[string]string{"/data/db": "rw"},
			},
			Started: true,
		})
	}()
	if err != nil {
		fmt.Printf("Docker not available, MongoDB tests will be skipped: %v\n", err)
		skipMongo = true
		return
	}
	host, err := testContainer.Host(ctx)
	if err != nil {
		skipMongo = true
		return
	}
	port, err := testContainer.MappedPort(ctx, "27017")
	if err != nil {
		skipMongo = true
		return
	}
	testClient, err = mongodriver.Connect(options.Client().ApplyURI(fmt.Sprintf("mongodb://%s:%s", host, port.Port())))
	if err != nil {
		skipMongo = true
	}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	if skipMongo {
		t.Skip("Docker not available, skipping MongoDB test")
	}
	db := testClient.Database("agentdesk_test")
	require.NoError(t, db.Drop(context.Background()))
	s, err := New(context.Background(), Options{Client: testClient, Database: "agentdesk_test"})
	require.NoError(t, err)
	return s
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(context.Background(), Options{Database: "x"})
	require.Error(t, err)
	_, err = New(context.Background(), Options{Client: &mongodriver.Client{}})
	require.Error(t, err)
}

func TestProjects(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Ping(ctx))
	require.Equal(t, "commands-mongo", s.Name())

	p, err := s.CreateProject(ctx, "Launch Plan", "spring launch", "")
	require.NoError(t, err)
	require.Equal(t, commands.ProjectActive, p.Status)
	require.NotEmpty(t, p.ID)

	_, err = s.CreateProject(ctx, "", "", commands.ProjectPlanning)
	require.Error(t, err)

	ps, err := s.GetProjects(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	require.Equal(t, p.ID, ps[0].ID)
	require.Equal(t, "spring launch", ps[0].Description)
}

func TestFilesAndMessages(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	f, err := s.CreateFile(ctx, "launch.md", commands.FileTypeDocument, "p1", "# Launch")
	require.NoError(t, err)
	files, err := s.GetAllFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, f.ID, files[0].ID)
	require.Equal(t, "# Launch", files[0].Content)
	require.Equal(t, "p1", files[0].ProjectID)

	_, err = s.StoreMessage(ctx, commands.RoleUser, "hello", "s1")
	require.NoError(t, err)
	_, err = s.StoreMessage(ctx, commands.RoleAssistant, "hi", "s2")
	require.NoError(t, err)
	msgs, err := s.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, commands.RoleUser, msgs[0].Role)
	require.Equal(t, "hello", msgs[0].Content)
}
