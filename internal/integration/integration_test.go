package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"test-session-service/internal/app"
	"test-session-service/internal/domain"
	pgloader "test-session-service/internal/infra/postgres"
	pgmigrations "test-session-service/internal/infra/postgres/migrations"
	infraredis "test-session-service/internal/infra/redis"
	"test-session-service/internal/infra/remote"
)

func TestSubmitAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedTests(t, ctx, pgURL, sampleTest())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewCatalogLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	upstream := newWebhookStub(t)
	defer upstream.Close()
	client := remote.NewClient(upstream.URL, 5*time.Second)

	envelopes := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	service := app.NewService(app.ServiceDeps{
		Catalog:     infraredis.NewCatalogRepository(redisClient, loader, 5*time.Minute),
		Validator:   client,
		Definitions: client,
		Sink:        client,
		Envelopes:   envelopes,
	})

	att, access, err := service.Open(ctx, "belbin_9_individual", "tok-1")
	if err != nil || att == nil {
		t.Fatalf("open: %+v %v", access, err)
	}
	if err := att.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := att.SetProfileField(ctx, "sex", "female"); err != nil {
		t.Fatalf("set profile: %v", err)
	}
	if err := att.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := att.SetSelected(ctx, "b1", "a", true); err != nil {
		t.Fatalf("select: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := att.Increment(ctx, "b1", "a"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	att.Close(ctx)

	// A new page life resumes from Redis.
	resumed, _, err := service.Open(ctx, "belbin_9_individual", "tok-1")
	if err != nil || resumed == nil {
		t.Fatalf("reopen: %v", err)
	}
	if view := resumed.View(); view.StepIndex != 1 || view.Belbin["b1"].Scores["a"] != 10 {
		t.Fatalf("expected resumed progress, got %+v", view)
	}

	result, err := resumed.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.NextURL != "/test/belbin_9_individual/prepay?token=tok-1" {
		t.Fatalf("unexpected next url %s", result.NextURL)
	}
	if _, ok, _ := envelopes.Get(ctx, resumed.Key().String()); ok {
		t.Fatalf("expected envelope removed after submit")
	}

	body := upstream.submitted()
	if !strings.Contains(body, `"BELBIN_9_INDIVIDUAL":{"b1":{"a":10,"b":0}}`) {
		t.Fatalf("unexpected submission body %s", body)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "tests", "POSTGRES_PASSWORD": "testspass", "POSTGRES_DB": "testsdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://tests:testspass@%s:%s/testsdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedTests(t *testing.T, ctx context.Context, dsn string, tests ...domain.TestInfo) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := pgloader.UpsertTests(ctx, db, tests); err != nil {
		t.Fatalf("insert tests: %v", err)
	}
}

func sampleTest() domain.TestInfo {
	return domain.TestInfo{
		ID:               "belbin_9_individual",
		Title:            "Belbin",
		DefinitionSource: domain.SourceRemote,
	}
}

const belbinDefinition = `{
  "title": "Belbin",
  "sections": [
    {"type": "profile", "fields": [
      {"id": "firstName", "label": "نام", "type": "text", "required": true},
      {"id": "sex", "label": "جنسیت", "type": "select", "required": true, "options": [{"id": "male", "text": "مرد"}, {"id": "female", "text": "زن"}]}
    ]},
    {"type": "belbin_allocation", "rules": {"sum": 10, "requireSelection": true}, "blocks": [
      {"id": "b1", "items": [{"id": "a", "text": "A"}, {"id": "b", "text": "B"}]}
    ]}
  ]
}`

type webhookStub struct {
	*httptest.Server
	mu   sync.Mutex
	body string
}

// newWebhookStub fakes the upstream token, definition and answer webhooks.
func newWebhookStub(t *testing.T) *webhookStub {
	stub := &webhookStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/validate-test-token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"name":"Sara","family":"Ahmadi"}}`))
	})
	mux.HandleFunc("/webhook/test-definition", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"success":true,"data":{"definition":%s,"prefill":{}}}`, belbinDefinition)
	})
	mux.HandleFunc("/webhook/submit-answers", func(w http.ResponseWriter, r *http.Request) {
		var payload json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode submission: %v", err)
		}
		stub.mu.Lock()
		stub.body = string(payload)
		stub.mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true,"message":"Answers saved"}`))
	})
	stub.Server = httptest.NewServer(mux)
	return stub
}

func (s *webhookStub) submitted() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
