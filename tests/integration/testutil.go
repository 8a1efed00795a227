//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/ejmockler/frontier-meals/internal/api"
	"github.com/ejmockler/frontier-meals/internal/audit"
	"github.com/ejmockler/frontier-meals/internal/customers"
	"github.com/ejmockler/frontier-meals/internal/entitlements"
	"github.com/ejmockler/frontier-meals/internal/kiosk"
	"github.com/ejmockler/frontier-meals/internal/ratelimit"
	"github.com/ejmockler/frontier-meals/internal/redemption"
	"github.com/ejmockler/frontier-meals/internal/schedule"
	"github.com/ejmockler/frontier-meals/internal/tokens"
)

const (
	testAdminKey     = "test-admin-key"
	testSchedulerKey = "test-scheduler-key"
	// RedemptionMax is kept small so limiter tests stay fast.
	testRedemptionMax = 5
)

type TestEnv struct {
	Pool          *pgxpool.Pool
	Server        *httptest.Server
	SessionSvc    *kiosk.Service
	TokenSvc      *tokens.Service
	RedemptionSvc *redemption.Service
	Entitlements  entitlements.Repository
	Redemptions   redemption.Repository
	AuditRepo     *audit.Repository
}

// The environment is built once for the whole package and torn down in
// TestMain after every test has run. Tying teardown to the first
// caller's t.Cleanup would close the container while later tests still
// need it.
var (
	testEnv    *TestEnv
	teardowns  []func()
	setupError error
)

func TestMain(m *testing.M) {
	code := m.Run()
	for i := len(teardowns) - 1; i >= 0; i-- {
		teardowns[i]()
	}
	os.Exit(code)
}

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if setupError != nil {
		t.Fatalf("test env setup previously failed: %v", setupError)
	}
	if testEnv == nil {
		testEnv, setupError = buildTestEnv()
		if setupError != nil {
			t.Fatalf("setting up test env: %v", setupError)
		}
	}
	return testEnv
}

func buildTestEnv() (*TestEnv, error) {
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "meals_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}
	teardowns = append(teardowns, func() { pgContainer.Terminate(context.Background()) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/meals_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	teardowns = append(teardowns, pool.Close)

	m, err := migrate.New(fmt.Sprintf("file://%s", getMigrationsPath()), dsn)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	customerRepo := customers.NewRepository(pool)
	entitlementRepo := entitlements.NewRepository(pool)
	tokenRepo := tokens.NewRepository(pool)
	redemptionRepo := redemption.NewRepository(pool)
	sessionRepo := kiosk.NewRepository(pool)
	auditRepo := audit.NewRepository(pool)

	jwtManager := kiosk.NewJWTManager("integration-test-secret-32-chars!!")
	sessionSvc := kiosk.NewService(pool, sessionRepo, auditRepo, jwtManager, nil, time.Hour)
	sessionHandler := kiosk.NewHandler(sessionSvc)

	tokenSvc := tokens.NewService(tokenRepo, customerRepo, loc)
	redemptionSvc := redemption.NewService(pool, customerRepo, entitlementRepo, tokenRepo,
		redemptionRepo, auditRepo, nil, 3*time.Second)
	redemptionHandler := redemption.NewHandler(redemptionSvc)

	scheduleHandler := schedule.NewHandler(entitlementRepo, customerRepo, tokenSvc, auditRepo)
	auditHandler := audit.NewHandler(auditRepo)

	adminHash, _ := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	schedHash, _ := bcrypt.GenerateFromPassword([]byte(testSchedulerKey), bcrypt.MinCost)

	limiterStore := ratelimit.NewStore(pool)
	routerCfg := api.RouterConfig{
		RedemptionRateLimiter: ratelimit.Middleware(limiterStore, auditRepo, nil, "redemption",
			func(r *http.Request) string {
				if s := kiosk.GetSession(r.Context()); s != nil {
					return s.KioskID
				}
				return "unknown"
			}, testRedemptionMax, time.Minute),
	}

	router := api.NewRouter(pool, nil, routerCfg, api.HandlerSet{
		Redeem: redemptionHandler.Redeem,

		IssueSession:   sessionHandler.Issue,
		ListSessions:   sessionHandler.ListActive,
		RevokeSession:  sessionHandler.Revoke,
		RevokeKioskAll: sessionHandler.RevokeAll,

		ListAudit: auditHandler.List,

		SetEntitlement: scheduleHandler.SetEntitlement,
		IssueTokens:    scheduleHandler.IssueTokens,

		SessionMiddleware:      kiosk.Middleware(sessionSvc, jwtManager),
		AdminKeyMiddleware:     api.APIKey(string(adminHash)),
		SchedulerKeyMiddleware: api.APIKey(string(schedHash)),
	})

	server := httptest.NewServer(router)
	teardowns = append(teardowns, server.Close)

	return &TestEnv{
		Pool:          pool,
		Server:        server,
		SessionSvc:    sessionSvc,
		TokenSvc:      tokenSvc,
		RedemptionSvc: redemptionSvc,
		Entitlements:  entitlementRepo,
		Redemptions:   redemptionRepo,
		AuditRepo:     auditRepo,
	}, nil
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

// CreateCustomer seeds a customer with an active subscription.
func CreateCustomer(t *testing.T, env *TestEnv, name string, flags []string) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	id := uuid.New()
	_, err := env.Pool.Exec(ctx,
		`INSERT INTO customers (id, email, display_name, dietary_flags) VALUES ($1, $2, $3, $4)`,
		id, fmt.Sprintf("%s@test.local", id), name, flags)
	if err != nil {
		t.Fatalf("seeding customer: %v", err)
	}

	_, err = env.Pool.Exec(ctx,
		`INSERT INTO subscriptions (customer_id, status, current_period_end)
		 VALUES ($1, 'active', NOW() + INTERVAL '30 days')`, id)
	if err != nil {
		t.Fatalf("seeding subscription: %v", err)
	}
	return id
}

// CancelSubscriptions flips every subscription for the customer to canceled.
func CancelSubscriptions(t *testing.T, env *TestEnv, customerID uuid.UUID) {
	t.Helper()
	_, err := env.Pool.Exec(context.Background(),
		`UPDATE subscriptions SET status = 'canceled' WHERE customer_id = $1`, customerID)
	if err != nil {
		t.Fatalf("canceling subscriptions: %v", err)
	}
}

// IssueKioskSession provisions a session and returns its bearer token.
func IssueKioskSession(t *testing.T, env *TestEnv, kioskID string) (uuid.UUID, string) {
	t.Helper()
	session, token, err := env.SessionSvc.Issue(context.Background(), kioskID, "Test Hall", "test-admin")
	if err != nil {
		t.Fatalf("issuing kiosk session: %v", err)
	}
	return session.JTI, token
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
