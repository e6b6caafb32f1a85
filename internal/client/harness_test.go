package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"certified/internal/access"
	"certified/internal/api"
	"certified/internal/engine"
	"certified/internal/publish"
	"certified/internal/session"
	"certified/internal/verify"
)

const testSecret = "e2e-secret"

type systemUnderTest struct {
	BaseURL string
	Admin   string
	logPath string
	signer  *verify.Signer
	store   *engine.Store
	server  *httptest.Server
}

func (s *systemUnderTest) Close() {
	if s.server != nil {
		s.server.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// restart stops the server and brings it back on the same log file.
func (s *systemUnderTest) restart(t *testing.T) {
	t.Helper()
	s.Close()
	s.start(t)
}

func startSystemUnderTest(t *testing.T) *systemUnderTest {
	t.Helper()
	signer, err := verify.GenerateSigner()
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	admin, err := session.NewJWT(testSecret).Issue("e2e", true, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	sut := &systemUnderTest{
		Admin:   admin,
		logPath: filepath.Join(t.TempDir(), "certified.log"),
		signer:  signer,
	}
	sut.start(t)
	return sut
}

func (s *systemUnderTest) start(t *testing.T) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store, err := engine.Open(context.Background(), engine.Config{Path: s.logPath, Fsync: true, Logger: logger})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	svc := publish.NewService(store, s.signer, logger)
	handler, err := api.NewServer(api.Deps{
		Log:     store,
		Service: svc,
		Checker: &verify.SignatureChecker{PublicKey: s.signer.PublicKey(), Artifacts: svc},
		Access:  access.Config{Sessions: session.NewJWT(testSecret)},
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	s.store = store
	s.server = httptest.NewServer(handler)
	s.BaseURL = s.server.URL
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
