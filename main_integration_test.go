package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/face-detect/internal/config"
	"github.com/example/face-detect/internal/detection"
	"github.com/example/face-detect/internal/repository"
	"github.com/example/face-detect/internal/usecase"
)

func TestServerGracefulShutdownDuringDetection(t *testing.T) {
	logger := zap.NewNop()

	requestStarted := make(chan struct{})
	releaseRequest := make(chan struct{})
	defer func() {
		select {
		case <-releaseRequest:
		default:
			close(releaseRequest)
		}
	}()

	detectServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-requestStarted:
		default:
			close(requestStarted)
		}
		<-releaseRequest
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"originalImage":"img://abc","faces":["f1","f2"]}`))
	}))
	defer detectServer.Close()

	cfg := config.Default()
	cfg.JWTSecret = "integration-secret"
	handler := newIntegrationHandler(t, cfg, detectServer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: handler}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	addr := listener.Addr().String()
	waitForServer(t, addr)

	client := &http.Client{Timeout: 2 * time.Second}
	token := signIntegrationToken(t, cfg.JWTSecret)
	base := "http://" + addr + "/documents/page-1"

	resp := post(t, client, base+"/modal", token, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open modal: unexpected status %d", resp.StatusCode)
	}

	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		req, err := http.NewRequest(http.MethodPost, base+"/image", strings.NewReader(`{"imageTitle":"Team Photo","imagePath":"/images/team.jpg"}`))
		if err != nil {
			errCh <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := client.Do(req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-requestStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("detection request did not start in time")
	}

	signalCh <- syscall.SIGTERM

	time.Sleep(50 * time.Millisecond)
	close(releaseRequest)

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(body))
		}
		var decoded struct {
			State usecase.Snapshot `json:"state"`
		}
		if err := json.Unmarshal(body, &decoded); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if len(decoded.State.Modal.FaceURLs) != 2 {
			t.Fatalf("expected two detected faces, got %+v", decoded.State.Modal)
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func TestHandlerAllowsCrossOriginHost(t *testing.T) {
	cfg := config.Default()
	cfg.AllowedOrigins = []string{"https://host.example"}
	detectServer := httptest.NewServer(http.NotFoundHandler())
	defer detectServer.Close()
	handler := newIntegrationHandler(t, cfg, detectServer)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://host.example")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://host.example" {
		t.Fatalf("unexpected allow-origin header: %q", got)
	}
}

func newIntegrationHandler(t *testing.T, cfg config.Config, detectServer *httptest.Server) http.Handler {
	t.Helper()
	logger := zap.NewNop()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo := repository.NewContentPropertyRepository(db, logger)
	if err := repo.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	detector, err := detection.NewHTTPClient(detectServer.URL, detectServer.Client(), logger)
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}

	uc := usecase.NewAnnotationUseCase(repo, usecase.NopCache{}, detector, logger, usecase.Options{PropertyKey: cfg.PropertyKey})
	gin.SetMode(gin.TestMode)
	return buildHandler(uc, cfg, gin.New())
}

func signIntegrationToken(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func post(t *testing.T, client *http.Client, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
