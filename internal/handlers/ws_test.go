package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/huddlehq/huddle/backend/internal/models"
	"github.com/huddlehq/huddle/backend/internal/services"
	"github.com/huddlehq/huddle/backend/internal/utils"
)

type wsFixture struct {
	server      *httptest.Server
	store       services.RevocationStore
	projectID   uint
	aliceToken  string
	bobToken    string
	aliceUserID uint
	bobUserID   uint
}

type stubGenerator struct{}

func (stubGenerator) Generate(context.Context, string) (string, error) {
	return "stub reply", nil
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	utils.SetJWTSecret("test-secret")

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Project{}, &models.ProjectMember{}, &models.SystemLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	alice := models.User{Email: "alice@example.com", Password: "x"}
	bob := models.User{Email: "bob@example.com", Password: "x"}
	db.Create(&alice)
	db.Create(&bob)

	projectSvc := services.NewProjectService(db)
	project, err := projectSvc.Create("demo", alice.ID)
	if err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	if _, err := projectSvc.AddMembers(project.ID, []uint{bob.ID}, alice.ID); err != nil {
		t.Fatalf("failed to add member: %v", err)
	}

	store := services.NewMemoryRevocationStore()
	hub := services.NewHub(stubGenerator{})
	wsHandler := NewWSHandler(db, hub, store)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", wsHandler.Connect)
	server := httptest.NewServer(r)

	aliceToken, _ := utils.GenerateToken(alice.ID, alice.Email, 1)
	bobToken, _ := utils.GenerateToken(bob.ID, bob.Email, 1)

	t.Cleanup(func() {
		server.Close()
		store.Close()
	})

	return &wsFixture{
		server:      server,
		store:       store,
		projectID:   project.ID,
		aliceToken:  aliceToken,
		bobToken:    bobToken,
		aliceUserID: alice.ID,
		bobUserID:   bob.ID,
	}
}

func (f *wsFixture) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?" + query
}

func (f *wsFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := f.wsURL(fmt.Sprintf("projectId=%d&token=%s", f.projectID, token))
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnect_HandshakeRejections(t *testing.T) {
	f := newWSFixture(t)

	// Use a different expiry so this token's signed string is distinct from
	// f.aliceToken; claims are second-granularity, so identical inputs issued
	// in the same second would produce the exact same token and revoking it
	// would revoke aliceToken as well.
	revokedToken, _ := utils.GenerateToken(f.aliceUserID, "alice@example.com", 2)
	f.store.Revoke(context.Background(), revokedToken, time.Hour)

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"missing token", fmt.Sprintf("projectId=%d", f.projectID), http.StatusUnauthorized},
		{"invalid token", fmt.Sprintf("projectId=%d&token=garbage", f.projectID), http.StatusUnauthorized},
		{"revoked token", fmt.Sprintf("projectId=%d&token=%s", f.projectID, revokedToken), http.StatusUnauthorized},
		{"missing project id", "token=" + f.aliceToken, http.StatusBadRequest},
		{"non-numeric project id", "projectId=abc&token=" + f.aliceToken, http.StatusBadRequest},
		{"unknown project", "projectId=999999&token=" + f.aliceToken, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(f.server.URL + "/ws?" + tt.query)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, expected %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestConnect_TokenFromAuthorizationHeader(t *testing.T) {
	f := newWSFixture(t)

	url := f.wsURL(fmt.Sprintf("projectId=%d", f.projectID))
	header := http.Header{"Authorization": {"Bearer " + f.aliceToken}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial with header token failed: %v", err)
	}
	conn.Close()
}

func TestConnect_MessageFlow(t *testing.T) {
	f := newWSFixture(t)

	alice := f.dial(t, f.aliceToken)
	bob := f.dial(t, f.bobToken)

	// Joins race the first send; a short settle keeps the test honest.
	time.Sleep(50 * time.Millisecond)

	payload, _ := json.Marshal(map[string]string{"message": "hello bob"})
	if err := alice.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got services.ChatMessage
	if err := bob.ReadJSON(&got); err != nil {
		t.Fatalf("bob read failed: %v", err)
	}
	if got.Sender != "alice@example.com" {
		t.Errorf("sender = %q", got.Sender)
	}
	if got.Message != "hello bob" {
		t.Errorf("message = %q", got.Message)
	}
}

func TestConnect_MalformedEventIgnored(t *testing.T) {
	f := newWSFixture(t)

	alice := f.dial(t, f.aliceToken)
	bob := f.dial(t, f.bobToken)
	time.Sleep(50 * time.Millisecond)

	if err := alice.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	payload, _ := json.Marshal(map[string]string{"message": "after garbage"})
	if err := alice.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The malformed frame is skipped, the valid one still arrives.
	bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got services.ChatMessage
	if err := bob.ReadJSON(&got); err != nil {
		t.Fatalf("bob read failed: %v", err)
	}
	if got.Message != "after garbage" {
		t.Errorf("message = %q, expected the frame after the malformed one", got.Message)
	}
}
