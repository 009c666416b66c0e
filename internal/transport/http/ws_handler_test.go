package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-platform/internal/domain"
)

func TestLeaderboardSocketStreamsUpdates(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.user("owner", domain.RoleInstructor)
	player, token := env.user("player", domain.RoleStudent)
	quiz := env.publishedQuiz(owner)

	server := httptest.NewServer(env.srv)
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/quizzes/" + strconv.FormatInt(quiz.ID, 10) + "/leaderboard?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// initial snapshot is empty
	msg := readMessage(t, conn)
	if msg.Type != "leaderboard" {
		t.Fatalf("expected leaderboard, got %s", msg.Type)
	}
	if len(msg.Payload.Entries) != 0 {
		t.Fatalf("expected empty snapshot, got %d entries", len(msg.Payload.Entries))
	}

	now := time.Now()
	a := domain.Attempt{
		UserID:          player.ID,
		QuizID:          quiz.ID,
		Status:          domain.AttemptCompleted,
		PercentageScore: 80,
		Passed:          true,
		IsValid:         true,
		StartedAt:       now.Add(-time.Minute),
		SubmittedAt:     &now,
		DurationSeconds: 60,
	}
	if err := env.store.CreateAttempt(context.Background(), &a); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if _, err := env.services.Leaderboard.Rebuild(context.Background(), quiz.ID); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	msg = readMessage(t, conn)
	if msg.Type != "leaderboard" {
		t.Fatalf("expected leaderboard, got %s", msg.Type)
	}
	if len(msg.Payload.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(msg.Payload.Entries))
	}
	entry := msg.Payload.Entries[0]
	if entry.Rank != 1 || entry.UserID != player.ID || entry.PercentageScore != 80 {
		t.Fatalf("unexpected entry %+v", entry)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg = readMessage(t, conn); msg.Type != "pong" {
		t.Fatalf("expected pong, got %s", msg.Type)
	}
}

func TestLeaderboardSocketRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.user("owner", domain.RoleInstructor)
	quiz := env.publishedQuiz(owner)

	server := httptest.NewServer(env.srv)
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/quizzes/" + strconv.FormatInt(quiz.ID, 10) + "/leaderboard"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestLeaderboardSocketUnknownQuiz(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("player", domain.RoleStudent)

	server := httptest.NewServer(env.srv)
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/quizzes/999/leaderboard?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

type socketMessage struct {
	Type    string             `json:"type"`
	Payload domain.Leaderboard `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn) socketMessage {
	t.Helper()
	var msg socketMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg
}
