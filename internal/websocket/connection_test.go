package websocket

import (
	"testing"
	"time"

	"proctorhub/pkg/types"
)

func TestConnection_Initialization(t *testing.T) {
	wsConn := createTestWebSocketConnection(t)
	defer wsConn.Close()

	conn := NewConnection(wsConn, 100, 5*time.Second)
	defer conn.Close()

	if conn.writeCh == nil {
		t.Error("write channel not initialized")
	}
	if cap(conn.writeCh) != 100 {
		t.Errorf("expected write channel buffer of 100, got %d", cap(conn.writeCh))
	}
	if conn.StudentID() != "" || conn.Role() != "" {
		t.Error("new connection should carry no identity")
	}
}

func TestConnection_Identity(t *testing.T) {
	conn := newTestConnection(t)

	conn.SetIdentity("student_01", types.RoleStudent)

	if conn.StudentID() != "student_01" {
		t.Errorf("expected student_01, got %q", conn.StudentID())
	}
	if conn.Role() != types.RoleStudent {
		t.Errorf("expected student role, got %q", conn.Role())
	}
}

func TestConnection_WriteJSON(t *testing.T) {
	conn := newTestConnection(t)

	msg := types.ScreenMessage{
		Type:      types.MessageTypeScreen,
		StudentID: "student_01",
		Image:     "base64data",
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Errorf("WriteJSON failed: %v", err)
	}

	// Channels cannot be marshaled.
	if err := conn.WriteJSON(make(chan int)); err != ErrInvalidJSON {
		t.Errorf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestConnection_WriteAfterClose(t *testing.T) {
	conn := newTestConnection(t)

	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if err := conn.WriteJSON(map[string]string{"type": "screen"}); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_CloseIdempotent(t *testing.T) {
	conn := newTestConnection(t)

	if err := conn.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestConnection_WriteRacingClose(t *testing.T) {
	// Fan-out may still be writing to an observer whose read loop is tearing
	// the connection down. Writes must fail with an error, never panic.
	for round := 0; round < 50; round++ {
		conn := newTestConnection(t)
		payload := map[string]string{"type": "screen", "image": string(make([]byte, 256*1024))}

		start := make(chan struct{})
		done := make(chan struct{})
		for i := 0; i < 3; i++ {
			go func() {
				defer func() { done <- struct{}{} }()
				<-start
				for j := 0; j < 10; j++ {
					_ = conn.WriteJSON(payload)
				}
			}()
		}

		close(start)
		_ = conn.Close()
		for i := 0; i < 3; i++ {
			<-done
		}
	}
}

func TestConnection_ConcurrentWrites(t *testing.T) {
	conn := newTestConnection(t)

	// The single-writer goroutine must serialize these without racing.
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 20; j++ {
				_ = conn.WriteJSON(map[string]int{"n": n, "j": j})
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
