package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"proctorhub/internal/websocket"
	"proctorhub/pkg/types"
)

var testUpgrader = gorillaws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newObserverPair returns a registered observer connection and the client
// side of its socket, so tests can read what the relay delivered.
func newObserverPair(t *testing.T, registry *websocket.Registry) (*websocket.Connection, *gorillaws.Conn) {
	t.Helper()

	serverSide := make(chan *gorillaws.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(func() { server.Close() })

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial test server: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	observer := websocket.NewConnection(<-serverSide, 100, 5*time.Second)
	t.Cleanup(func() { _ = observer.Close() })

	if err := registry.RegisterObserver(observer); err != nil {
		t.Fatalf("RegisterObserver failed: %v", err)
	}

	return observer, client
}

func readMessage(t *testing.T, client *gorillaws.Conn, v interface{}) {
	t.Helper()

	if err := client.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("observer read failed: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("observer received malformed JSON: %v", err)
	}
}

func TestBroadcastFrameCachesAndDelivers(t *testing.T) {
	registry := websocket.NewRegistry(zap.NewNop())
	relay := New(registry, zap.NewNop())

	_, client := newObserverPair(t, registry)

	relay.BroadcastFrame("student_01", "imagedata")

	// Cache updated regardless of delivery.
	payload, ok := registry.LatestFrame("student_01")
	if !ok || payload != "imagedata" {
		t.Errorf("frame not cached: %q %v", payload, ok)
	}

	var msg types.ScreenMessage
	readMessage(t, client, &msg)
	if msg.Type != types.MessageTypeScreen || msg.StudentID != "student_01" || msg.Image != "imagedata" {
		t.Errorf("unexpected screen message: %+v", msg)
	}
}

func TestBroadcastViolationCountsNotified(t *testing.T) {
	registry := websocket.NewRegistry(zap.NewNop())
	relay := New(registry, zap.NewNop())

	_, c1 := newObserverPair(t, registry)
	_, c2 := newObserverPair(t, registry)

	record := types.ViolationRecord{
		StudentID:     "student_01",
		ViolationType: "phone_detected",
		Detail:        "phone on desk",
		OccurredAt:    time.Now(),
	}

	if notified := relay.BroadcastViolation(record); notified != 2 {
		t.Errorf("expected 2 observers notified, got %d", notified)
	}

	for _, client := range []*gorillaws.Conn{c1, c2} {
		var alert types.ViolationAlert
		readMessage(t, client, &alert)
		if alert.Type != types.MessageTypeViolationAlert || alert.ViolationType != "phone_detected" {
			t.Errorf("unexpected alert: %+v", alert)
		}
	}
}

func TestBroadcastViolationSurvivesClosedObserver(t *testing.T) {
	registry := websocket.NewRegistry(zap.NewNop())
	relay := New(registry, zap.NewNop())

	dead, _ := newObserverPair(t, registry)
	_, liveClient := newObserverPair(t, registry)

	// Close one observer's handle without unregistering it, the mid-broadcast
	// disconnect case.
	_ = dead.Close()

	record := types.ViolationRecord{
		StudentID:     "student_01",
		ViolationType: "tab_switch",
		OccurredAt:    time.Now(),
	}

	if notified := relay.BroadcastViolation(record); notified != 1 {
		t.Errorf("expected 1 successful delivery, got %d", notified)
	}

	var alert types.ViolationAlert
	readMessage(t, liveClient, &alert)
	if alert.StudentID != "student_01" {
		t.Errorf("live observer did not receive the alert: %+v", alert)
	}
}

func TestBroadcastViolationWithNoObservers(t *testing.T) {
	registry := websocket.NewRegistry(zap.NewNop())
	relay := New(registry, zap.NewNop())

	record := types.ViolationRecord{StudentID: "student_01", ViolationType: "tab_switch"}
	if notified := relay.BroadcastViolation(record); notified != 0 {
		t.Errorf("expected 0 notified with no observers, got %d", notified)
	}
}

func TestSendCachedFrame(t *testing.T) {
	registry := websocket.NewRegistry(zap.NewNop())
	relay := New(registry, zap.NewNop())

	observer, client := newObserverPair(t, registry)

	// No cached frame yet: silent no-op.
	relay.SendCachedFrame(observer, "student_01")

	registry.CacheFrame("student_01", "cached")
	relay.SendCachedFrame(observer, "student_01")

	var msg types.ScreenMessage
	readMessage(t, client, &msg)
	if msg.Image != "cached" {
		t.Errorf("expected cached frame, got %+v", msg)
	}
}
