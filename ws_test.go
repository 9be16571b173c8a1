package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/allape/opencam/cam/sink"
	"github.com/allape/opencam/config"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newStreamServer(t *testing.T, ring *sink.Ring) (string, chan struct{}) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	engine := gin.New()

	done := make(chan struct{})
	engine.GET("/stream", func(c *gin.Context) {
		StreamHandler(config.Config{}, ring)(c)
		close(done)
	})

	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http") + "/stream", done
}

func TestStreamHandlerPushesBufferedFrame(t *testing.T) {
	ring := sink.NewRing(4)
	if err := ring.Insert(make([]byte, 64), 8, 8, 1, sink.Metadata{Binning: 1}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	url, _ := newStreamServer(t, ring)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Expected a connection, got %v", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))

	kind, header, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Expected a header message, got %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("Expected a text header, got type %d", kind)
	}
	if !strings.Contains(string(header), `"width":8`) {
		t.Fatalf("Expected the header to carry the width, got %s", header)
	}

	kind, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Expected a pixel message, got %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("Expected a binary payload, got type %d", kind)
	}
	if len(payload) != 64 {
		t.Fatalf("Expected 64 pixel bytes, got %d", len(payload))
	}
}

func TestStreamHandlerExitsWhenIdleClientLeaves(t *testing.T) {
	url, done := newStreamServer(t, sink.NewRing(4))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Expected a connection, got %v", err)
	}

	// Nothing is buffered, so the push loop is idling between polls; closing
	// the client must still end the handler.
	_ = conn.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected the handler to return after the client left")
	}
}
