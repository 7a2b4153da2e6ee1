package server

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func dialStream(t *testing.T, srv *Server) (*websocket.Conn, func()) {
	t.Helper()

	ts := httptest.NewServer(srv.Routes())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/synthesize/stream"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		ts.Close()
		t.Fatalf("Failed to dial stream: %v", err)
	}
	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func TestHandleSynthesizeStream(t *testing.T) {
	conn, done := dialStream(t, testServer(&echoClient{}))
	defer done()

	if err := conn.WriteJSON(map[string]string{"text": "Hello world."}); err != nil {
		t.Fatalf("Failed to send request frame: %v", err)
	}

	// Progress frames arrive first, then one binary audio frame.
	sawProgress := false
	var audio []byte
	for audio == nil {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Read failed before audio frame: %v", err)
		}
		if mt == websocket.BinaryMessage {
			audio = data
			break
		}
		if strings.Contains(string(data), `"progress"`) {
			sawProgress = true
		}
	}

	if !sawProgress {
		t.Error("Expected at least one progress frame before the audio")
	}
	if string(audio) != "[Hello world.]" {
		t.Errorf("Expected audio frame with provider bytes, got %q", audio)
	}

	var doneEvent progressEvent
	if err := conn.ReadJSON(&doneEvent); err != nil {
		t.Fatalf("Failed to read done frame: %v", err)
	}
	if doneEvent.Event != "done" {
		t.Errorf("Expected done event, got %+v", doneEvent)
	}
	if doneEvent.Processed != 1 || doneEvent.Total != 1 {
		t.Errorf("Unexpected done counts: %+v", doneEvent)
	}
}

func TestHandleSynthesizeStream_EmptyInput(t *testing.T) {
	conn, done := dialStream(t, testServer(&echoClient{}))
	defer done()

	if err := conn.WriteJSON(map[string]string{"text": "  "}); err != nil {
		t.Fatalf("Failed to send request frame: %v", err)
	}

	var ev progressEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("Failed to read error frame: %v", err)
	}
	if ev.Event != "error" {
		t.Errorf("Expected error event, got %+v", ev)
	}
}
