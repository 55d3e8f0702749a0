package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/notescan/notescan/internal/core/domain"
)

func TestHubBroadcastReachesClient(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration races the broadcast; wait for the hub to see the client.
	for i := 0; i < 100 && hub.ClientCount() == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatal("client never registered")
	}

	want := domain.Transaction{ChainID: "1", TxHash: "0xabc", BlockNumber: 42}
	hub.Broadcast(want)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got domain.Transaction
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.TxHash != want.TxHash || got.BlockNumber != want.BlockNumber {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	for i := 0; i < 100 && hub.ClientCount() == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()
	for i := 0; i < 100 && hub.ClientCount() != 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("clients = %d after disconnect, want 0", got)
	}
}
