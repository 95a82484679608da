package events_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/playperu/chatguessr/internal/events"
	eventshandler "github.com/playperu/chatguessr/internal/handler/events"
)

func TestStream(t *testing.T) {
	broker := events.NewBroker()
	h := eventshandler.NewHandler(broker, slog.Default())

	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + srv.URL[len("http"):] + "/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// The subscription is registered after the upgrade completes.
	deadline := time.Now().Add(2 * time.Second)
	for broker.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	want := []string{events.TypeGuess, events.TypeRoundResults, events.TypeGameFinished}
	for _, typ := range want {
		broker.Publish(events.Event{Type: typ, GameID: "abc"})
	}

	for _, typ := range want {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev events.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decoding %s: %v", data, err)
		}
		if ev.Type != typ || ev.GameID != "abc" {
			t.Errorf("got %+v, want type %s", ev, typ)
		}
	}

	conn.Close(websocket.StatusNormalClosure, "done")

	deadline = time.Now().Add(2 * time.Second)
	for broker.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler did not unsubscribe after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
