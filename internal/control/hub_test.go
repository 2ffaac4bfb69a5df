package control

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Connect("/")
	b := hub.Connect("/contact")

	if n := hub.Broadcast(SyncStart()); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	for _, c := range []*Client{a, b} {
		msg := <-c.Messages()
		if msg.Type != TypeSyncStart {
			t.Fatalf("unexpected message %s", msg.Type)
		}
	}
}

func TestBroadcastWithoutClientsIsDropped(t *testing.T) {
	hub := NewHub(nil)
	if n := hub.Broadcast(SyncSuccess(3)); n != 0 {
		t.Fatalf("no clients should mean no deliveries")
	}
	c := hub.Connect("/")
	select {
	case msg := <-c.Messages():
		t.Fatalf("broadcasts are not queued, got %s", msg.Type)
	default:
	}
}

func TestFullBufferDropsMessage(t *testing.T) {
	hub := NewHub(nil)
	c := hub.Connect("/")
	for i := 0; i < defaultBuffer; i++ {
		if err := hub.Send(c.ID, SyncStart()); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}
	if err := hub.Send(c.ID, SyncStart()); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
}

func TestDisconnectClosesStream(t *testing.T) {
	hub := NewHub(nil)
	c := hub.Connect("/")
	hub.Disconnect(c.ID)
	if _, ok := <-c.Messages(); ok {
		t.Fatalf("stream should be closed")
	}
	if err := hub.Send(c.ID, SyncStart()); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
	hub.Disconnect(c.ID)
}

func TestOpenWindowQueuesUntilConnect(t *testing.T) {
	hub := NewHub(nil)
	if queued := hub.OpenWindow("/projects"); !queued {
		t.Fatalf("OpenWindow without pages should queue")
	}
	c := hub.Connect("/")
	msg := <-c.Messages()
	if msg.Type != TypeOpenWindow {
		t.Fatalf("expected queued OpenWindow, got %s", msg.Type)
	}
	var data map[string]string
	_ = json.Unmarshal(msg.Data, &data)
	if data["url"] != "/projects" {
		t.Fatalf("unexpected url %v", data)
	}
	if queued := hub.OpenWindow("/contact"); queued {
		t.Fatalf("OpenWindow with a connected page should be delivered")
	}
}

func TestFindByURLAndFocus(t *testing.T) {
	hub := NewHub(nil)
	hub.Connect("/")
	target := hub.Connect("/contact")

	info, ok := hub.FindByURL("/contact")
	if !ok || info.ID != target.ID {
		t.Fatalf("FindByURL returned %+v", info)
	}
	if err := hub.Focus(info.ID); err != nil {
		t.Fatalf("focus error: %v", err)
	}
	if msg := <-target.Messages(); msg.Type != TypeFocus {
		t.Fatalf("expected Focus, got %s", msg.Type)
	}
	if _, ok := hub.FindByURL("/missing"); ok {
		t.Fatalf("unexpected match")
	}
}

func TestClaimMarksClientsControlled(t *testing.T) {
	hub := NewHub(nil)
	c := hub.Connect("/")
	if n := hub.Claim("v4"); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if msg := <-c.Messages(); msg.Type != TypeControllerChange {
		t.Fatalf("expected ControllerChange, got %s", msg.Type)
	}
	if clients := hub.Clients(); len(clients) != 1 || !clients[0].Controlled {
		t.Fatalf("client should be controlled: %+v", clients)
	}
}

func TestParseInbound(t *testing.T) {
	cases := []struct {
		raw  string
		want Type
		err  bool
	}{
		{`{"type":"SkipWaiting"}`, TypeSkipWaiting, false},
		{`{"type":"SKIP_WAITING"}`, TypeSkipWaiting, false},
		{`{"type":"REQUEST_SYNC"}`, TypeRequestSync, false},
		{`{"type":"RequestSync","data":{"tag":"booking-sync"}}`, TypeRequestSync, false},
		{`{"type":"BackgroundSyncStart"}`, "", true},
		{`not json`, "", true},
	}
	for _, tc := range cases {
		msg, err := ParseInbound([]byte(tc.raw))
		if tc.err {
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("%s: expected ErrMalformed, got %v", tc.raw, err)
			}
			continue
		}
		if err != nil || msg.Type != tc.want {
			t.Fatalf("%s: got %s %v", tc.raw, msg.Type, err)
		}
	}
}

func TestSyncMessagesEncode(t *testing.T) {
	var decoded struct {
		Type  string     `json:"type"`
		Data  SyncResult `json:"data"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(SyncFailed(errors.New("endpoint 500"), 2).Encode(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != "BackgroundSyncFailed" || decoded.Error != "endpoint 500" || decoded.Data.Processed != 2 {
		t.Fatalf("unexpected encoding: %+v", decoded)
	}
	if string(SyncStart().Encode()) != `{"type":"BackgroundSyncStart"}` {
		t.Fatalf("SyncStart should carry no data")
	}
}

func TestFindByURLMatchesPath(t *testing.T) {
	hub := NewHub(nil)
	c := hub.Connect("https://www.mhc-gc.com/projects")
	info, ok := hub.FindByURL("/projects")
	if !ok || info.ID != c.ID {
		t.Fatalf("absolute page URL should match by path")
	}
}
