package presence

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/azeasz/fobi-amaturalist-sub000/broker"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})
	return NewStore(rdb)
}

type fakeSubscriber struct {
	events chan broker.Event
	err    error
}

func (f fakeSubscriber) Subscribe(_ context.Context, channel string) (<-chan broker.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	if channel != broker.PresenceChannel {
		return nil, errors.New("unexpected channel " + channel)
	}
	return f.events, nil
}

func TestStoreJoinLeave(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, join := range []struct{ checklist, conn, client string }{
		{"42", "c1", "bob"},
		{"42", "c2", "alice"},
		{"42", "c3", "alice"},
		{"99", "c4", "carol"},
	} {
		if err := store.Join(ctx, join.checklist, join.conn, join.client); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	members, err := store.Members(ctx, "42")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if want := []string{"alice", "bob"}; !reflect.DeepEqual(members, want) {
		t.Fatalf("expected %v, got %v", want, members)
	}

	checklists, err := store.Checklists(ctx)
	if err != nil {
		t.Fatalf("checklists: %v", err)
	}
	if want := []string{"42", "99"}; !reflect.DeepEqual(checklists, want) {
		t.Fatalf("expected %v, got %v", want, checklists)
	}

	// alice keeps one connection open
	if err := store.Leave(ctx, "42", "c2"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	members, _ = store.Members(ctx, "42")
	if want := []string{"alice", "bob"}; !reflect.DeepEqual(members, want) {
		t.Fatalf("expected %v after partial leave, got %v", want, members)
	}

	if err := store.Leave(ctx, "99", "c4"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	checklists, _ = store.Checklists(ctx)
	if want := []string{"42"}; !reflect.DeepEqual(checklists, want) {
		t.Fatalf("expected %v after last leave, got %v", want, checklists)
	}
}

func TestStoreLeaveUnknownIsNoop(t *testing.T) {
	store := newTestStore(t)

	if err := store.Leave(context.Background(), "7", "missing"); err != nil {
		t.Fatalf("leave unknown: %v", err)
	}
	members, err := store.Members(context.Background(), "7")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected no members, got %v", members)
	}
}

func TestStoreUnavailable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	rdb := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() {
		_ = rdb.Close()
	})
	store := NewStore(rdb)

	if err := store.Join(context.Background(), "42", "c1", "bob"); err == nil {
		t.Fatal("expected error with redis down")
	}
}

func TestListenAppliesEvents(t *testing.T) {
	store := newTestStore(t)

	events := make(chan broker.Event, 4)
	events <- broker.Event{Type: broker.EventClientJoined, ClientID: "alice", ChecklistID: "42", ConnectionID: "c1"}
	events <- broker.Event{Type: broker.EventClientJoined, ClientID: "bob", ChecklistID: "42", ConnectionID: "c2"}
	events <- broker.Event{Type: "something_else", ClientID: "eve", ChecklistID: "42", ConnectionID: "c3"}
	events <- broker.Event{Type: broker.EventClientLeft, ClientID: "bob", ChecklistID: "42", ConnectionID: "c2"}
	close(events)

	if err := Listen(context.Background(), fakeSubscriber{events: events}, store); err != nil {
		t.Fatalf("listen: %v", err)
	}

	members, err := store.Members(context.Background(), "42")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if want := []string{"alice"}; !reflect.DeepEqual(members, want) {
		t.Fatalf("expected %v, got %v", want, members)
	}
}

func TestListenSubscribeError(t *testing.T) {
	store := newTestStore(t)

	err := Listen(context.Background(), fakeSubscriber{err: errors.New("boom")}, store)
	if err == nil {
		t.Fatal("expected subscribe error")
	}
}

func TestHandler(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Join(ctx, "42", "c1", "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	srv := httptest.NewServer(NewHandler(store))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/presence/42")
	if err != nil {
		t.Fatalf("get members: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var members membersResponse
	if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
		t.Fatalf("decode members: %v", err)
	}
	if members.ChecklistID != "42" || !reflect.DeepEqual(members.Clients, []string{"alice"}) {
		t.Fatalf("unexpected members response: %+v", members)
	}

	resp2, err := http.Get(srv.URL + "/presence")
	if err != nil {
		t.Fatalf("get checklists: %v", err)
	}
	defer resp2.Body.Close()
	var checklists checklistsResponse
	if err := json.NewDecoder(resp2.Body).Decode(&checklists); err != nil {
		t.Fatalf("decode checklists: %v", err)
	}
	if !reflect.DeepEqual(checklists.Checklists, []string{"42"}) {
		t.Fatalf("unexpected checklists response: %+v", checklists)
	}

	resp3, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Fatalf("expected healthy tracker, got %d", resp3.StatusCode)
	}
}
