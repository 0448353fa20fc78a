package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeGenerator struct {
	reply  string
	err    error
	called chan string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if f.called != nil {
		f.called <- prompt
	}
	return f.reply, f.err
}

func recvMessage(t *testing.T, client *RoomClient) ChatMessage {
	t.Helper()
	select {
	case msg := <-client.Send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return ChatMessage{}
	}
}

func assertNoMessage(t *testing.T, client *RoomClient) {
	t.Helper()
	select {
	case msg := <-client.Send:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	hub := NewHub(&fakeGenerator{})
	alice := hub.Join("1", 1, "alice@example.com")
	bob := hub.Join("1", 2, "bob@example.com")
	carol := hub.Join("1", 3, "carol@example.com")

	hub.HandleMessage(alice, "hello everyone")

	for _, c := range []*RoomClient{bob, carol} {
		msg := recvMessage(t, c)
		if msg.Sender != "alice@example.com" {
			t.Errorf("sender = %q, expected alice@example.com", msg.Sender)
		}
		if msg.Message != "hello everyone" {
			t.Errorf("message = %q", msg.Message)
		}
		if msg.Timestamp == "" {
			t.Error("timestamp not stamped")
		}
	}
	assertNoMessage(t, alice)
}

func TestHub_RoomsAreIsolated(t *testing.T) {
	hub := NewHub(&fakeGenerator{})
	alice := hub.Join("1", 1, "alice@example.com")
	bob := hub.Join("2", 2, "bob@example.com")

	hub.HandleMessage(alice, "room one only")

	assertNoMessage(t, bob)
}

func TestHub_AIReplyGoesToWholeRoom(t *testing.T) {
	gen := &fakeGenerator{reply: "recursion is a function calling itself", called: make(chan string, 1)}
	hub := NewHub(gen)
	alice := hub.Join("1", 1, "alice@example.com")
	bob := hub.Join("1", 2, "bob@example.com")

	hub.HandleMessage(alice, "@ai explain recursion")

	// Bob gets the raw message first, then the assistant reply.
	raw := recvMessage(t, bob)
	if raw.Message != "@ai explain recursion" {
		t.Errorf("raw message = %q", raw.Message)
	}

	select {
	case prompt := <-gen.called:
		if prompt != "explain recursion" {
			t.Errorf("prompt = %q, expected trigger stripped", prompt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("generator was never called")
	}

	// The reply reaches everyone, the original sender included.
	for _, c := range []*RoomClient{alice, bob} {
		reply := recvMessage(t, c)
		if reply.Sender != AISender {
			t.Errorf("reply sender = %q, expected %q", reply.Sender, AISender)
		}
		if reply.Message != gen.reply {
			t.Errorf("reply message = %q", reply.Message)
		}
	}
}

func TestHub_NoTriggerNoGeneration(t *testing.T) {
	gen := &fakeGenerator{called: make(chan string, 1)}
	hub := NewHub(gen)
	alice := hub.Join("1", 1, "alice@example.com")
	hub.Join("1", 2, "bob@example.com")

	hub.HandleMessage(alice, "plain message, no mention")

	select {
	case <-gen.called:
		t.Fatal("generator called without trigger")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_GenerationFailureIsSilent(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable"), called: make(chan string, 1)}
	hub := NewHub(gen)
	alice := hub.Join("1", 1, "alice@example.com")
	bob := hub.Join("1", 2, "bob@example.com")

	hub.HandleMessage(alice, "@ai are you there")

	recvMessage(t, bob) // the human broadcast
	<-gen.called

	// No assistant message follows the failure.
	assertNoMessage(t, alice)
	assertNoMessage(t, bob)
}

func TestHub_EmptyReplyDropped(t *testing.T) {
	gen := &fakeGenerator{reply: "   ", called: make(chan string, 1)}
	hub := NewHub(gen)
	alice := hub.Join("1", 1, "alice@example.com")
	bob := hub.Join("1", 2, "bob@example.com")

	hub.HandleMessage(alice, "@ai say nothing")

	recvMessage(t, bob)
	<-gen.called

	assertNoMessage(t, alice)
	assertNoMessage(t, bob)
}

func TestHub_LeaveEmptiesRoom(t *testing.T) {
	hub := NewHub(&fakeGenerator{})
	alice := hub.Join("1", 1, "alice@example.com")
	bob := hub.Join("1", 2, "bob@example.com")

	if size := hub.RoomSize("1"); size != 2 {
		t.Fatalf("room size = %d, expected 2", size)
	}

	hub.Leave(alice)
	if size := hub.RoomSize("1"); size != 1 {
		t.Errorf("room size = %d after leave, expected 1", size)
	}

	hub.Leave(bob)
	if size := hub.RoomSize("1"); size != 0 {
		t.Errorf("room size = %d after both left, expected 0", size)
	}

	// Leaving twice is harmless.
	hub.Leave(bob)

	// Send channel is closed after leave.
	if _, ok := <-alice.Send; ok {
		t.Error("send channel still open after leave")
	}
}

func TestHub_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(&fakeGenerator{})
	alice := hub.Join("1", 1, "alice@example.com")
	bob := hub.Join("1", 2, "bob@example.com")

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Bob never drains; overflow past the buffer must not stall.
		for i := 0; i < clientBuffer+10; i++ {
			hub.HandleMessage(alice, "flood")
		}
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}

	if len(bob.Send) != clientBuffer {
		t.Errorf("buffered = %d, expected full buffer %d", len(bob.Send), clientBuffer)
	}
}
