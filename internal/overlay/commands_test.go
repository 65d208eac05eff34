package overlay

import (
	"testing"
	"time"
)

func TestCommandChannelFIFO(t *testing.T) {
	c := NewCommandChannel()
	c.Send("a", "1")
	c.Send("b", "2")

	first, ok := c.Recv()
	if !ok || first.Recipient != "a" {
		t.Fatalf("expected first command from a, got %+v ok=%v", first, ok)
	}
	second, ok := c.Recv()
	if !ok || second.Recipient != "b" {
		t.Fatalf("expected second command from b, got %+v ok=%v", second, ok)
	}
}

func TestCommandChannelSendAfterCloseIsNoOp(t *testing.T) {
	c := NewCommandChannel()
	c.Close()
	c.Send("a", "1")

	_, ok := c.Recv()
	if ok {
		t.Fatal("expected Recv to report closed with no pending commands")
	}
}

func TestCommandChannelRefreshUsesReservedToken(t *testing.T) {
	c := NewCommandChannel()
	c.Refresh()

	cmd, ok := c.Recv()
	if !ok {
		t.Fatal("expected a command")
	}
	if cmd.Recipient != ReservedRefresh {
		t.Fatalf("expected recipient %q, got %q", ReservedRefresh, cmd.Recipient)
	}
}

func TestCommandChannelChanForwardsInOrder(t *testing.T) {
	c := NewCommandChannel()
	ch := c.Chan()

	c.Send("a", "1")
	c.Send("b", "2")

	select {
	case cmd := <-ch:
		if cmd.Recipient != "a" {
			t.Fatalf("expected a first, got %+v", cmd)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first command")
	}

	select {
	case cmd := <-ch:
		if cmd.Recipient != "b" {
			t.Fatalf("expected b second, got %+v", cmd)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second command")
	}
}

func TestCommandChannelChanClosesOnClose(t *testing.T) {
	c := NewCommandChannel()
	ch := c.Chan()
	c.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected forwarding channel to be closed with no value")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarding channel to close")
	}
}

func TestGlobalCommandChannelIsSingleton(t *testing.T) {
	a := GlobalCommandChannel()
	b := GlobalCommandChannel()
	if a != b {
		t.Fatal("expected GlobalCommandChannel to return the same instance")
	}
}
