package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memSender struct {
	name   string
	titles []string
	err    error
}

func (s *memSender) Send(_ context.Context, title, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *memSender) Name() string { return s.name }

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &memSender{name: "mem"}
	n := NewNotifier([]Sender{sender}, []string{EventTradeClosed}, testLogger())

	if err := n.Notify(context.Background(), EventGapAlert, "gap", "msg"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.titles) != 0 {
		t.Fatalf("filtered event was delivered: %v", sender.titles)
	}

	if err := n.Notify(context.Background(), EventTradeClosed, "closed", "msg"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.titles) != 1 || sender.titles[0] != "closed" {
		t.Fatalf("titles = %v", sender.titles)
	}
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &memSender{name: "mem"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	if err := n.Notify(context.Background(), "anything", "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.titles) != 1 {
		t.Fatalf("titles = %v", sender.titles)
	}
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	sender := &memSender{name: "mem"}
	n := NewNotifier([]Sender{sender}, []string{EventTradeClosed}, testLogger())

	if err := n.NotifyAll(context.Background(), "critical", "msg"); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	if len(sender.titles) != 1 || sender.titles[0] != "critical" {
		t.Fatalf("titles = %v", sender.titles)
	}
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	failing := &memSender{name: "broken", err: errors.New("unreachable")}
	working := &memSender{name: "mem"}
	n := NewNotifier([]Sender{failing, working}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	if err == nil {
		t.Fatal("failing sender must surface an error")
	}
	if len(working.titles) != 1 {
		t.Fatal("remaining senders must still be tried")
	}
}

func TestNoSendersIsNoOp(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	if err := n.NotifyAll(context.Background(), "t", "m"); err != nil {
		t.Fatalf("NotifyAll with no senders: %v", err)
	}
}
