package notify

import (
	"fmt"
	"testing"
)

func TestFeedKeepsMostRecent(t *testing.T) {
	feed := NewFeed("test", 3)
	for i := 0; i < 5; i++ {
		feed.Notify(Info, fmt.Sprintf("message %d", i))
	}
	got := feed.Recent()
	if len(got) != 3 {
		t.Fatalf("len(Recent()) = %d, want 3", len(got))
	}
	if got[0].Message != "message 2" || got[2].Message != "message 4" {
		t.Fatalf("Recent() = %+v", got)
	}
}

func TestFeedDefaultLimit(t *testing.T) {
	feed := NewFeed("test", 0)
	for i := 0; i < DefaultLimit+4; i++ {
		feed.Notify(Error, "boom")
	}
	if got := len(feed.Recent()); got != DefaultLimit {
		t.Fatalf("len(Recent()) = %d, want %d", got, DefaultLimit)
	}
}

func TestFunc(t *testing.T) {
	var got []Level
	n := Func(func(level Level, _ string) { got = append(got, level) })
	n.Notify(Success, "ok")
	Discard.Notify(Error, "ignored")
	if len(got) != 1 || got[0] != Success {
		t.Fatalf("got = %v", got)
	}
}
