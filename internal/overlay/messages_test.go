package overlay

import (
	"fmt"
	"testing"
	"time"
)

func TestMessageLogKeepsNewestLast(t *testing.T) {
	ml := newMessageLog()
	for i := 0; i < 5; i++ {
		ml.add(MessageRecord{Text: fmt.Sprintf("m%d", i), ReceivedAt: time.Now()})
	}

	all := ml.recent(0)
	if len(all) != 5 {
		t.Fatalf("recent(0) returned %d records, want 5", len(all))
	}
	if all[0].Text != "m0" || all[4].Text != "m4" {
		t.Fatalf("unexpected order: first %q last %q", all[0].Text, all[4].Text)
	}

	last2 := ml.recent(2)
	if len(last2) != 2 || last2[0].Text != "m3" || last2[1].Text != "m4" {
		t.Fatalf("recent(2) = %+v, want m3 then m4", last2)
	}
	if got := ml.recent(50); len(got) != 5 {
		t.Fatalf("recent beyond length returned %d records, want 5", len(got))
	}
}

func TestMessageLogDropsOldestBeyondCapacity(t *testing.T) {
	ml := newMessageLog()
	for i := 0; i < messageLogCapacity+5; i++ {
		ml.add(MessageRecord{Text: fmt.Sprintf("m%d", i)})
	}

	all := ml.recent(0)
	if len(all) != messageLogCapacity {
		t.Fatalf("log holds %d records, want %d", len(all), messageLogCapacity)
	}
	if all[0].Text != "m5" {
		t.Fatalf("oldest kept record = %q, want m5", all[0].Text)
	}
	if got := ml.count(); got != uint64(messageLogCapacity+5) {
		t.Fatalf("count = %d, want %d", got, messageLogCapacity+5)
	}
}
