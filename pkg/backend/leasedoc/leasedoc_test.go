package leasedoc

import (
	"testing"
	"time"

	"github.com/khenidak/crossdc/pkg/types"
)

func TestDocRoundTrip(t *testing.T) {
	until := time.Date(2024, 5, 1, 10, 0, 0, 999, time.UTC)
	lm := time.Date(2024, 5, 1, 9, 0, 0, 1, time.UTC)
	record := &types.LeaseRecord{Value: "DC-A", UpdateIP: "10.0.0.1", UpdateUser: "DC-A-DcLeader"}

	d := New(record, until, lm)
	d.Note = "seed"
	data, err := d.Marshal()
	if err != nil {
		t.Fatalf("failed to marshal:%v", err)
	}

	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("failed to unmarshal:%v", err)
	}
	got := back.Record("k", "s")
	if got.Key != "k" || got.SubKey != "s" || got.Value != "DC-A" || got.UpdateUser != "DC-A-DcLeader" {
		t.Fatalf("unexpected record %v", got)
	}
	if !got.Until.Equal(until) || !got.LastModified.Equal(lm) {
		t.Fatalf("times lost precision %v", got)
	}
	if back.Note != "seed" {
		t.Fatalf("expected note to survive")
	}
}

func TestUpdateKeepsCreatedAtAndNote(t *testing.T) {
	d := &Doc{CreatedAt: 7, Note: "seed", Value: "A"}
	d.Update(&types.LeaseRecord{Value: "B"}, time.Unix(0, 100), time.Unix(0, 200))
	if d.CreatedAt != 7 || d.Note != "seed" {
		t.Fatalf("update touched created at or note %+v", d)
	}
	if d.Value != "B" || d.Until != 100 || d.LastModified != 200 {
		t.Fatalf("update not applied %+v", d)
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNextLastModified(t *testing.T) {
	prev := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := NextLastModified(prev, prev); !got.After(prev) {
		t.Fatalf("expected strictly newer got %v", got)
	}
	later := prev.Add(time.Second)
	if got := NextLastModified(later, prev); !got.Equal(later) {
		t.Fatalf("expected now when clock moved forward got %v", got)
	}
}
