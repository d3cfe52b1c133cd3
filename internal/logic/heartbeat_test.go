package logic

import (
	"testing"
	"time"
)

func TestCheckHeartbeatDisabled(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(startTime)

	if hb := h.Check(startTime.Add(15*time.Minute), 0, ActionCounts{}); hb != nil {
		t.Error("should not return heartbeat when interval is 0 (disabled)")
	}
	if hb := h.Check(startTime.Add(15*time.Minute), -time.Minute, ActionCounts{}); hb != nil {
		t.Error("should not return heartbeat when interval is negative")
	}
}

func TestCheckHeartbeatBeforeInterval(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(startTime)

	if hb := h.Check(startTime.Add(14*time.Minute), 15*time.Minute, ActionCounts{}); hb != nil {
		t.Error("should not return heartbeat before interval")
	}
}

func TestCheckHeartbeatAtInterval(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(startTime)

	checkTime := startTime.Add(15 * time.Minute)
	counts := ActionCounts{PowerOn: 2, Ignored: 1}
	hb := h.Check(checkTime, 15*time.Minute, counts)
	if hb == nil {
		t.Fatal("should return heartbeat at interval")
	}
	if !hb.Timestamp.Equal(checkTime) {
		t.Errorf("expected timestamp %v, got %v", checkTime, hb.Timestamp)
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("expected uptime 15m, got %v", hb.Uptime)
	}
	if hb.Counts != counts {
		t.Errorf("expected counts %+v, got %+v", counts, hb.Counts)
	}
}

func TestCheckHeartbeatUpdatesLastTime(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(startTime)

	t1 := startTime.Add(15 * time.Minute)
	if hb := h.Check(t1, 15*time.Minute, ActionCounts{}); hb == nil {
		t.Fatal("should return first heartbeat")
	}
	if hb := h.Check(t1.Add(time.Second), 15*time.Minute, ActionCounts{}); hb != nil {
		t.Error("should not return heartbeat immediately after previous")
	}
	if hb := h.Check(t1.Add(15*time.Minute), 15*time.Minute, ActionCounts{}); hb == nil {
		t.Fatal("should return second heartbeat")
	}
}

func TestActionCountsAdd(t *testing.T) {
	var c ActionCounts
	c.Add(Action{Type: ActionPowerOn, Outcome: OutcomeSent})
	c.Add(Action{Type: ActionPowerOn, Outcome: OutcomeSent})
	c.Add(Action{Type: ActionStandby, Outcome: OutcomeSent})
	c.Add(Action{Type: ActionStandby, Outcome: OutcomeIgnored})
	c.Add(Action{Type: ActionStandby, Outcome: OutcomeFailed})
	c.Add(Action{Type: ActionPowerOn, Outcome: OutcomeFailed})

	want := ActionCounts{PowerOn: 2, Standby: 1, Ignored: 1, Failed: 2}
	if c != want {
		t.Errorf("got %+v, want %+v", c, want)
	}
}
