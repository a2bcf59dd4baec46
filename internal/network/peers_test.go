package network

import "testing"

func TestConnectThenGet(t *testing.T) {
	s := NewPeerStore()
	s.Connect("peer-1", []string{"/ip4/10.0.0.1/tcp/4001"}, CapabilitySet{TaskKinds: []string{"inference"}})

	rec, ok := s.Get("peer-1")
	if !ok {
		t.Fatalf("expected peer-1 to be known")
	}
	if rec.Status != Connected {
		t.Fatalf("expected status Connected, got %s", rec.Status)
	}
	if len(rec.Addresses) != 1 {
		t.Fatalf("expected 1 address, got %d", len(rec.Addresses))
	}
}

func TestDisconnectUnknownPeerIsNoop(t *testing.T) {
	s := NewPeerStore()
	s.Disconnect("ghost") // must not panic
	if s.Len() != 0 {
		t.Fatalf("expected no records created by disconnecting an unknown peer")
	}
}

func TestDisconnectTransitionsStatus(t *testing.T) {
	s := NewPeerStore()
	s.Connect("peer-1", nil, CapabilitySet{})
	s.Disconnect("peer-1")

	rec, ok := s.Get("peer-1")
	if !ok {
		t.Fatalf("expected record to persist after disconnect")
	}
	if rec.Status != Disconnected {
		t.Fatalf("expected status Disconnected, got %s", rec.Status)
	}
}

func TestConnectedFiltersDisconnected(t *testing.T) {
	s := NewPeerStore()
	s.Connect("peer-1", nil, CapabilitySet{})
	s.Connect("peer-2", nil, CapabilitySet{})
	s.Disconnect("peer-2")

	connected := s.Connected()
	if len(connected) != 1 || connected[0].PeerID != "peer-1" {
		t.Fatalf("expected only peer-1 to be connected, got %+v", connected)
	}
}

func TestSetScoreUpdatesRecord(t *testing.T) {
	s := NewPeerStore()
	s.Connect("peer-1", nil, CapabilitySet{})
	s.SetScore("peer-1", 250)

	rec, _ := s.Get("peer-1")
	if rec.Score != 250 {
		t.Fatalf("expected score 250, got %d", rec.Score)
	}
}
