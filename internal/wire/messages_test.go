package wire

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseClientMessage_Join(t *testing.T) {
	got, err := ParseClientMessage([]byte(`{"type":"join","room":"r1"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Type != MessageTypeJoin || got.Room != "r1" {
		t.Fatalf("unexpected decoded join: %#v", got)
	}
}

func TestParseClientMessage_JoinRequiresRoom(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"join"}`))
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err=%v, want ProtocolError", err)
	}
	if !strings.Contains(perr.Reason, "room") {
		t.Fatalf("reason=%q, expected mention of room", perr.Reason)
	}
}

func TestParseClientMessage_DirectedSignal(t *testing.T) {
	got, err := ParseClientMessage([]byte(`{"type":"signal","to":"p2","data":{"sdp":"v=0"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.To != "p2" || len(got.Data) == 0 {
		t.Fatalf("unexpected decoded signal: %#v", got)
	}
}

func TestParseClientMessage_SignalRequiresData(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"signal","to":"p2"}`))
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err=%v, want ProtocolError", err)
	}
}

func TestParseClientMessage_UnknownTypeNamedInError(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"frobnicate"}`))
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err=%v, want ProtocolError", err)
	}
	if !strings.Contains(perr.Reason, `"frobnicate"`) {
		t.Fatalf("reason=%q, expected unknown type to be named", perr.Reason)
	}
}

func TestParseClientMessage_MissingTypeRejected(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"room":"r1"}`))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseClientMessage_IgnoresUnknownFields(t *testing.T) {
	got, err := ParseClientMessage([]byte(`{"type":"leave","future":"field"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Type != MessageTypeLeave {
		t.Fatalf("type=%q, want %q", got.Type, MessageTypeLeave)
	}
}

func TestParseClientMessage_NotAnObject(t *testing.T) {
	for _, raw := range []string{`[]`, `"join"`, ``, `{`} {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestServerMessage_JoinedShape(t *testing.T) {
	b, err := json.Marshal(ServerMessage{
		Type:  MessageTypeJoined,
		ID:    "p1",
		Peers: []string{"p2", "p3"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "joined" || got["id"] != "p1" {
		t.Fatalf("unexpected joined message: %s", b)
	}
	if _, present := got["peerId"]; present {
		t.Fatalf("empty fields should be omitted: %s", b)
	}
}

func TestSDP_PionRoundTrip(t *testing.T) {
	s := SDP{Type: "offer", SDP: "v=0"}
	desc, err := s.ToPion()
	if err != nil {
		t.Fatalf("ToPion: %v", err)
	}
	if back := SDPFromPion(desc); back != s {
		t.Fatalf("round trip: got %#v, want %#v", back, s)
	}
}

func TestSDP_ToPionRejectsUnknownType(t *testing.T) {
	if _, err := (SDP{Type: "pranswer", SDP: "v=0"}).ToPion(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCandidate_PionRoundTrip(t *testing.T) {
	mid := "0"
	c := Candidate{Candidate: "candidate:1 1 udp 1 127.0.0.1 9 typ host", SDPMid: &mid}
	back := CandidateFromPion(c.ToPion())
	if back.Candidate != c.Candidate || back.SDPMid == nil || *back.SDPMid != mid {
		t.Fatalf("round trip: got %#v, want %#v", back, c)
	}
}
