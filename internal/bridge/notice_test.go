package bridge

import (
	"testing"
	"time"
)

func TestPublishNotice(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 3, 1, 15, 4, 5, 678_000_000, loc)

	n := PublishNotice("10.0.0.5", 5000, "hi", now)

	if n.Type() != NoticePublish {
		t.Errorf("type = %v, want publish", n.Type())
	}
	if n["host"] != "10.0.0.5" {
		t.Errorf("host = %v", n["host"])
	}
	if n["port"] != 5000 {
		t.Errorf("port = %v", n["port"])
	}
	if n["message"] != "hi" {
		t.Errorf("message = %v", n["message"])
	}
	if n["time"] != "2026-03-01T12:04:05.678Z" {
		t.Errorf("time = %v, want UTC RFC 3339", n["time"])
	}
	if len(n) != 5 {
		t.Errorf("publish notice has %d fields, want 5", len(n))
	}
}

func TestCountNotices(t *testing.T) {
	tests := []struct {
		name   string
		notice Notice
		typ    NoticeType
		online int64
	}{
		{"Register", RegisterNotice(7), NoticeRegister, 7},
		{"Close", CloseNotice(6), NoticeClose, 6},
		{"CloseNegative", CloseNotice(-1), NoticeClose, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.notice.Type() != tt.typ {
				t.Errorf("type = %v, want %v", tt.notice.Type(), tt.typ)
			}
			if tt.notice["online"] != tt.online {
				t.Errorf("online = %v, want %d", tt.notice["online"], tt.online)
			}
			if len(tt.notice) != 2 {
				t.Errorf("notice has %d fields, want 2", len(tt.notice))
			}
		})
	}
}
