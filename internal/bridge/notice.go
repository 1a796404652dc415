package bridge

import "time"

// NoticeType is the "type" field of a notice.
type NoticeType string

const (
	NoticePublish  NoticeType = "publish"
	NoticeRegister NoticeType = "register"
	NoticeClose    NoticeType = "close"
)

// TimeLayout is RFC 3339 in UTC with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Notice is a flat record broadcast to every subscribed client. Codecs write
// its keys in sorted order.
type Notice map[string]any

// Type returns the notice type, or "" for a record without one.
func (n Notice) Type() NoticeType {
	t, _ := n["type"].(NoticeType)
	return t
}

// PublishNotice announces message as sent from host:port at now.
func PublishNotice(host string, port int, message string, now time.Time) Notice {
	return Notice{
		"type":    NoticePublish,
		"time":    now.UTC().Format(TimeLayout),
		"host":    host,
		"port":    port,
		"message": message,
	}
}

// RegisterNotice announces a new client; count includes it.
func RegisterNotice(count int64) Notice {
	return Notice{
		"type":   NoticeRegister,
		"online": count,
	}
}

// CloseNotice announces a departed client; count excludes it.
func CloseNotice(count int64) Notice {
	return Notice{
		"type":   NoticeClose,
		"online": count,
	}
}
