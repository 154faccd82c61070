package sms

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Message is a single <sms> entry of an SMS backup export.
type Message struct {
	Address      string `xml:"address,attr"`
	Body         string `xml:"body,attr"`
	Date         string `xml:"date,attr"`
	ReadableDate string `xml:"readable_date,attr"`
}

// Backup is the root element of an SMS backup export. The root tag name
// is not checked; only direct <sms> children are read.
type Backup struct {
	Messages []Message `xml:"sms"`
}

// DateLayout is the ISO-8601 UTC layout used for record dates.
const DateLayout = "2006-01-02T15:04:05Z"

// Decode reads an SMS backup document from r.
func Decode(r io.Reader) (*Backup, error) {
	var backup Backup
	if err := xml.NewDecoder(r).Decode(&backup); err != nil {
		return nil, fmt.Errorf("decode sms backup: %w", err)
	}
	return &backup, nil
}

// ResolveDate converts the message's epoch-millisecond timestamp into an
// ISO-8601 UTC string. When the timestamp is missing, not numeric or outside
// years 1..9999 it falls back to the readable date; it returns nil when
// neither is usable.
func (m Message) ResolveDate() *string {
	if ms, err := strconv.ParseInt(strings.TrimSpace(m.Date), 10, 64); err == nil {
		sec := ms / 1000
		if ms%1000 < 0 {
			sec--
		}
		if t := time.Unix(sec, 0).UTC(); t.Year() >= 1 && t.Year() <= 9999 {
			s := FormatDate(t)
			return &s
		}
	}
	if m.ReadableDate != "" {
		s := m.ReadableDate
		return &s
	}
	return nil
}

// FormatDate renders t in UTC with whole-second precision and a trailing "Z".
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
