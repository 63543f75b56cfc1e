package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewFallsBackToInfo(t *testing.T) {
	l := New("loud", "text")
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want info", l.GetLevel())
	}
}

func TestJSONFormatWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("debug", "json", &buf)

	Component(l, "storage").Debug("read document")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["component"] != "storage" || entry["msg"] != "read document" {
		t.Fatalf("unexpected entry %v", entry)
	}
}
