package main

import (
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"
)

func threadMessage(ts, user, text string) slack.Message {
	return slack.Message{Msg: slack.Msg{Timestamp: ts, User: user, Text: text}}
}

func TestRenderTranscriptLinesOrdersByTimestamp(t *testing.T) {
	msgs := []slack.Message{
		threadMessage("1767225603.000100", "U2", "third"),
		threadMessage("1767225601.000100", "U1", "first"),
		threadMessage("1767225602.000100", "U1", "second"),
	}
	name := func(m slack.Message) string { return m.User }

	lines := renderTranscriptLines(msgs, name, time.UTC)

	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[0], "U1: first") ||
		!strings.HasSuffix(lines[1], "U1: second") ||
		!strings.HasSuffix(lines[2], "U2: third") {
		t.Fatalf("lines must be ordered by post time, got %v", lines)
	}
	if !strings.HasPrefix(lines[0], "[2026-01-01 00:00:01]") {
		t.Fatalf("unexpected timestamp rendering: %q", lines[0])
	}
}

func TestRenderTranscriptLinesEmptyText(t *testing.T) {
	msgs := []slack.Message{threadMessage("1767225601.000100", "U1", "")}
	name := func(m slack.Message) string { return m.User }

	lines := renderTranscriptLines(msgs, name, time.UTC)

	if len(lines) != 1 || !strings.HasSuffix(lines[0], "U1: ") {
		t.Fatalf("empty message text must render as an empty field, got %v", lines)
	}
}

func TestSlackTimestamp(t *testing.T) {
	got := slackTimestamp("1767225601.000100")
	want := time.Unix(1767225601, 100*int64(time.Microsecond))
	if !got.Equal(want) {
		t.Fatalf("unexpected parse: got %v want %v", got, want)
	}

	if got := slackTimestamp("1767225601"); !got.Equal(time.Unix(1767225601, 0)) {
		t.Fatalf("fraction must be optional, got %v", got)
	}

	if !slackTimestamp("not-a-ts").IsZero() {
		t.Fatal("malformed timestamps must map to the zero time")
	}
}

func TestExportResolvesDisplayNames(t *testing.T) {
	fake := newFakeSlack()
	cfg := testConfig(t)
	exporter := &TranscriptExporter{api: fake, cfg: cfg}

	fake.users["UALICE"] = &slack.User{
		Name:     "alice.raw",
		RealName: "Alice Real",
		Profile:  slack.UserProfile{DisplayName: "alice"},
	}
	fake.users["UBOB"] = &slack.User{Name: "bob.raw", RealName: "Bob Real"}
	fake.replies["CSUPPORT|1.000000"] = []slack.Message{
		threadMessage("1767225601.000100", "UALICE", "hello"),
		threadMessage("1767225602.000100", "UBOB", "hi"),
		threadMessage("1767225603.000100", "UGHOST", "boo"),
	}

	if err := exporter.Export("CSUPPORT", "1.000000"); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	if len(fake.uploads) != 1 {
		t.Fatalf("expected one upload, got %d", len(fake.uploads))
	}
	content := fake.uploadContents[0]
	if !strings.Contains(content, "alice: hello") {
		t.Fatalf("display name must win over real name, got %q", content)
	}
	if !strings.Contains(content, "Bob Real: hi") {
		t.Fatalf("real name must be the fallback, got %q", content)
	}
	if !strings.Contains(content, "UGHOST: boo") {
		t.Fatalf("unresolvable users fall back to the raw id, got %q", content)
	}
	if fake.uploads[0].Channel != cfg.TranscriptChannelID {
		t.Fatalf("upload must target the archive channel, got %q", fake.uploads[0].Channel)
	}
	if !strings.Contains(fake.uploads[0].InitialComment, "Transcript for") {
		t.Fatalf("upload comment must reference the thread, got %q", fake.uploads[0].InitialComment)
	}
}

func TestExportEmptyThreadUploadsSentinel(t *testing.T) {
	fake := newFakeSlack()
	exporter := &TranscriptExporter{api: fake, cfg: testConfig(t)}

	if err := exporter.Export("CSUPPORT", "1.000000"); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if len(fake.uploads) != 1 || fake.uploadContents[0] != transcriptSentinel {
		t.Fatalf("empty thread must upload the sentinel, got %v", fake.uploadContents)
	}
}
