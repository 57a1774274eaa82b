package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

const (
	transcriptHistoryLimit = 500
	transcriptSentinel     = "No messages found."
)

// TranscriptExporter renders a ticket thread's message history into an
// ordered text artifact and uploads it to the transcript archive channel.
// The local artifact is transient: it is removed on every exit path,
// whether or not the upload succeeded.
type TranscriptExporter struct {
	api slackAPI
	cfg Config
}

func (e *TranscriptExporter) Export(channelID, threadTS string) error {
	msgs, err := e.fetchThread(channelID, threadTS)
	if err != nil {
		return fmt.Errorf("fetching thread history: %w", err)
	}

	lines := renderTranscriptLines(msgs, e.displayName, e.cfg.Location)
	text := strings.Join(lines, "\n")
	if text == "" {
		text = transcriptSentinel
	}

	if err := os.MkdirAll(e.cfg.TranscriptDir, 0755); err != nil {
		return fmt.Errorf("creating transcript dir: %w", err)
	}
	filename := fmt.Sprintf("transcript_%s_%s.txt", channelID, strings.ReplaceAll(threadTS, ".", "_"))
	path := filepath.Join(e.cfg.TranscriptDir, filename)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing transcript file: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil {
			log.Printf("transcript cleanup error path=%s: %v", path, rmErr)
		}
	}()

	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stating transcript file: %w", err)
	}

	comment := fmt.Sprintf("Transcript for <#%s>:", channelID)
	if link, linkErr := e.api.GetPermalink(&slack.PermalinkParameters{Channel: channelID, Ts: threadTS}); linkErr == nil && link != "" {
		comment = fmt.Sprintf("Transcript for %s:", link)
	}

	_, err = e.api.UploadFileV2(slack.UploadFileV2Parameters{
		File:           path,
		FileSize:       int(fi.Size()),
		Filename:       filename,
		Channel:        e.cfg.TranscriptChannelID,
		Title:          filename,
		InitialComment: comment,
	})
	if err != nil {
		return fmt.Errorf("uploading transcript: %w", err)
	}
	return nil
}

func (e *TranscriptExporter) fetchThread(channelID, threadTS string) ([]slack.Message, error) {
	var msgs []slack.Message
	cursor := ""
	for {
		batch, hasMore, next, err := e.api.GetConversationReplies(&slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
			Limit:     transcriptHistoryLimit - len(msgs),
			Cursor:    cursor,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, batch...)
		if !hasMore || next == "" || len(msgs) >= transcriptHistoryLimit {
			break
		}
		cursor = next
	}
	if len(msgs) > transcriptHistoryLimit {
		msgs = msgs[:transcriptHistoryLimit]
	}
	return msgs, nil
}

func (e *TranscriptExporter) displayName(msg slack.Message) string {
	if msg.Username != "" {
		return msg.Username
	}
	if msg.User == "" {
		return "unknown"
	}
	user, err := e.api.GetUserInfo(msg.User)
	if err != nil {
		return msg.User
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	if user.RealName != "" {
		return user.RealName
	}
	return user.Name
}

// renderTranscriptLines formats messages as "[YYYY-MM-DD HH:MM:SS] name: text",
// sorted by post timestamp so lines are non-decreasing even when the platform
// returns them out of order. Empty message text renders as an empty field.
func renderTranscriptLines(msgs []slack.Message, displayName func(slack.Message) string, loc *time.Location) []string {
	sorted := make([]slack.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return slackTimestamp(sorted[i].Timestamp).Before(slackTimestamp(sorted[j].Timestamp))
	})

	if loc == nil {
		loc = time.Local
	}
	lines := make([]string, 0, len(sorted))
	for _, msg := range sorted {
		ts := slackTimestamp(msg.Timestamp).In(loc).Format("2006-01-02 15:04:05")
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", ts, displayName(msg), msg.Text))
	}
	return lines
}

// slackTimestamp parses a Slack "seconds.fraction" message timestamp.
// Malformed input maps to the zero time, which sorts first.
func slackTimestamp(ts string) time.Time {
	secStr, fracStr, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var nsec int64
	if fracStr != "" {
		// Slack fractions are microseconds.
		if micro, fracErr := strconv.ParseInt(fracStr, 10, 64); fracErr == nil {
			nsec = micro * int64(time.Microsecond)
		}
	}
	return time.Unix(sec, nsec)
}
