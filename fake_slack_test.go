package main

import (
	"fmt"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
)

// sentMessage is one recorded Slack call, with the applied message options
// decoded into form values ("text", "blocks", "attachments", "thread_ts").
type sentMessage struct {
	ChannelID string
	TS        string
	UserID    string
	Values    url.Values
}

// fakeSlack is a recording slackAPI double.
type fakeSlack struct {
	mu     sync.Mutex
	nextTS int

	postErr   error
	updateErr error
	uploadErr error
	deleteErr map[string]error

	posts      []sentMessage
	updates    []sentMessage
	deletes    []sentMessage
	ephemerals []sentMessage
	views      []slack.ModalViewRequest

	uploads        []slack.UploadFileV2Parameters
	uploadContents []string

	replies map[string][]slack.Message
	users   map[string]*slack.User
}

func newFakeSlack() *fakeSlack {
	return &fakeSlack{
		deleteErr: make(map[string]error),
		replies:   make(map[string][]slack.Message),
		users:     make(map[string]*slack.User),
	}
}

func decodeMsgOptions(channelID string, options ...slack.MsgOption) url.Values {
	_, values, err := slack.UnsafeApplyMsgOptions("token", channelID, "https://slack.test/api/", options...)
	if err != nil {
		return url.Values{}
	}
	return values
}

func (f *fakeSlack) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", "", f.postErr
	}
	f.nextTS++
	ts := fmt.Sprintf("100%d.000000", f.nextTS)
	f.posts = append(f.posts, sentMessage{ChannelID: channelID, TS: ts, Values: decodeMsgOptions(channelID, options...)})
	return channelID, ts, nil
}

func (f *fakeSlack) PostEphemeral(channelID, userID string, options ...slack.MsgOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ephemerals = append(f.ephemerals, sentMessage{ChannelID: channelID, UserID: userID, Values: decodeMsgOptions(channelID, options...)})
	return "", nil
}

func (f *fakeSlack) UpdateMessage(channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return "", "", "", f.updateErr
	}
	f.updates = append(f.updates, sentMessage{ChannelID: channelID, TS: timestamp, Values: decodeMsgOptions(channelID, options...)})
	return channelID, timestamp, "", nil
}

func (f *fakeSlack) DeleteMessage(channelID, timestamp string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, sentMessage{ChannelID: channelID, TS: timestamp})
	if err := f.deleteErr[timestamp]; err != nil {
		return "", "", err
	}
	return channelID, timestamp, nil
}

func (f *fakeSlack) GetConversationReplies(params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replies[params.ChannelID+"|"+params.Timestamp], false, "", nil
}

// UploadFileV2 snapshots the artifact content at upload time, so tests can
// prove the file existed during the upload and was removed afterwards.
func (f *fakeSlack) UploadFileV2(params slack.UploadFileV2Parameters) (*slack.FileSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, err := os.ReadFile(params.File)
	if err != nil {
		return nil, fmt.Errorf("upload source missing: %w", err)
	}
	f.uploads = append(f.uploads, params)
	f.uploadContents = append(f.uploadContents, string(content))
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &slack.FileSummary{ID: fmt.Sprintf("F%d", len(f.uploads))}, nil
}

func (f *fakeSlack) GetUserInfo(user string) (*slack.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[user]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user_not_found")
}

func (f *fakeSlack) GetPermalink(params *slack.PermalinkParameters) (string, error) {
	return fmt.Sprintf("https://slack.test/archives/%s/p%s", params.Channel, params.Ts), nil
}

func (f *fakeSlack) OpenView(triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = append(f.views, view)
	return &slack.ViewResponse{}, nil
}

func (f *fakeSlack) lastEphemeralText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ephemerals) == 0 {
		t.Fatal("expected at least one ephemeral message")
	}
	return f.ephemerals[len(f.ephemerals)-1].Values.Get("text")
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		SlackBotToken:       "xoxb-test",
		SlackAppToken:       "xapp-test",
		TranscriptChannelID: "CARCHIVE",
		TrainingChannelID:   "CTRAIN",
		SupportGroupID:      "S123SUPPORT",
		ManagerIDs:          []string{"UMANAGER"},
		TranscriptDir:       t.TempDir(),
		SweepSchedule:       "* * * * *",
		Timezone:            "UTC",
		Location:            time.UTC,
	}
}
