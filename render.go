package main

import "github.com/slack-go/slack"

// Card is the structured message the bot renders: a title line, body text,
// an ordered field list, a color bar, an optional footer and thumbnail.
// Coordinators hold domain state and project it through a Card, so the
// rendered text is never itself the source of truth.
type Card struct {
	Title     string
	Text      string
	Fields    []CardField
	Color     string
	Footer    string
	Thumbnail string
}

type CardField struct {
	Name  string
	Value string
}

const (
	colorBlurple = "#5865F2"
	colorOrange  = "#E67E22"
)

func (c Card) attachment() slack.Attachment {
	fields := make([]slack.AttachmentField, 0, len(c.Fields))
	for _, f := range c.Fields {
		fields = append(fields, slack.AttachmentField{
			Title: f.Name,
			Value: f.Value,
		})
	}
	return slack.Attachment{
		Color:    c.Color,
		Title:    c.Title,
		Text:     c.Text,
		Fields:   fields,
		Footer:   c.Footer,
		ThumbURL: c.Thumbnail,
	}
}
