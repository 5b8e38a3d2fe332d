// Copyright (c) Microsoft. All rights reserved.

package activity

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Mention is an entity of type "mention".
type Mention struct {
	Type      string         `json:"type"`
	Mentioned ChannelAccount `json:"mentioned"`
	Text      string         `json:"text,omitempty"`
}

// GetMentions returns the mention entities attached to the activity.
// Entities that fail to decode are skipped.
func (a *Activity) GetMentions() []Mention {
	var out []Mention
	for _, raw := range a.Entities {
		var m Mention
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		if strings.EqualFold(m.Type, "mention") {
			out = append(out, m)
		}
	}
	return out
}

// RemoveRecipientMention strips every mention of the activity's recipient
// from Text and returns the new text.
func (a *Activity) RemoveRecipientMention() string {
	return a.RemoveMentionText(a.Recipient.ID)
}

// RemoveMentionText strips mentions of the account with the given id from
// Text and returns the new text.
func (a *Activity) RemoveMentionText(id string) string {
	if id == "" {
		return a.Text
	}
	for _, m := range a.GetMentions() {
		if m.Mentioned.ID != id {
			continue
		}
		if m.Text != "" {
			a.Text = strings.ReplaceAll(a.Text, m.Text, "")
			continue
		}
		if m.Mentioned.Name != "" {
			re := regexp.MustCompile(`<at[^>]*>` + regexp.QuoteMeta(m.Mentioned.Name) + `</at>`)
			a.Text = re.ReplaceAllString(a.Text, "")
		}
	}
	a.Text = strings.TrimSpace(a.Text)
	return a.Text
}
