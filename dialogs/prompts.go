// Copyright (c) Microsoft. All rights reserved.

package dialogs

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
)

// NewTextPrompt accepts any non-empty message text.
func NewTextPrompt(id string, validator PromptValidator[string]) *Prompt[string] {
	return newPrompt(id, validator, func(_ context.Context, tc *agents.TurnContext, _ PromptOptions) (PromptRecognizerResult[string], error) {
		text := tc.Activity().Text
		return PromptRecognizerResult[string]{Succeeded: text != "", Value: text}, nil
	})
}

var numberPattern = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)

// NewNumberPrompt accepts the first number in the message text.
func NewNumberPrompt(id string, validator PromptValidator[float64]) *Prompt[float64] {
	return newPrompt(id, validator, func(_ context.Context, tc *agents.TurnContext, _ PromptOptions) (PromptRecognizerResult[float64], error) {
		m := numberPattern.FindString(tc.Activity().Text)
		if m == "" {
			return PromptRecognizerResult[float64]{}, nil
		}
		f, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
		if err != nil {
			return PromptRecognizerResult[float64]{}, nil
		}
		return PromptRecognizerResult[float64]{Succeeded: true, Value: f}, nil
	})
}

var (
	confirmYes = map[string]bool{"yes": true, "y": true, "yeah": true, "yep": true, "sure": true, "ok": true, "okay": true, "true": true, "1": true}
	confirmNo  = map[string]bool{"no": true, "n": true, "nope": true, "nah": true, "false": true, "2": true}
)

// NewConfirmPrompt accepts yes or no answers.
func NewConfirmPrompt(id string, validator PromptValidator[bool]) *Prompt[bool] {
	p := newPrompt(id, validator, func(_ context.Context, tc *agents.TurnContext, _ PromptOptions) (PromptRecognizerResult[bool], error) {
		word := normalize(tc.Activity().Text)
		switch {
		case confirmYes[word]:
			return PromptRecognizerResult[bool]{Succeeded: true, Value: true}, nil
		case confirmNo[word]:
			return PromptRecognizerResult[bool]{Succeeded: true, Value: false}, nil
		default:
			return PromptRecognizerResult[bool]{}, nil
		}
	})
	p.decorate = func(a *activity.Activity, _ PromptOptions) {
		if a.IsType(activity.TypeMessage) && a.Text != "" {
			a.Text += " (1) Yes or (2) No"
		}
	}
	return p
}

// FoundChoice is the result of a [NewChoicePrompt].
type FoundChoice struct {
	Value string `json:"value"`
	Index int    `json:"index"`
}

// NewChoicePrompt accepts one of PromptOptions.Choices, matched by text
// ignoring case, or by its 1-based number.
func NewChoicePrompt(id string, validator PromptValidator[FoundChoice]) *Prompt[FoundChoice] {
	p := newPrompt(id, validator, func(_ context.Context, tc *agents.TurnContext, opts PromptOptions) (PromptRecognizerResult[FoundChoice], error) {
		return recognizeChoice(tc.Activity().Text, opts.Choices), nil
	})
	p.decorate = func(a *activity.Activity, opts PromptOptions) {
		if a.IsType(activity.TypeMessage) && len(opts.Choices) > 0 {
			a.Text = strings.TrimSpace(a.Text + " " + inlineChoices(opts.Choices))
		}
	}
	return p
}

func recognizeChoice(text string, choices []string) PromptRecognizerResult[FoundChoice] {
	word := normalize(text)
	if word == "" {
		return PromptRecognizerResult[FoundChoice]{}
	}
	for i, c := range choices {
		if normalize(c) == word {
			return PromptRecognizerResult[FoundChoice]{Succeeded: true, Value: FoundChoice{Value: c, Index: i}}
		}
	}
	if n, err := strconv.Atoi(word); err == nil && n >= 1 && n <= len(choices) {
		return PromptRecognizerResult[FoundChoice]{Succeeded: true, Value: FoundChoice{Value: choices[n-1], Index: n - 1}}
	}
	return PromptRecognizerResult[FoundChoice]{}
}

// inlineChoices renders "(1) red, (2) green or (3) blue".
func inlineChoices(choices []string) string {
	parts := make([]string, len(choices))
	for i, c := range choices {
		parts[i] = fmt.Sprintf("(%d) %s", i+1, c)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " or " + parts[len(parts)-1]
}

func normalize(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), ".!?"))
}
