// Copyright (c) Microsoft. All rights reserved.

package sample_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/internal/sample"
	"github.com/microsoft/agents-sdk/go/internal/testutil"
	"github.com/microsoft/agents-sdk/go/storage"
)

func TestSampleAgentConversation(t *testing.T) {
	a, err := sample.NewAgent(storage.NewMemoryStorage(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	adapter := testutil.NewTestAdapter()

	turns := []struct {
		in   *activity.Activity
		want []string
	}{
		{testutil.MembersAdded(testutil.AgentID, "alice"), []string{"Hello and welcome! Say /profile to introduce yourself."}},
		{testutil.Message("hi"), []string{`you said "hi" (message 1)`}},
		{testutil.Message("/profile"), []string{"What is your name?"}},
		{testutil.Message("Ada"), []string{"How old are you?"}},
		{testutil.Message("old"), []string{"Please enter an age between 1 and 150."}},
		{testutil.Message("36"), []string{"Ada, 36. Is that right? (1) Yes or (2) No"}},
		{testutil.Message("yes"), []string{"Thanks Ada, saved."}},
		{testutil.Message("hello"), []string{`Ada, you said "hello" (message 2)`}},
		{testutil.Message("/reset"), []string{"Forgotten."}},
		{testutil.Message("again"), []string{`you said "again" (message 1)`}},
	}
	for _, turn := range turns {
		adapter.Reset()
		_, err := adapter.ProcessActivity(context.Background(), turn.in, a)
		require.NoError(t, err, turn.in.Text)
		assert.Equal(t, turn.want, adapter.SentTexts(), turn.in.Text)
	}
}

func TestSampleAgentProfileRestart(t *testing.T) {
	a, err := sample.NewAgent(storage.NewMemoryStorage(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	adapter := testutil.NewTestAdapter()

	for _, text := range []string{"/profile", "Bob", "40"} {
		_, err := adapter.ProcessActivity(context.Background(), testutil.Message(text), a)
		require.NoError(t, err)
	}
	adapter.Reset()
	_, err = adapter.ProcessActivity(context.Background(), testutil.Message("no"), a)
	require.NoError(t, err)
	assert.Equal(t, []string{"Okay, let's start over.", "What is your name?"}, adapter.SentTexts())
}

func TestSampleAgentProfileCommandMidFlowStartsOver(t *testing.T) {
	a, err := sample.NewAgent(storage.NewMemoryStorage(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	adapter := testutil.NewTestAdapter()

	tests := []struct {
		say  string
		want []string
	}{
		{"/profile", []string{"What is your name?"}},
		{"Ada", []string{"How old are you?"}},
		{"/profile", []string{"What is your name?"}},
		{"Grace", []string{"How old are you?"}},
		{"30", []string{"Grace, 30. Is that right? (1) Yes or (2) No"}},
		{"yes", []string{"Thanks Grace, saved."}},
	}
	for _, tt := range tests {
		adapter.Reset()
		_, err := adapter.ProcessActivity(context.Background(), testutil.Message(tt.say), a)
		require.NoError(t, err)
		assert.Equal(t, tt.want, adapter.SentTexts(), "after %q", tt.say)
	}
}
