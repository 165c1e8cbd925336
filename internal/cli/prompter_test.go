package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stringvet/stringvet/internal/model"
)

func sampleIssue(fix string) model.VerificationIssue {
	return model.VerificationIssue{
		Key:          "greeting",
		Source:       "Hello",
		Translation:  "Holla",
		Issues:       []string{"spelling mistake"},
		SuggestedFix: fix,
	}
}

func TestResolveIssueDecisions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		fix   string
		want  Decision
	}{
		{name: "apply", input: "a\n", fix: "Hola", want: DecisionApply},
		{name: "dismiss", input: "d\n", fix: "Hola", want: DecisionDismiss},
		{name: "flag", input: "f\n", fix: "Hola", want: DecisionFlag},
		{name: "skip", input: "s\n", fix: "Hola", want: DecisionSkip},
		{name: "quit", input: "q\n", fix: "Hola", want: DecisionQuit},
		{name: "uppercase accepted", input: "D\n", fix: "Hola", want: DecisionDismiss},
		{name: "invalid then valid", input: "x\nd\n", fix: "Hola", want: DecisionDismiss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			prompter := NewIssuePrompter(strings.NewReader(tt.input), &out)

			decision, err := prompter.ResolveIssue(context.Background(), 0, 1, sampleIssue(tt.fix))
			require.NoError(t, err)
			assert.Equal(t, tt.want, decision)
		})
	}
}

func TestResolveIssueWithoutFixHidesApply(t *testing.T) {
	var out bytes.Buffer
	prompter := NewIssuePrompter(strings.NewReader("a\nd\n"), &out)

	// "a" is rejected when there is no suggested fix; "d" is then accepted.
	decision, err := prompter.ResolveIssue(context.Background(), 0, 1, sampleIssue(""))
	require.NoError(t, err)
	assert.Equal(t, DecisionDismiss, decision)
	assert.NotContains(t, out.String(), "Apply suggested fix")
	assert.Contains(t, out.String(), "Invalid choice")
}

func TestResolveIssueShowsFindings(t *testing.T) {
	var out bytes.Buffer
	prompter := NewIssuePrompter(strings.NewReader("s\n"), &out)

	_, err := prompter.ResolveIssue(context.Background(), 2, 5, sampleIssue("Hola"))
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "Issue 3 of 5")
	assert.Contains(t, output, "greeting")
	assert.Contains(t, output, "spelling mistake")
	assert.Contains(t, output, "Hola")
	assert.Contains(t, output, FlagIcon)
}

func TestResolveIssueHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prompter := NewIssuePrompter(strings.NewReader("d\n"), &bytes.Buffer{})
	_, err := prompter.ResolveIssue(ctx, 0, 1, sampleIssue("Hola"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveIssueEOF(t *testing.T) {
	prompter := NewIssuePrompter(strings.NewReader(""), &bytes.Buffer{})
	_, err := prompter.ResolveIssue(context.Background(), 0, 1, sampleIssue("Hola"))
	require.Error(t, err)
}

func TestConfirmAll(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "yes", input: "y\n", want: true},
		{name: "yes word", input: "yes\n", want: true},
		{name: "no", input: "n\n", want: false},
		{name: "default no", input: "\n", want: false},
		{name: "eof is no", input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompter := NewIssuePrompter(strings.NewReader(tt.input), &bytes.Buffer{})
			ok, err := prompter.ConfirmAll(context.Background(), "Dismiss", 4)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}
