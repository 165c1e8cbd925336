package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/stringvet/stringvet/internal/model"
)

// Decision is the user's choice for one verification issue.
type Decision string

// Issue decisions.
const (
	DecisionApply   Decision = "apply"
	DecisionDismiss Decision = "dismiss"
	DecisionFlag    Decision = "flag"
	DecisionSkip    Decision = "skip"
	DecisionQuit    Decision = "quit"
)

// IssuePrompter walks the user through a run's verification issues one at a
// time.
type IssuePrompter struct {
	writer io.Writer
	reader *bufio.Reader
}

// NewIssuePrompter creates a prompter over the given reader and writer.
func NewIssuePrompter(reader io.Reader, writer io.Writer) *IssuePrompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	return &IssuePrompter{
		reader: bufio.NewReader(reader),
		writer: writer,
	}
}

// ResolveIssue shows one issue and asks for a decision. Apply is only offered
// when the issue carries a suggested fix.
func (p *IssuePrompter) ResolveIssue(ctx context.Context, index, total int, issue model.VerificationIssue) (Decision, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	content := p.formatIssue(issue)
	title := fmt.Sprintf("Issue %d of %d", index+1, total)
	if _, err := fmt.Fprintln(p.writer, RenderBox(title, content)); err != nil {
		return "", fmt.Errorf("failed to write issue box: %w", err)
	}

	hasFix := issue.SuggestedFix != ""
	if hasFix {
		if _, err := fmt.Fprintf(p.writer, "  [A] Apply suggested fix: %s\n", SuccessStyle.Render(issue.SuggestedFix)); err != nil {
			return "", fmt.Errorf("failed to write apply option: %w", err)
		}
	}
	options := []string{
		"  [D] Dismiss (keep translation, mark reviewed)",
		fmt.Sprintf("  [F] Flag for later attention %s", FlagIcon),
		"  [S] Skip this issue",
		"  [Q] Quit reviewing",
	}
	for _, opt := range options {
		if _, err := fmt.Fprintln(p.writer, opt); err != nil {
			return "", fmt.Errorf("failed to write option: %w", err)
		}
	}
	if _, err := fmt.Fprintln(p.writer); err != nil {
		return "", fmt.Errorf("failed to write newline: %w", err)
	}

	validChoices := []string{"d", "f", "s", "q"}
	promptText := "Choice [D/F/S/Q]"
	if hasFix {
		validChoices = append([]string{"a"}, validChoices...)
		promptText = "Choice [A/D/F/S/Q]"
	}

	choice, err := p.promptChoice(ctx, promptText, validChoices)
	if err != nil {
		return "", err
	}

	switch choice {
	case "a":
		return DecisionApply, nil
	case "d":
		return DecisionDismiss, nil
	case "f":
		return DecisionFlag, nil
	case "s":
		return DecisionSkip, nil
	case "q":
		return DecisionQuit, nil
	}
	return "", fmt.Errorf("unexpected choice: %s", choice)
}

// ConfirmAll asks once before a bulk action touches every issue in the run.
func (p *IssuePrompter) ConfirmAll(ctx context.Context, action string, count int) (bool, error) {
	prompt := fmt.Sprintf("%s all %d issues? [y/N]", action, count)
	if _, err := fmt.Fprintf(p.writer, "%s: ", FormatPrompt(prompt)); err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	input, err := p.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}

	answer := strings.ToLower(strings.TrimSpace(input))
	return answer == "y" || answer == "yes", nil
}

func (p *IssuePrompter) formatIssue(issue model.VerificationIssue) string {
	header := TitleStyle.Render(fmt.Sprintf("Key: %s", issue.Key))

	details := fmt.Sprintf("  Source:      %s\n", issue.Source) +
		fmt.Sprintf("  Translation: %s\n", WarningStyle.Render(issue.Translation))

	notes := fmt.Sprintf("\n%s Findings:\n", SearchIcon)
	for _, note := range issue.Issues {
		notes += fmt.Sprintf("  • %s\n", note)
	}

	var fix string
	if issue.SuggestedFix != "" {
		fix = fmt.Sprintf("\n%s Suggested fix: %s", PenIcon, SuccessStyle.Render(issue.SuggestedFix))
	}

	return header + "\n\n" + details + notes + fix
}

func (p *IssuePrompter) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		if _, err := fmt.Fprintf(p.writer, "%s: ", FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		input, err := p.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return "", fmt.Errorf("input terminated")
			}
			return "", err
		}

		choice := strings.ToLower(strings.TrimSpace(input))

		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}

		if _, err := fmt.Fprintln(p.writer, FormatError("Invalid choice. Please try again.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}
