package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/alan/issue-relay/cmd"
	"github.com/alan/issue-relay/internal/relay"
)

// formatRunSummary creates the one-line outcome of a relay pass
func formatRunSummary(repository string, issueNumber int, result *relay.Result) string {
	var parts []string
	if result.IssueAnnounced {
		parts = append(parts, "issue")
	}
	if result.CommentsAnnounced > 0 {
		parts = append(parts, fmt.Sprintf("%d comment(s)", result.CommentsAnnounced))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("✅ %s#%d: nothing new to announce\n", repository, issueNumber)
	}
	return fmt.Sprintf("✅ %s#%d: announced %s\n", repository, issueNumber, strings.Join(parts, " and "))
}

// DisplayRunSummary prints the outcome of a relay pass
func DisplayRunSummary(repository string, issueNumber int, result *relay.Result) {
	fmt.Print(formatRunSummary(repository, issueNumber, result))
}

// formatCheckpoint renders the checkpoint for the status command
func formatCheckpoint(path string, checkpoint *cmd.Checkpoint) string {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("Checkpoint: %s\n", path))

	announced := "no"
	if checkpoint.IssueAnnounced {
		announced = "yes"
	}
	msg.WriteString(fmt.Sprintf("  Issue announced:  %s\n", announced))
	msg.WriteString(fmt.Sprintf("  Last comment ID:  %d\n", checkpoint.LastCommentID))
	msg.WriteString(fmt.Sprintf("  Seen comment IDs: %d\n", len(checkpoint.SeenCommentIDs)))

	lastFetch := "never"
	if !checkpoint.LastFetchTime.IsZero() {
		lastFetch = checkpoint.LastFetchTime.UTC().Format(time.RFC3339)
	}
	msg.WriteString(fmt.Sprintf("  Last fetch:       %s\n", lastFetch))

	return msg.String()
}

// DisplayCheckpoint prints the checkpoint for the status command
func DisplayCheckpoint(path string, checkpoint *cmd.Checkpoint) {
	fmt.Print(formatCheckpoint(path, checkpoint))
}
