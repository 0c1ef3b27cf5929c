package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/trilayer/trilayer/internal/history"
)

// truncateStr truncates a string to n characters with ellipsis.
func truncateStr(s string, n int) string {
	if n < 4 {
		n = 4
	}
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// printRecords renders one line of identity plus a prompt/feedback
// preview per record.
func printRecords(records []history.ConversationRecord) {
	if len(records) == 0 {
		fmt.Println("No conversations found")
		return
	}

	fmt.Printf("%d conversation(s)\n\n", len(records))
	for _, rec := range records {
		fmt.Printf("%s  %s  %s/%s/%s\n",
			color.YellowString(rec.SessionID[:min(12, len(rec.SessionID))]),
			rec.CreatedAt,
			rec.ClientName, rec.Worker, rec.ProjectName,
		)
		fmt.Printf("  prompt:   %s\n", truncateStr(oneLine(rec.AIPrompt), 80))
		if rec.UserFeedback != "" {
			fmt.Printf("  feedback: %s\n", truncateStr(oneLine(rec.UserFeedback), 80))
		}
		fmt.Println()
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
