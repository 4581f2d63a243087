package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"runbox/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get the status history of an execution",
	Long: `Retrieve a job's full append-only status history: QUEUED on submission,
READY when a worker picks it up, RUNNING while the sandbox executes it, and
finally FINISHED_WITH_SUCCESS or FAILED.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := clientFromConfig(cmd)
		if !ok {
			return
		}

		execution, err := client.GetExecution(args[0])
		if err != nil {
			cmd.Printf("Failed to fetch execution: %v\n", err)
			return
		}

		printStatus(cmd, execution)
	},
}

func printStatus(cmd *cobra.Command, execution *api.ExecutionResponse) {
	current := "UNKNOWN"
	if len(execution.Statuses) > 0 {
		current = execution.Statuses[len(execution.Statuses)-1].Status
	}

	cmd.Printf("%s %sExecution Details%s\n", statusIcon(current), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sJob ID:%s    %s\n", colorDim, colorReset, execution.JobID)
	cmd.Printf("%sArtifact:%s  %s\n", colorDim, colorReset, execution.ArtifactPath)
	cmd.Printf("%sCreated:%s   %s\n", colorDim, colorReset, formatTimeWithRelative(execution.CreatedAt))
	cmd.Printf("%sStatus:%s    %s\n", colorDim, colorReset, colorizeStatus(current))

	if len(execution.Statuses) > 0 {
		cmd.Println()
		cmd.Printf("%sHistory:%s\n", colorBold, colorReset)
		for _, entry := range execution.Statuses {
			cmd.Printf("  %s  %s%s%s\n", colorizeStatus(entry.Status), colorDim, entry.CreatedAt.Format("15:04:05.000"), colorReset)
		}
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "FINISHED_WITH_SUCCESS":
		return colorGreen + "✓" + colorReset
	case "FAILED":
		return colorRed + "✗" + colorReset
	case "RUNNING":
		return colorYellow + "⏳" + colorReset
	case "QUEUED", "READY":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "FINISHED_WITH_SUCCESS":
		return icon + " " + colorGreen + status + colorReset
	case "FAILED":
		return icon + " " + colorRed + status + colorReset
	case "RUNNING":
		return icon + " " + colorYellow + status + colorReset
	case "QUEUED", "READY":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(t), colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
