package cmd

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your executions",
	Long:  `List all of your submitted jobs with their current status, newest first.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := clientFromConfig(cmd)
		if !ok {
			return
		}

		resp, err := client.ListExecutions()
		if err != nil {
			cmd.Printf("Failed to list executions: %v\n", err)
			return
		}

		if len(resp.Executions) == 0 {
			cmd.Println("No executions found")
			return
		}

		for _, execution := range resp.Executions {
			current := "UNKNOWN"
			if len(execution.Statuses) > 0 {
				current = execution.Statuses[len(execution.Statuses)-1].Status
			}
			cmd.Printf("%s  %s  %s%s%s\n", execution.JobID, colorizeStatus(current), colorDim, execution.ArtifactPath, colorReset)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
