package cmd

import (
	"github.com/spf13/cobra"

	"runbox/pkg/api"
)

var submitCmd = &cobra.Command{
	Use:   "submit [artifact_path]",
	Short: "Submit a program for execution",
	Long: `Queue a program for sandboxed execution. The path is resolved relative to
the server's artifact root; the job starts in the QUEUED state and a worker
picks it up asynchronously. Use "runctl status" to follow its progress.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := clientFromConfig(cmd)
		if !ok {
			return
		}

		resp, err := client.SubmitExecution(api.SubmitExecutionRequest{ArtifactPath: args[0]})
		if err != nil {
			cmd.Printf("Submission failed: %v\n", err)
			return
		}

		cmd.Printf("%s✓%s Job submitted\n", colorGreen, colorReset)
		cmd.Printf("%sJob ID:%s  %s\n", colorDim, colorReset, resp.JobID)
		cmd.Printf("%sStatus:%s  %s\n", colorDim, colorReset, colorizeStatus(resp.Status))
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
}
