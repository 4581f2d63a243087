package cmd

import (
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage interactive language-server sessions",
	Long: `Create and maintain interactive sessions. A session holds uploaded source
files and a language-server container; it expires unless renewed or used.`,
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new session",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := clientFromConfig(cmd)
		if !ok {
			return
		}

		resp, err := client.CreateSession()
		if err != nil {
			cmd.Printf("Failed to create session: %v\n", err)
			return
		}

		cmd.Printf("%s✓%s Session created\n", colorGreen, colorReset)
		cmd.Printf("%sSession ID:%s %s\n", colorDim, colorReset, resp.SessionID)
	},
}

var sessionRenewCmd = &cobra.Command{
	Use:   "renew [session_id]",
	Short: "Reset a session's expiry window",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := clientFromConfig(cmd)
		if !ok {
			return
		}

		if err := client.RenewSession(args[0]); err != nil {
			cmd.Printf("Failed to renew session: %v\n", err)
			return
		}
		cmd.Printf("%s✓%s Session renewed\n", colorGreen, colorReset)
	},
}

var sessionUploadCmd = &cobra.Command{
	Use:   "upload [session_id] [file]",
	Short: "Upload a Dart source file to a session",
	Long: `Upload a .dart file into the session workspace. The first upload starts
the session's language-server container.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := clientFromConfig(cmd)
		if !ok {
			return
		}

		resp, err := client.UploadFile(args[0], args[1])
		if err != nil {
			cmd.Printf("Upload failed: %v\n", err)
			return
		}

		cmd.Printf("%s✓%s Uploaded %s\n", colorGreen, colorReset, resp.FileName)
		if resp.ContainerID != "" {
			cmd.Printf("%sContainer:%s %s\n", colorDim, colorReset, resp.ContainerID)
		}
	},
}

func init() {
	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionRenewCmd)
	sessionCmd.AddCommand(sessionUploadCmd)
	rootCmd.AddCommand(sessionCmd)
}
