package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "runctl",
	Short: "Runctl is a command line tool for the runbox execution platform",
	Long: `runctl is the command-line interface for runbox, a platform that runs
submitted Dart programs in sandboxed containers and hosts interactive
language-server sessions.

Common workflows:

  Submit a program for execution:
    runctl submit path/to/main.dart

  Check an execution's status history:
    runctl status <job-id>

  List your executions:
    runctl list

  Work with interactive sessions:
    runctl session create
    runctl session upload <session-id> main.dart
    runctl session renew <session-id>

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    RUNBOX_URL      API endpoint (default: http://localhost:8080)
    RUNBOX_TOKEN    Bearer token for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".runctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".runctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "RUNBOX_VARNAME"
	viper.SetEnvPrefix("RUNBOX")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.runctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "Runbox API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Bearer token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

// clientFromConfig builds an API client from the resolved flags, or reports
// what is missing.
func clientFromConfig(cmd *cobra.Command) (*Client, bool) {
	token := viper.GetString("token")
	if token == "" {
		cmd.Println("API token not found. Please set it using the --token flag or the RUNBOX_TOKEN environment variable")
		return nil, false
	}
	return NewClient(viper.GetString("url"), token), true
}
