package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "supportkb",
	Short: "Knowledge base service for the support chatbot",
	Long: `supportkb scrapes the support help center, chunks and embeds the
articles and answers similarity queries so the chatbot can ground its
answers in real support content.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	settingDefaultConfig()
}
