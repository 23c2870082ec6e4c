package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vfrelay",
	Short: "Relay chat platform webhooks to a Voiceflow conversation runtime",
	Long: `vfrelay receives Messenger webhook events (and optionally Telegram updates),
forwards each message or button tap to a Voiceflow dialogue runtime, and sends
the runtime's replies back as text messages and button cards.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (defaults to RELAY_CONFIG, ./config.yaml, ./config/config.yaml)")
}
