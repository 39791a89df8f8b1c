// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tneurolab/crossdetect/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "crossdetect",
	Short: "Real-time threshold crossing detector for audio input",
	Long: `A real-time event detector that monitors an audio input channel and
emits timestamped on/off event pairs whenever the signal crosses a
configurable threshold.`,
	RunE: runDetector,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio device index (-1 for default)")
	rootCmd.PersistentFlags().StringP("mode", "m", "constant", "threshold mode (constant, random, channel, average, adaptive)")
	rootCmd.PersistentFlags().Float64P("threshold", "t", 0, "constant threshold level")
	rootCmd.PersistentFlags().BoolP("rising", "r", true, "detect rising crossings")
	rootCmd.PersistentFlags().BoolP("falling", "f", false, "detect falling crossings")
	rootCmd.PersistentFlags().String("serial", "", "serial port for TTL event output")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	// Bind flags to viper
	viper.BindPFlag("device_index", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("threshold_mode", rootCmd.PersistentFlags().Lookup("mode"))
	viper.BindPFlag("constant_threshold", rootCmd.PersistentFlags().Lookup("threshold"))
	viper.BindPFlag("rising", rootCmd.PersistentFlags().Lookup("rising"))
	viper.BindPFlag("falling", rootCmd.PersistentFlags().Lookup("falling"))
	viper.BindPFlag("serial_port", rootCmd.PersistentFlags().Lookup("serial"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}
