package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"certified/internal/config"
)

var (
	cfgFile string
	vcfg    *viper.Viper
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "certified",
	Short:         "Certified artifact store, verifier and access-controlled HTTP surface",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.New(cfgFile)
		if err != nil {
			return err
		}
		if err := config.BindFlag(v, config.KeyDataDir, cmd.Flags(), "data-dir"); err != nil {
			return err
		}
		vcfg = v
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().String("data-dir", "./data", "directory holding the content log")

	rootCmd.AddCommand(serveCmd, logCmd, keygenCmd, tokenCmd, verifyCmd)
}

func loadConfig() (config.Config, error) {
	return config.Load(vcfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", colorError("✗"), err)
		os.Exit(1)
	}
}
