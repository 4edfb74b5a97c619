package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sudokodus/sudokodus/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the local database and a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s Database ready at %s\n", green("✓"), cyan(s.Path()))

		configPath, _ := cmd.Flags().GetString("config-out")
		if err := config.WriteDefault(configPath); err != nil {
			color.Yellow("⚠ %v\n", err)
		} else {
			fmt.Printf("%s Wrote default config to %s\n", green("✓"), cyan(configPath))
			fmt.Println("  Set remote.url and remote.api_key to enable syncing.")
		}
		return nil
	},
}

func init() {
	initCmd.Flags().String("config-out", "sudokodus.yaml", "Where to write the default config file")
	rootCmd.AddCommand(initCmd)
}
