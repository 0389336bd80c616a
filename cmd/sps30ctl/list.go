package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/hjkoskel/listserialports"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		probed, err := listserialports.Probe(false)
		if err != nil {
			return fmt.Errorf("listing serial ports: %w", err)
		}
		if len(probed) == 0 {
			color.Yellow("No serial ports found")
			return nil
		}
		for _, ser := range probed {
			fmt.Print(ser.ToPrintoutFormat())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
