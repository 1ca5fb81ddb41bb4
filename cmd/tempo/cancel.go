package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <action-id>",
	Short: "Withdraw a confirmed action before it is applied",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveActionID(a, args[0])
	if err != nil {
		return err
	}
	if err := a.engine.Gate().Cancel(id); err != nil {
		return err
	}
	fmt.Printf("canceled %s\n", id)
	return nil
}
