package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tempo-agent/tempo/internal/formatter"
	"github.com/tempo-agent/tempo/internal/policy"
	"github.com/tempo-agent/tempo/internal/types"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage standing policies",
	Long: `Policies are standing instructions that produce concrete actions:
prep blocks, buffers, debriefs. Each carries its own autonomy
requirement; a policy self-applies only when the global
max_autonomy_level allows it, otherwise it routes through
confirmation like everything else.

Examples:
  tempo policy add "Always block prep time for high-stakes events"
  tempo policy add "Always add 10 min buffer after meetings longer than 60 min"
  tempo policy list
  tempo policy delete 2`,
}

var policyAddCmd = &cobra.Command{
	Use:   "add <statement>",
	Short: "Parse and store a policy",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyAdd,
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active policies",
	RunE:  runPolicyList,
}

var policyDeleteCmd = &cobra.Command{
	Use:   "delete <policy-id>",
	Short: "Deactivate a policy",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyDelete,
}

func init() {
	policyCmd.AddCommand(policyAddCmd, policyListCmd, policyDeleteCmd)
	rootCmd.AddCommand(policyCmd)
}

func runPolicyAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := policy.Parse(args[0], time.Now())
	if err != nil {
		if errors.Is(err, types.ErrUnparsed) {
			fmt.Println("could not understand that policy. Try phrasings like:")
			for _, s := range policy.Suggestions {
				fmt.Printf("  %q\n", s)
			}
		}
		return err
	}
	id, err := a.mem.SavePolicy(p)
	if err != nil {
		return err
	}
	fmt.Printf("policy %d: %s (requires %s autonomy)\n", id, p.Description, p.RequiredAutonomy)
	return nil
}

func runPolicyList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	active, err := a.mem.ActivePolicies()
	if err != nil {
		return err
	}
	if jsonOutput() {
		return formatter.WriteJSON(os.Stdout, active)
	}
	t := formatter.NewTable(os.Stdout, "ID", "CONFIDENCE", "AUTONOMY", "FIRED", "DESCRIPTION")
	t.SetMaxWidth(4, 52)
	for _, p := range active {
		t.AddRow(strconv.FormatInt(p.ID, 10), fmt.Sprintf("%.2f", p.Confidence),
			string(p.RequiredAutonomy), strconv.Itoa(p.TimesFired), p.Description)
	}
	return t.Render()
}

func runPolicyDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad policy id %q", args[0])
	}
	if err := a.mem.DeactivatePolicy(id); err != nil {
		return err
	}
	fmt.Printf("policy %d deactivated\n", id)
	return nil
}
