package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tempo-agent/tempo/internal/formatter"
	"github.com/tempo-agent/tempo/internal/rules"
	"github.com/tempo-agent/tempo/internal/types"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage natural-language scheduling rules",
	Long: `Rules adjust event scores: suppress noise, boost what matters,
or request prep lead time. They are written in plain language and
compete by learned confidence when they disagree.

Examples:
  tempo rule add "Don't suggest prep for 1:1s"
  tempo rule add "Always prioritize meetings with the word interview"
  tempo rule list
  tempo rule delete 3`,
}

var ruleAddCmd = &cobra.Command{
	Use:   "add <statement>",
	Short: "Parse and store a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleAdd,
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active rules",
	RunE:  runRuleList,
}

var ruleDeleteCmd = &cobra.Command{
	Use:   "delete <rule-id>",
	Short: "Deactivate a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleDelete,
}

func init() {
	ruleCmd.AddCommand(ruleAddCmd, ruleListCmd, ruleDeleteCmd)
	rootCmd.AddCommand(ruleCmd)
}

func runRuleAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now()
	r, err := rules.Parse(args[0], now)
	if err != nil {
		if !errors.Is(err, types.ErrUnparsed) {
			return err
		}
		// Keep the statement for later; an unparsed rule is inert, not an
		// error.
		if _, saveErr := a.mem.SaveUnparsedRule(args[0], now); saveErr != nil {
			return saveErr
		}
		fmt.Println("could not understand that rule; stored it unevaluated. Try phrasings like:")
		for _, s := range rules.Suggestions {
			fmt.Printf("  %q\n", s)
		}
		return nil
	}
	id, err := a.mem.SaveRule(r)
	if err != nil {
		return err
	}
	fmt.Printf("rule %d: %s\n", id, r.Description)
	return nil
}

func runRuleList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	active, err := a.mem.ActiveRules()
	if err != nil {
		return err
	}
	if jsonOutput() {
		return formatter.WriteJSON(os.Stdout, active)
	}
	t := formatter.NewTable(os.Stdout, "ID", "CONFIDENCE", "DESCRIPTION", "SOURCE")
	t.SetMaxWidth(2, 48)
	t.SetMaxWidth(3, 40)
	for _, r := range active {
		t.AddRow(strconv.FormatInt(r.ID, 10), fmt.Sprintf("%.2f", r.Confidence),
			r.Description, r.SourceText)
	}
	return t.Render()
}

func runRuleDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad rule id %q", args[0])
	}
	if err := a.mem.DeactivateRule(id); err != nil {
		return err
	}
	fmt.Printf("rule %d deactivated\n", id)
	return nil
}
