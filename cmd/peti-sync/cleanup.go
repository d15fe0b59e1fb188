package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var assumeYes bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove every synchronized folder and its local mirror",
	Long: `Cleanup tears down the full folder set: system tools, allowed games
and denied games are all removed from the sync service and their local
mirrors deleted. Asks for confirmation unless --yes is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !assumeYes && !confirm("Should all synchronized data be removed? [yes|no] ") {
			fmt.Fprintln(os.Stderr, "aborted")
			return nil
		}

		cfg, logger, engine, err := setup(false)
		if err != nil {
			return err
		}

		sets, err := loadSets(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		summary := engine.TearDown(cmd.Context(), sets)

		return reportSummary(logger, summary)
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&assumeYes, "yes", false, "skip the confirmation prompt")
}

func confirm(prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}

	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}
