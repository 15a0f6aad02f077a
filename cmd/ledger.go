package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lvcoi/ytdl-broker/internal/ledger"
)

var historyLimit int

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage token balances and API tokens",
	Long: `Manage the SQLite usage ledger at ledger.path.

Examples:
  ytdl-broker ledger grant alice 20     # add 20 tokens, creating the profile
  ytdl-broker ledger token alice        # issue an API token for alice
  ytdl-broker ledger balance alice
  ytdl-broker ledger history alice --limit 10`,
}

var ledgerGrantCmd = &cobra.Command{
	Use:   "grant <user> <tokens>",
	Short: "Add tokens to a user's balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid token amount %q", args[1])
		}
		return withLedger(func(l *ledger.Ledger) error {
			balance, err := l.Grant(cmd.Context(), args[0], tokens)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tokens\n", args[0], balance)
			return nil
		})
	},
}

var ledgerTokenCmd = &cobra.Command{
	Use:   "token <user>",
	Short: "Issue a new API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *ledger.Ledger) error {
			token, err := l.IssueToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		})
	},
}

var ledgerBalanceCmd = &cobra.Command{
	Use:   "balance <user>",
	Short: "Show a user's balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *ledger.Ledger) error {
			balance, err := l.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tokens\n", args[0], balance)
			return nil
		})
	},
}

var ledgerHistoryCmd = &cobra.Command{
	Use:   "history <user>",
	Short: "List a user's recent downloads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *ledger.Ledger) error {
			records, err := l.History(cmd.Context(), args[0], historyLimit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range records {
				fmt.Fprintf(out, "%s  %-5s  %-9s  %2d  %s  %s\n",
					r.CreatedAt.Local().Format(time.DateTime), r.Quality, r.Strategy, r.Cost, r.VideoID, r.VideoTitle)
			}
			return nil
		})
	},
}

func init() {
	ledgerHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of records")
	ledgerCmd.AddCommand(ledgerGrantCmd, ledgerTokenCmd, ledgerBalanceCmd, ledgerHistoryCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func withLedger(fn func(*ledger.Ledger) error) error {
	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l)
}
