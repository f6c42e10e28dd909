package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	dbPath string
	logger zerolog.Logger
)

func main() {
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	root := &cobra.Command{
		Use:           "library",
		Short:         "Library catalog, membership and lending management",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "library.db", "path to the library database")

	root.AddCommand(
		newAddBookCmd(),
		newAddMemberCmd(),
		newListBooksCmd(),
		newSearchCmd(),
		newMembersCmd(),
		newBorrowCmd(),
		newReturnCmd(),
		newMarkLostCmd(),
		newReserveCmd(),
		newCancelReservationCmd(),
		newFulfillCmd(),
		newLoansCmd(),
		newReservationsCmd(),
		newSetStatusCmd(),
		newSetPINCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
