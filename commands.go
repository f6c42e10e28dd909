package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-system/library"
)

func openService() (*library.Database, *library.LendingService, error) {
	db, err := library.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return db, library.NewLendingService(db, logger), nil
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID %q", what, arg)
	}
	return id, nil
}

// readPIN reads a masked PIN from the terminal.
func readPIN(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read PIN: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func newAddBookCmd() *cobra.Command {
	var nb library.NewBook
	cmd := &cobra.Command{
		Use:   "add-book",
		Short: "Register a book in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			var catalog library.CatalogStore
			id, err := catalog.AddBook(cmd.Context(), db, nb)
			if err != nil {
				return err
			}
			fmt.Printf("Added book %d: %s by %s (%d copies)\n", id, nb.Title, nb.Author, nb.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&nb.Title, "title", "", "book title (required)")
	cmd.Flags().StringVar(&nb.Author, "author", "", "book author")
	cmd.Flags().StringVar(&nb.ISBN, "isbn", "", "ISBN, if known")
	cmd.Flags().IntVar(&nb.Total, "copies", 1, "number of copies")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newAddMemberCmd() *cobra.Command {
	var nm library.NewMember
	cmd := &cobra.Command{
		Use:   "add-member",
		Short: "Register a new member",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			var members library.MemberStore
			id, err := members.AddMember(cmd.Context(), db, nm)
			if err != nil {
				return err
			}
			m, err := members.Member(cmd.Context(), db, id)
			if err != nil {
				return err
			}
			fmt.Printf("Added member %d: %s (card %s)\n", id, m.FullName, m.CardNumber)
			return nil
		},
	}
	cmd.Flags().StringVar(&nm.FullName, "name", "", "member full name (required)")
	cmd.Flags().StringVar(&nm.Email, "email", "", "contact email")
	cmd.Flags().IntVar(&nm.MaxBooks, "max-books", library.DefaultMaxBooks, "concurrent loan limit")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newListBooksCmd() *cobra.Command {
	var f library.BookFilter
	cmd := &cobra.Command{
		Use:   "list-books",
		Short: "List catalog books, optionally filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			var catalog library.CatalogStore
			books, err := catalog.ListBooks(cmd.Context(), db, f)
			if err != nil {
				return err
			}
			printBooks(books)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Title, "title", "", "filter by title substring")
	cmd.Flags().StringVar(&f.Author, "author", "", "filter by author substring")
	cmd.Flags().BoolVar(&f.AvailableOnly, "available", false, "only books with available copies")
	return cmd
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over title, author and ISBN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			var catalog library.CatalogStore
			books, err := catalog.SearchBooks(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			printBooks(books)
			return nil
		},
	}
}

func newMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "List registered members",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			var store library.MemberStore
			members, err := store.ListMembers(cmd.Context(), db)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tSTATUS\tLIMIT\tCARD")
			for _, m := range members {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
					m.ID, m.FullName, m.Email, m.Status, m.MaxBooks, m.CardNumber)
			}
			return w.Flush()
		},
	}
}

func newBorrowCmd() *cobra.Command {
	var days int
	var verify bool
	cmd := &cobra.Command{
		Use:   "borrow <member-id> <book-id>",
		Short: "Check a book out to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := parseID(args[0], "member")
			if err != nil {
				return err
			}
			bookID, err := parseID(args[1], "book")
			if err != nil {
				return err
			}

			db, svc, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			if verify {
				if err := verifyMemberPIN(cmd.Context(), db, memberID); err != nil {
					return err
				}
			}

			loan, err := svc.Borrow(cmd.Context(), memberID, bookID, days)
			if err != nil {
				return err
			}
			fmt.Printf("Loan %d issued, due %s\n", loan.ID, loan.DueDate.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", library.DefaultLoanPeriodDays, "loan period in days")
	cmd.Flags().BoolVar(&verify, "verify", false, "prompt for the member's PIN before lending")
	return cmd
}

func verifyMemberPIN(ctx context.Context, db *library.Database, memberID int64) error {
	pin, err := readPIN("Member PIN: ")
	if err != nil {
		return err
	}
	var members library.MemberStore
	return members.VerifyPIN(ctx, db, memberID, pin)
}

func newReturnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return <loan-id>",
		Short: "Return a borrowed book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loanID, err := parseID(args[0], "loan")
			if err != nil {
				return err
			}

			db, svc, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			loan, err := svc.Return(cmd.Context(), loanID)
			if err != nil {
				return err
			}
			if loan.ReturnDate.After(loan.DueDate) {
				fmt.Printf("Loan %d returned late (was due %s)\n", loan.ID, loan.DueDate.Format("2006-01-02"))
			} else {
				fmt.Printf("Loan %d returned\n", loan.ID)
			}
			return nil
		},
	}
}

func newMarkLostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-lost <loan-id>",
		Short: "Close a loan as lost and retire the copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loanID, err := parseID(args[0], "loan")
			if err != nil {
				return err
			}

			db, svc, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			loan, err := svc.MarkLost(cmd.Context(), loanID)
			if err != nil {
				return err
			}
			fmt.Printf("Loan %d closed as lost; copy of book %d retired\n", loan.ID, loan.BookID)
			return nil
		},
	}
}

func newReserveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reserve <member-id> <book-id>",
		Short: "Reserve a book for a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := parseID(args[0], "member")
			if err != nil {
				return err
			}
			bookID, err := parseID(args[1], "book")
			if err != nil {
				return err
			}

			db, svc, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			r, err := svc.Reserve(cmd.Context(), memberID, bookID)
			if err != nil {
				return err
			}
			fmt.Printf("Reservation %d placed\n", r.ID)
			return nil
		},
	}
}

func newCancelReservationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-reservation <member-id> <book-id>",
		Short: "Cancel a member's active reservation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := parseID(args[0], "member")
			if err != nil {
				return err
			}
			bookID, err := parseID(args[1], "book")
			if err != nil {
				return err
			}

			db, svc, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := svc.CancelReservation(cmd.Context(), memberID, bookID); err != nil {
				return err
			}
			fmt.Println("Reservation cancelled")
			return nil
		},
	}
}

func newFulfillCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "fulfill <reservation-id>",
		Short: "Convert an active reservation into a loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reservationID, err := parseID(args[0], "reservation")
			if err != nil {
				return err
			}

			db, svc, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			loan, err := svc.FulfillReservation(cmd.Context(), reservationID, days)
			if err != nil {
				return err
			}
			fmt.Printf("Loan %d issued to member %d, due %s\n",
				loan.ID, loan.MemberID, loan.DueDate.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", library.DefaultLoanPeriodDays, "loan period in days")
	return cmd
}

func newLoansCmd() *cobra.Command {
	var memberID int64
	var overdue bool
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List open loans for a member, or all overdue loans",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, svc, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			var loans []library.Loan
			switch {
			case overdue:
				loans, err = svc.Overdue(cmd.Context())
			case memberID > 0:
				var store library.LoanStore
				loans, err = store.OpenLoansForMember(cmd.Context(), db, memberID)
			default:
				return fmt.Errorf("pass --member or --overdue")
			}
			if err != nil {
				return err
			}
			printLoans(loans)
			return nil
		},
	}
	cmd.Flags().Int64Var(&memberID, "member", 0, "member whose open loans to list")
	cmd.Flags().BoolVar(&overdue, "overdue", false, "list all overdue loans")
	return cmd
}

func newReservationsCmd() *cobra.Command {
	var memberID, bookID int64
	cmd := &cobra.Command{
		Use:   "reservations",
		Short: "List active reservations for a book or a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			var store library.ReservationStore
			var rs []library.Reservation
			switch {
			case bookID > 0:
				rs, err = store.ActiveForBook(cmd.Context(), db, bookID)
			case memberID > 0:
				rs, err = store.ActiveForMember(cmd.Context(), db, memberID)
			default:
				return fmt.Errorf("pass --book or --member")
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMEMBER\tBOOK\tRESERVED")
			for _, r := range rs {
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", r.ID, r.MemberID, r.BookID, r.ReservedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64Var(&bookID, "book", 0, "book whose queue to list")
	cmd.Flags().Int64Var(&memberID, "member", 0, "member whose reservations to list")
	return cmd
}

func newSetStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <member-id> <active|inactive|suspended>",
		Short: "Change a member's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := parseID(args[0], "member")
			if err != nil {
				return err
			}
			status, err := library.ParseMemberStatus(args[1])
			if err != nil {
				return err
			}

			db, _, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			var members library.MemberStore
			if err := members.SetStatus(cmd.Context(), db, memberID, status); err != nil {
				return err
			}
			fmt.Printf("Member %d is now %s\n", memberID, status)
			return nil
		},
	}
}

func newSetPINCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-pin <member-id>",
		Short: "Set a member's PIN for borrow verification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := parseID(args[0], "member")
			if err != nil {
				return err
			}

			pin, err := readPIN("New PIN: ")
			if err != nil {
				return err
			}
			confirm, err := readPIN("Confirm PIN: ")
			if err != nil {
				return err
			}
			if pin != confirm {
				return fmt.Errorf("PINs do not match")
			}

			db, _, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			var members library.MemberStore
			if err := members.SetPIN(cmd.Context(), db, memberID, pin); err != nil {
				return err
			}
			fmt.Printf("PIN updated for member %d\n", memberID)
			return nil
		},
	}
}

func printBooks(books []library.Book) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tISBN\tAVAILABLE")
	for _, b := range books {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d/%d\n", b.ID, b.Title, b.Author, b.ISBN, b.Available, b.Total)
	}
	w.Flush()
}

func printLoans(loans []library.Loan) {
	now := time.Now().UTC()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMEMBER\tBOOK\tISSUED\tDUE\tSTATUS")
	for _, l := range loans {
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%s\n",
			l.ID, l.MemberID, l.BookID,
			l.IssueDate.Format("2006-01-02"), l.DueDate.Format("2006-01-02"),
			l.EffectiveStatus(now))
	}
	w.Flush()
}
