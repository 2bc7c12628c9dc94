package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cinepay/internal/checkout"
	"cinepay/internal/config"
	"cinepay/internal/external"
	"cinepay/internal/ticket"
)

type checkoutOptions struct {
	MovieID string
	Seats   []string
	Email   string
	Card    external.Card
	QROut   string
}

func checkoutCmd(cfg *config.Config) *cobra.Command {
	var (
		opts       checkoutOptions
		useGateway bool
	)

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Buy tickets: pick a movie and seats, reserve, then pay",
		Long: `Runs one checkout session against the booking backend.

Without --movie the available movies are listed and nothing is bought.
Without --seats the seat map of the chosen movie is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			coord := checkout.NewCoordinator(external.NewBookingClient(cfg.Booking), coordinatorOptions(cfg, useGateway))
			return runCheckout(cmd.Context(), cmd.OutOrStdout(), checkout.NewSession(coord), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.MovieID, "movie", "m", "", "Movie id")
	f.StringSliceVarP(&opts.Seats, "seats", "s", nil, "Seat ids, e.g. A1,A2")
	f.StringVarP(&opts.Email, "email", "e", "", "Customer e-mail")
	f.StringVar(&opts.Card.Number, "card-number", "", "Card number")
	f.StringVar(&opts.Card.Expiry, "card-expiry", "", "Card expiry MM/YY")
	f.StringVar(&opts.Card.CVV, "card-cvv", "", "Card CVV")
	f.StringVar(&opts.Card.Name, "card-name", "", "Name on card")
	f.StringVar(&opts.QROut, "qr-out", "", "Write the ticket QR code PNG to this file")
	f.BoolVar(&useGateway, "gateway", false, "Charge through the payment processor before settling with the backend")

	return cmd
}

// coordinatorOptions takes the retry policy from the processor client so
// RAPIKOM_RETRY_ATTEMPTS applies whether or not the gateway is used
func coordinatorOptions(cfg *config.Config, useGateway bool) checkout.Options {
	gateway := external.NewRapikomClient(cfg.Rapikom)
	opts := checkout.Options{
		Retry:      gateway.RetryPolicy(),
		AppBaseURL: cfg.App.BaseURL,
		Currency:   cfg.Rapikom.Currency,
	}
	if useGateway {
		opts.Gateway = gateway
	}
	return opts
}

func runCheckout(ctx context.Context, out io.Writer, session *checkout.Session, opts checkoutOptions) error {
	s, err := session.Start(ctx)
	if err != nil {
		return err
	}
	if opts.MovieID == "" {
		printMovies(out, s)
		return nil
	}

	if _, err := session.ChooseMovie(opts.MovieID); err != nil {
		return err
	}
	s, err = session.ProceedToSeats(ctx)
	if err != nil {
		return err
	}
	if len(opts.Seats) == 0 {
		printSeats(out, s)
		return nil
	}

	for _, seat := range opts.Seats {
		if s, err = session.ToggleSeat(strings.TrimSpace(seat)); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "Seats: %s  Total: %s\n", strings.Join(s.SelectedSeats(), ", "), s.Total())

	s, err = session.Reserve(ctx, opts.Email)
	if err != nil {
		if s.Notice() != "" {
			fmt.Fprintln(out, s.Notice())
		}
		return err
	}
	reservation, _ := s.Reservation()
	fmt.Fprintf(out, "Reserved: %s\n", reservation.ID)

	s, err = session.Pay(ctx, opts.Card)
	if err != nil {
		if s.Notice() != "" {
			fmt.Fprintln(out, s.Notice())
		}
		return err
	}

	confirmation, ok := s.Confirmation()
	if !ok {
		return fmt.Errorf("payment finished without a confirmation")
	}
	fmt.Fprintf(out, "Confirmed: reservation %s, seats %s, paid %s\n",
		confirmation.Reservation.ID, strings.Join(confirmation.Reservation.Seats, ", "), confirmation.Total)
	if confirmation.QRURL != "" {
		fmt.Fprintf(out, "Ticket: %s\n", confirmation.QRURL)
	}

	if opts.QROut != "" && confirmation.QRBase64 != "" {
		png, err := ticket.Decode(confirmation.QRBase64)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.QROut, png, 0o644); err != nil {
			return fmt.Errorf("failed to write QR code: %w", err)
		}
		fmt.Fprintf(out, "QR code written to %s\n", opts.QROut)
	}
	return nil
}

func printMovies(out io.Writer, s checkout.State) {
	fmt.Fprintln(out, "Movies:")
	for _, m := range s.Movies() {
		fmt.Fprintf(out, "  %-8s %-30s %8s  %s\n", m.ID, m.Title, m.Price, m.Duration)
	}
}

func printSeats(out io.Writer, s checkout.State) {
	movie, _ := s.Movie()
	fmt.Fprintf(out, "Seats for %s (%s each):\n", movie.Title, movie.Price)
	for _, seat := range s.Seats() {
		state := "free"
		if !s.Selectable(seat.ID) {
			state = "taken"
		}
		fmt.Fprintf(out, "  %-6s %s\n", seat.ID, state)
	}
}
