package main

import (
	"encoding/json"
	"errors"

	"booking-service/internal/service"

	"github.com/spf13/cobra"
)

type reconcileFlags struct {
	sessionID string
	intentID  string
	tranID    string
	status    string
	amount    string
	valID     string
}

// callback picks the provider signal named by exactly one of the id flags
func (f reconcileFlags) callback() (service.Callback, error) {
	set := 0
	for _, v := range []string{f.sessionID, f.intentID, f.tranID} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("exactly one of --session, --intent or --tran-id is required")
	}

	switch {
	case f.sessionID != "":
		return service.CheckoutSessionCallback{SessionID: f.sessionID}, nil
	case f.intentID != "":
		return service.PaymentIntentCallback{IntentID: f.intentID}, nil
	}

	switch f.status {
	case service.RedirectSuccess, service.RedirectFail, service.RedirectCancel:
	default:
		return nil, errors.New("--status must be success, fail or cancel with --tran-id")
	}
	if f.status == service.RedirectSuccess && f.valID == "" {
		return nil, errors.New("--val-id is required with --status success")
	}
	return service.GatewayRedirect{
		TransactionID: f.tranID,
		Status:        f.status,
		Amount:        f.amount,
		ValID:         f.valID,
	}, nil
}

func reconcileCmd() *cobra.Command {
	var flags reconcileFlags

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Settle one payment against its provider",
		Long: `Resolve a payment with its provider and apply the outcome, exactly as a
webhook or redirect would.

Examples:
  bookingctl reconcile --session cs_test_a1b2
  bookingctl reconcile --intent pi_3Nx
  bookingctl reconcile --tran-id TXN-1700000000000-abc123 --status fail
  bookingctl reconcile --tran-id TXN-1700000000000-abc123 --status success --val-id 2311051234`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := flags.callback()
			if err != nil {
				return err
			}

			d, err := openDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			result, err := d.paymentService().Reconcile(cmd.Context(), cb)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&flags.sessionID, "session", "", "Stripe checkout session id")
	cmd.Flags().StringVar(&flags.intentID, "intent", "", "Stripe payment intent id")
	cmd.Flags().StringVar(&flags.tranID, "tran-id", "", "gateway transaction id")
	cmd.Flags().StringVar(&flags.status, "status", "", "gateway redirect status (success, fail, cancel)")
	cmd.Flags().StringVar(&flags.amount, "amount", "", "gateway amount, checked against the payment")
	cmd.Flags().StringVar(&flags.valID, "val-id", "", "gateway validation id, required for success")
	return cmd
}
