package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/postalhq/postal-go/postal"
)

func newDetailsCmd(a *app) *cobra.Command {
	var (
		expand []string
		all    bool
		last   bool
	)

	cmd := &cobra.Command{
		Use:   "details [message-id]",
		Short: "Show the stored record of a message",
		Example: `  postal details 42 --expand status,details
  postal details --last --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveID(cmd.Context(), args, last)
			if err != nil {
				return err
			}

			interest := postal.NewDetailsInterest(id)
			if all {
				interest = interest.WithAll()
			} else {
				var unknown []string
				interest, unknown = interest.With(expand...)
				if len(unknown) > 0 {
					return fmt.Errorf("unknown expansion(s): %s", strings.Join(unknown, ", "))
				}
			}

			client, err := a.postalClient()
			if err != nil {
				return err
			}

			ctx, cancel := a.callContext(cmd.Context())
			defer cancel()

			details, err := client.Details(ctx, interest)
			if err != nil {
				return a.reportError(err)
			}
			return a.printJSON(details)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&expand, "expand", []string{postal.ExpandStatus, postal.ExpandDetails},
		"sections to include: status, details, inspection, plain_body, html_body, attachments, headers, raw_message")
	f.BoolVar(&all, "all", false, "include every section")
	f.BoolVar(&last, "last", false, "use the most recently sent message from history")

	return cmd
}

func newDeliveriesCmd(a *app) *cobra.Command {
	var last bool

	cmd := &cobra.Command{
		Use:   "deliveries [message-id]",
		Short: "List delivery attempts for a message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveID(cmd.Context(), args, last)
			if err != nil {
				return err
			}

			client, err := a.postalClient()
			if err != nil {
				return err
			}

			ctx, cancel := a.callContext(cmd.Context())
			defer cancel()

			deliveries, err := client.Deliveries(ctx, id)
			if err != nil {
				return a.reportError(err)
			}
			return a.printJSON(deliveries)
		},
	}

	cmd.Flags().BoolVar(&last, "last", false, "use the most recently sent message from history")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently sent messages recorded in Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.historyStore(cmd.Context())
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("history is disabled (set POSTAL_HISTORY_ENABLED=true)")
			}

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SENT\tRECIPIENT\tID\tSUBJECT")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.RecordedAt.Format(time.RFC3339), e.Recipient, e.MessageID, e.Subject)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 20, "number of entries to show")
	return cmd
}
