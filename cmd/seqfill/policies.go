package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inodb/seqfill/internal/policy"
)

func newPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List the extra_processing policies references may declare",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicies(policy.Default())
		},
	}
}

func runPolicies(r *policy.Registry) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tRECORDS\tSTOP AT")
	for _, name := range r.Names() {
		p, err := r.Lookup(name)
		if err != nil {
			return err
		}
		count, stop := "-", "-"
		if p.ExpectedCount != nil {
			count = strconv.Itoa(*p.ExpectedCount)
		}
		if p.StopMarker != "" {
			stop = p.StopMarker
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, count, stop)
	}
	return tw.Flush()
}
