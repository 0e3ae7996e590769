package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/upb/ai-integration-platform/handlers"
	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/services/ledger"
	"github.com/upb/ai-integration-platform/services/routing"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show provider health and circuit state",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}
}

func runHealth(cmd *cobra.Command, _ []string) error {
	raw, err := clientFor(cmd).do(cmd.Context(), http.MethodGet, "/api/v1/providers/health", nil)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return printJSON(out, raw)
	}

	var body map[string]handlers.ProviderHealth
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("invalid health response: %w", err)
	}
	if len(body) == 0 {
		_, _ = fmt.Fprintln(out, "No providers registered")
		return nil
	}

	ids := make([]string, 0, len(body))
	for id := range body {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROVIDER\tSTATUS\tSUCCESS\tAVG LATENCY\tSAMPLES\tCIRCUIT")
	for _, id := range ids {
		h := body[id]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.0f%%\t%dms\t%d\t%s\n",
			id, h.Status, h.SuccessRate*100, h.AvgLatencyMs, h.Samples, h.CircuitState)
	}
	return tw.Flush()
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the provider catalog",
		Args:  cobra.NoArgs,
		RunE:  runProviders,
	}
}

func runProviders(cmd *cobra.Command, _ []string) error {
	raw, err := clientFor(cmd).do(cmd.Context(), http.MethodGet, "/api/v1/providers", nil)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return printJSON(out, raw)
	}

	var list []handlers.ProviderInfo
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("invalid providers response: %w", err)
	}
	if len(list) == 0 {
		_, _ = fmt.Fprintln(out, "No providers registered")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tVENDOR\tMODEL\tENABLED\tPER REQUEST\tPER 1K TOKENS\tCAPABILITIES")
	for _, p := range list {
		caps := make([]string, len(p.Capabilities))
		for i, c := range p.Capabilities {
			caps[i] = string(c)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t$%s\t$%s\t%s\n",
			p.ID, p.Vendor, p.Model, p.Enabled,
			p.Pricing.PerRequest, p.Pricing.PerThousandTokens, strings.Join(caps, ","))
	}
	return tw.Flush()
}

func newSpendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spend",
		Short: "Show a user's spend for one day",
		Args:  cobra.NoArgs,
		RunE:  runSpend,
	}
	cmd.Flags().String("date", "", "day to report as YYYY-MM-DD (default today in the ledger timezone)")
	return cmd
}

func runSpend(cmd *cobra.Command, _ []string) error {
	if user, _ := cmd.Flags().GetString("user"); user == "" {
		return fmt.Errorf("--user is required")
	}

	path := "/api/v1/spend"
	if date, _ := cmd.Flags().GetString("date"); date != "" {
		path += "?" + url.Values{"date": {date}}.Encode()
	}

	raw, err := clientFor(cmd).do(cmd.Context(), http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return printJSON(out, raw)
	}

	var summary ledger.SpendSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return fmt.Errorf("invalid spend response: %w", err)
	}

	budget := "unlimited"
	remaining := "unlimited"
	if !summary.Unlimited {
		budget = "$" + summary.DailyBudget.String()
		remaining = "$" + summary.Remaining.String()
	}
	_, _ = fmt.Fprintf(out, "User:       %s\n", summary.UserID)
	_, _ = fmt.Fprintf(out, "Date:       %s\n", summary.Date)
	_, _ = fmt.Fprintf(out, "Spent:      $%s\n", summary.Spent)
	_, _ = fmt.Fprintf(out, "Budget:     %s\n", budget)
	_, _ = fmt.Fprintf(out, "Remaining:  %s\n", remaining)

	if len(summary.Records) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tPROVIDER\tAMOUNT\tREQUEST")
	for _, rec := range summary.Records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t$%s\t%s\n",
			rec.CreatedAt.Format("15:04:05"), rec.ProviderID, rec.Amount, rec.RequestID)
	}
	return tw.Flush()
}

func newRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route one request through the fallback chain",
		Args:  cobra.NoArgs,
		RunE:  runRoute,
	}
	cmd.Flags().String("capability", "", "capability to request, e.g. text-generation")
	cmd.Flags().String("prompt", "", "prompt to send")
	cmd.Flags().String("max-cost", "", "skip providers whose estimate exceeds this many dollars")
	cmd.Flags().String("prefer", "", "provider id to try first")
	cmd.Flags().String("key", "", "idempotency key")
	_ = cmd.MarkFlagRequired("capability")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func runRoute(cmd *cobra.Command, _ []string) error {
	capability, _ := cmd.Flags().GetString("capability")
	prompt, _ := cmd.Flags().GetString("prompt")
	prefer, _ := cmd.Flags().GetString("prefer")
	key, _ := cmd.Flags().GetString("key")
	user, _ := cmd.Flags().GetString("user")

	req := routing.Request{
		Capability:        capability,
		Prompt:            prompt,
		PreferredProvider: prefer,
		IdempotencyKey:    key,
		UserID:            user,
	}
	if raw, _ := cmd.Flags().GetString("max-cost"); raw != "" {
		maxCost, err := models.ParseMoney(raw)
		if err != nil {
			return fmt.Errorf("invalid --max-cost: %w", err)
		}
		req.MaxCost = &maxCost
	}

	raw, err := clientFor(cmd).do(cmd.Context(), http.MethodPost, "/api/v1/route", req)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return printJSON(out, raw)
	}

	var result routing.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("invalid route response: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Request:\t%s\n", result.RequestID)
	_, _ = fmt.Fprintf(tw, "Provider:\t%s\n", result.ProviderUsed)
	_, _ = fmt.Fprintf(tw, "Cost:\t$%s\n", result.CostIncurred)
	if result.Deduplicated {
		_, _ = fmt.Fprintf(tw, "Replayed:\t%t\n", result.Deduplicated)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "\n%s\n", result.Output)
	return nil
}

// printJSON writes raw indented for reading
func printJSON(out io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}
