package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/btbroker/internal/accounts"
	"github.com/systmms/btbroker/internal/config"
	dserrors "github.com/systmms/btbroker/internal/errors"
	"github.com/systmms/btbroker/internal/pam"
	"github.com/systmms/btbroker/internal/safe"
)

// CheckResult is one line of the doctor report.
type CheckResult struct {
	Name       string
	Status     string // ok, warn, error
	Message    string
	Suggestion string
}

func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and Password Safe connectivity",
		Long: `Verify that btbroker is configured and can reach Password Safe.

This command checks:
- Configuration validity
- API key presence
- Sign-in to the Password Safe API
- The managed account directory and the configured selection
- Each configured Secrets Safe path`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := runChecks(cmd.Context(), cfg)
			displayCheckResults(cmd.OutOrStdout(), results, verbose)

			failed := 0
			for _, r := range results {
				if r.Status == "error" {
					failed++
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nSummary: %d/%d checks passed\n", len(results)-failed, len(results))
			if failed > 0 {
				return fmt.Errorf("%d checks failed", failed)
			}
			loggerOf(cfg).Info("All systems operational!")
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show suggestions for failed checks")

	return cmd
}

func runChecks(ctx context.Context, cfg *config.Config) []CheckResult {
	var results []CheckResult
	add := func(r CheckResult) { results = append(results, r) }

	opts, err := loadOptions(cfg)
	if err != nil {
		add(CheckResult{Name: "config", Status: "error", Message: firstLine(err), Suggestion: suggestionOf(err)})
		return results
	}
	add(CheckResult{Name: "config", Status: "ok", Message: "configuration is valid"})

	if !opts.Enabled {
		add(CheckResult{Name: "enabled", Status: "warn", Message: "BeyondTrust integration is disabled"})
		return results
	}

	creds := credentials(opts)
	if creds.Empty() {
		add(CheckResult{
			Name: "api key", Status: "error", Message: "no API key configured",
			Suggestion: "Set " + config.EnvAPIKey + " or run 'btbroker login' with " + config.EnvUseKeyring + "=true",
		})
		return results
	}
	add(CheckResult{Name: "api key", Status: "ok", Message: "API key present, " + creds.String()})

	client, err := newClient(opts)
	if err != nil {
		add(CheckResult{Name: "client", Status: "error", Message: err.Error()})
		return results
	}

	if err := client.SignAppIn(ctx); err != nil {
		add(pamCheck("sign-in", pam.OpSignIn, err))
	} else {
		add(CheckResult{Name: "sign-in", Status: "ok", Message: "signed in to " + opts.APIURL})
	}

	acctOpts := brokerSettings(opts).Accounts
	if acctOpts.Active() {
		directory, err := client.ListManagedAccounts(ctx)
		if err != nil {
			add(pamCheck("managed accounts", pam.OpListAccounts, err))
		} else {
			selected := accounts.Filter(directory, acctOpts)
			status := "ok"
			if len(selected) == 0 {
				status = "warn"
			}
			add(CheckResult{
				Name:       "managed accounts",
				Status:     status,
				Message:    fmt.Sprintf("%d of %d accounts selected", len(selected), len(directory)),
				Suggestion: "Check " + config.EnvManagedAccounts + " uses system.account pairs separated by ';'",
			})
		}
	} else {
		add(CheckResult{Name: "managed accounts", Status: "warn", Message: "no managed accounts configured"})
	}

	for _, path := range safe.SplitPaths(opts.SecretSafePaths) {
		items, err := client.ListSafeSecrets(ctx, path)
		name := "safe " + path
		if err != nil {
			add(pamCheck(name, pam.OpSafe, err))
			continue
		}
		add(CheckResult{Name: name, Status: "ok", Message: fmt.Sprintf("%d items", len(items))})
	}

	return results
}

// pamCheck reports a failed Password Safe call. Rate limiting, server
// errors and dropped connections are reported as transient warnings.
func pamCheck(name, op string, err error) CheckResult {
	wrapped := dserrors.PAMError(op, err)
	if dserrors.IsRetryable(err) {
		suggestion := suggestionOf(wrapped)
		if suggestion == "" {
			suggestion = "Password Safe reported a transient failure; run 'btbroker doctor' again"
		}
		return CheckResult{Name: name, Status: "warn", Message: "transient: " + err.Error(), Suggestion: suggestion}
	}
	return CheckResult{Name: name, Status: "error", Message: err.Error(), Suggestion: suggestionOf(wrapped)}
}

func suggestionOf(err error) string {
	var ue dserrors.UserError
	if errors.As(err, &ue) {
		return ue.Suggestion
	}
	var ce dserrors.ConfigError
	if errors.As(err, &ce) {
		return ce.Suggestion
	}
	return ""
}

func firstLine(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, "\n"); i >= 0 {
		return msg[:i]
	}
	return msg
}

// displayCheckResults shows the checks in a formatted table
func displayCheckResults(w io.Writer, results []CheckResult, verbose bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(tw, "CHECK\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(tw, "-----\t------\t-------\n")

	for _, r := range results {
		status := r.Status
		switch r.Status {
		case "ok":
			status = "✓ " + status
		case "error":
			status = "✗ " + status
		default:
			status = "⚠ " + status
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, status, r.Message)
	}
	_ = tw.Flush()

	if !verbose {
		return
	}
	for _, r := range results {
		if r.Status != "ok" && r.Suggestion != "" {
			_, _ = fmt.Fprintf(w, "\n%s:\n  • %s\n", r.Name, r.Suggestion)
		}
	}
}
