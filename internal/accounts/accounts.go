// Package accounts selects the managed accounts the broker checks out.
package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/systmms/btbroker/internal/pam"
)

// Pair is a normalized (system, account) name pair.
type Pair struct {
	System  string
	Account string
}

func pairOf(system, account string) Pair {
	return Pair{
		System:  strings.ToLower(strings.TrimSpace(system)),
		Account: strings.ToLower(strings.TrimSpace(account)),
	}
}

// Selection is a parsed managed account list.
type Selection map[Pair]struct{}

// ParseSelection parses "system.account;system.account". The last dot
// separates system from account, so account names may contain dots.
// Entries without a system or an account part are ignored.
func ParseSelection(list string) Selection {
	sel := make(Selection)
	for _, raw := range strings.Split(list, ";") {
		item := strings.TrimSpace(raw)
		i := strings.LastIndex(item, ".")
		if i <= 0 || i == len(item)-1 {
			continue
		}
		p := pairOf(item[:i], item[i+1:])
		if p.System == "" || p.Account == "" {
			continue
		}
		sel[p] = struct{}{}
	}
	return sel
}

// Contains reports whether acc is selected.
func (s Selection) Contains(acc pam.ManagedAccount) bool {
	_, ok := s[pairOf(acc.SystemName, acc.AccountName)]
	return ok
}

// Options controls filtering.
type Options struct {
	// All passes the directory through unfiltered.
	All bool
	// List is the "system.account;..." selection used when All is false.
	List string
}

// Active reports whether account checkout is configured at all.
func (o Options) Active() bool {
	return o.All || strings.TrimSpace(o.List) != ""
}

// Filter applies opts to the directory. An empty selection yields no
// accounts.
func Filter(directory []pam.ManagedAccount, opts Options) []pam.ManagedAccount {
	if opts.All {
		return directory
	}
	sel := ParseSelection(opts.List)
	if len(sel) == 0 {
		return nil
	}
	var out []pam.ManagedAccount
	for _, acc := range directory {
		if sel.Contains(acc) {
			out = append(out, acc)
		}
	}
	return out
}

// Resolver lists the directory and filters it.
type Resolver struct {
	Client pam.Client
}

// NewResolver creates a Resolver.
func NewResolver(client pam.Client) *Resolver {
	return &Resolver{Client: client}
}

// Resolve returns the selected managed accounts.
func (r *Resolver) Resolve(ctx context.Context, opts Options) ([]pam.ManagedAccount, error) {
	directory, err := r.Client.ListManagedAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list managed accounts: %w", err)
	}
	return Filter(directory, opts), nil
}
