// Package reconcile converges the ufw allow-list onto the provider's
// published ranges.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/ufw"
)

// ErrFirewallUnavailable is returned when the firewall tool cannot be used
// at all. The cycle performs no changes.
var ErrFirewallUnavailable = errors.New("reconcile: firewall unavailable")

// Result summarizes one reconciliation cycle.
type Result struct {
	Added   int
	Removed int

	AddFailed    int
	RemoveFailed int

	// Desired and Current count ranges per family at the start of the cycle.
	Desired map[cidr.Family]int
	Current map[cidr.Family]int

	// StatusDegraded is set when the rule listing could not be read and the
	// cycle proceeded as if no rules were installed.
	StatusDegraded bool

	// PreconditionErr joins default-policy and enable failures. It does not
	// stop the cycle.
	PreconditionErr error

	Duration time.Duration
}

// Reconciler computes and applies the changes that bring the firewall in line
// with a desired state. It never caches firewall state between calls.
type Reconciler struct {
	ctrl   ufw.Controller
	cfg    ufw.Config
	parser *ufw.Parser
	logger *slog.Logger
}

// NewReconciler creates a Reconciler for the rule scope in cfg.
// Config defaults are applied automatically.
func NewReconciler(ctrl ufw.Controller, cfg ufw.Config, logger *slog.Logger) *Reconciler {
	cfg.ApplyDefaults()
	logger = logger.With("component", "reconcile")
	return &Reconciler{
		ctrl:   ctrl,
		cfg:    cfg,
		parser: ufw.NewParser(cfg.Selector(), logger),
		logger: logger,
	}
}

// Reconcile runs one cycle: preconditions, fetch current rules, diff, apply
// every addition, then every removal. Individual rule failures are counted in
// the Result; the returned error is non-nil only when the firewall tool is
// unusable or ctx is cancelled.
func (r *Reconciler) Reconcile(ctx context.Context, desired cidr.State) (Result, error) {
	start := time.Now()
	res := Result{Desired: desired.Count()}

	if err := r.ctrl.Available(ctx); err != nil {
		return res, fmt.Errorf("%w: %w", ErrFirewallUnavailable, err)
	}

	res.PreconditionErr = r.ensurePreconditions(ctx)

	current, err := r.FetchCurrentState(ctx)
	if err != nil {
		res.StatusDegraded = true
	}
	res.Current = current.Count()

	diff := ComputeDiff(desired, current)
	if diff.IsEmpty() {
		res.Duration = time.Since(start)
		r.logger.Info("firewall already in sync",
			"desired_v4", res.Desired[cidr.FamilyV4],
			"desired_v6", res.Desired[cidr.FamilyV6],
			"duration", res.Duration,
		)
		return res, nil
	}

	// Additions first: an interrupted cycle leaves extra coverage, never less.
	for _, f := range cidr.Families {
		for _, rng := range diff.ToAdd.Get(f).Sorted() {
			if err := ctx.Err(); err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
			if r.ApplyAdd(ctx, rng) {
				res.Added++
			} else {
				res.AddFailed++
			}
		}
	}

	for _, f := range cidr.Families {
		for _, rng := range diff.ToRemove.Get(f).Sorted() {
			if err := ctx.Err(); err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
			if r.ApplyRemove(ctx, rng) {
				res.Removed++
			} else {
				res.RemoveFailed++
			}
		}
	}

	res.Duration = time.Since(start)
	r.logger.Info("sync completed",
		"added", res.Added,
		"removed", res.Removed,
		"add_failed", res.AddFailed,
		"remove_failed", res.RemoveFailed,
		"status_degraded", res.StatusDegraded,
		"duration", res.Duration,
	)
	return res, nil
}

// FetchCurrentState reads the rule listing and returns the owned ranges.
//
// If the listing cannot be read, an empty state is returned together with the
// error. Callers continue with the empty state: the worst outcome is a
// redundant add that ufw skips as an existing rule, and nothing is removed
// because nothing is believed to be installed.
func (r *Reconciler) FetchCurrentState(ctx context.Context) (cidr.State, error) {
	raw, err := r.ctrl.StatusNumbered(ctx)
	if err != nil {
		r.logger.Warn("failed to read ufw rules, assuming none installed", "error", err)
		return cidr.NewState(), err
	}

	current := r.parser.CurrentState(raw)
	r.logger.Info("current ufw rules",
		"v4", len(current.Get(cidr.FamilyV4)),
		"v6", len(current.Get(cidr.FamilyV6)),
	)
	return current, nil
}

// ApplyAdd installs an allow rule for rng. It reports whether ufw accepted it.
func (r *Reconciler) ApplyAdd(ctx context.Context, rng cidr.Range) bool {
	out, err := r.ctrl.Allow(ctx, ufw.AllowRule{
		Protocol: r.cfg.Proto,
		Port:     r.cfg.Port,
		Source:   rng.Prefix,
		Comment:  r.cfg.Comment,
	})
	if err != nil {
		r.logger.Error("failed to add rule", "range", rng.Prefix, "family", rng.Family, "error", err)
		return false
	}
	r.logger.Info("added rule", "range", rng.Prefix, "family", rng.Family, "output", trimOutput(out))
	return true
}

// ApplyRemove deletes the owned rule for rng. The rule index is resolved from
// a fresh listing because ufw renumbers rules after every deletion. A range
// that is no longer installed counts as removed.
func (r *Reconciler) ApplyRemove(ctx context.Context, rng cidr.Range) bool {
	raw, err := r.ctrl.StatusNumbered(ctx)
	if err != nil {
		r.logger.Error("failed to read ufw rules for removal", "range", rng.Prefix, "error", err)
		return false
	}

	index, ok := r.parser.FindIndex(raw, rng)
	if !ok {
		r.logger.Warn("rule already absent", "range", rng.Prefix, "family", rng.Family)
		return true
	}

	out, err := r.ctrl.Delete(ctx, index)
	if err != nil {
		r.logger.Error("failed to delete rule", "range", rng.Prefix, "index", index, "error", err)
		return false
	}
	r.logger.Info("deleted rule", "range", rng.Prefix, "index", index, "output", trimOutput(out))
	return true
}

// ensurePreconditions applies the default incoming policy and makes sure ufw
// is enabled. Failures are logged and returned joined; they do not block the
// rest of the cycle.
func (r *Reconciler) ensurePreconditions(ctx context.Context) error {
	var errs []error

	if r.cfg.DefaultPolicy != ufw.PolicyNone {
		if _, err := r.ctrl.SetDefaultPolicy(ctx, r.cfg.DefaultPolicy); err != nil {
			r.logger.Error("failed to set default policy", "policy", r.cfg.DefaultPolicy, "error", err)
			errs = append(errs, fmt.Errorf("reconcile: set default policy: %w", err))
		} else {
			r.logger.Info("default incoming policy set", "policy", r.cfg.DefaultPolicy)
		}
	}

	if err := r.ensureEnabled(ctx); err != nil {
		r.logger.Error("failed to enable ufw", "error", err)
		errs = append(errs, fmt.Errorf("reconcile: enable: %w", err))
	}

	return errors.Join(errs...)
}

func (r *Reconciler) ensureEnabled(ctx context.Context) error {
	// A failed status query falls through to enable.
	if out, err := r.ctrl.StatusVerbose(ctx); err == nil && ufw.IsActive(out) {
		r.logger.Debug("ufw already enabled")
		return nil
	}
	if _, err := r.ctrl.Enable(ctx, true); err != nil {
		return err
	}
	r.logger.Info("ufw enabled")
	return nil
}

const maxOutputLen = 200

// trimOutput keeps log lines short. It never splits a rune.
func trimOutput(s string) string {
	s = strings.TrimRight(s, "\n ")
	if len(s) <= maxOutputLen {
		return s
	}
	cut := maxOutputLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
