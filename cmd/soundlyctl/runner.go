package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/soundly/backend/internal/logging"
	"github.com/soundly/backend/internal/models"
	"github.com/soundly/backend/internal/services"
	"github.com/urfave/cli/v3"
)

// Runner holds the dependencies of the CLI commands
type Runner struct {
	admin        *services.AdminService
	logger       *log.Logger
	output       io.Writer
	defaultAdmin string
}

type RunnerOpts struct {
	Admin  *services.AdminService
	Logger *log.Logger
	Output io.Writer
	// DefaultAdmin is the account mutating commands are audited under
	// when --admin is not given
	DefaultAdmin string
}

func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.DefaultAdmin == "" {
		opts.DefaultAdmin = "admin"
	}
	return &Runner{
		admin:        opts.Admin,
		logger:       opts.Logger,
		output:       opts.Output,
		defaultAdmin: opts.DefaultAdmin,
	}
}

func (r *Runner) register() []*cli.Command {
	return []*cli.Command{exchangesCommand(r), activitiesCommand(r), usersCommand(r)}
}

func (r *Runner) writeJSON(data any) error {
	enc := json.NewEncoder(r.output)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Runner) writePlainln(format string, args ...any) {
	fmt.Fprintf(r.output, format+"\n", args...)
}

// actor resolves the admin account a mutating command runs as
func (r *Runner) actor(ctx context.Context, cmd *cli.Command) (services.Actor, error) {
	username := cmd.String("admin")
	if username == "" {
		username = r.defaultAdmin
	}
	admin, err := r.admin.FindAdmin(ctx, username)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return services.Actor{}, fmt.Errorf("no admin account named %q", username)
		}
		return services.Actor{}, err
	}
	return services.Actor{AdminID: admin.ID, IPAddress: "cli", UserAgent: "soundlyctl"}, nil
}

// CheckExchanges reports paired rows without exactly one reciprocal.
// It fails when violations exist so it can gate deploys.
func (r *Runner) CheckExchanges(ctx context.Context, cmd *cli.Command) error {
	violations, err := r.admin.CheckConsistency(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		if err := r.writeJSON(violations); err != nil {
			return err
		}
	} else {
		for _, v := range violations {
			r.writePlainln("%s  %s -> %s  %s (%d)", v.Exchange.ID, v.Exchange.SenderID, receiverOf(v.Exchange), v.Reason, v.Reciprocals)
		}
	}
	if len(violations) > 0 {
		return fmt.Errorf("%d inconsistent exchanges", len(violations))
	}
	r.writePlainln("✓ exchange ledger is consistent")
	return nil
}

func receiverOf(ex models.SongExchange) string {
	if ex.ReceiverID == nil {
		return "-"
	}
	return ex.ReceiverID.String()
}

// DedupExchanges removes duplicate exchange rows, keeping the oldest of each group
func (r *Runner) DedupExchanges(ctx context.Context, cmd *cli.Command) error {
	actor, err := r.actor(ctx, cmd)
	if err != nil {
		return err
	}
	report, err := r.admin.DeduplicateExchanges(ctx, actor, cmd.Bool("dry-run"))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(report)
	}

	verb := "removed"
	if report.DryRun {
		verb = "would remove"
	}
	r.writePlainln("%d duplicate groups, %s %d rows", report.Groups, verb, len(report.Removed))
	for _, id := range report.Removed {
		r.writePlainln("  %s", id)
	}
	return nil
}

// DedupActivities keeps one song_exchange feed entry per exchange and party
func (r *Runner) DedupActivities(ctx context.Context, cmd *cli.Command) error {
	actor, err := r.actor(ctx, cmd)
	if err != nil {
		return err
	}
	report, err := r.admin.DeduplicateActivities(ctx, actor, cmd.Bool("dry-run"))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(report)
	}

	verb := "removed"
	if report.DryRun {
		verb = "would remove"
	}
	r.writePlainln("%d exchanges with repeated activities, %s %d entries", report.Exchanges, verb, len(report.Removed))
	for _, id := range report.Removed {
		r.writePlainln("  %s", id)
	}
	return nil
}

// CompleteExchange advances a matched pairing to completed
func (r *Runner) CompleteExchange(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("invalid exchange id: %w", err)
	}
	actor, err := r.actor(ctx, cmd)
	if err != nil {
		return err
	}
	done, mirror, err := r.admin.CompleteExchange(ctx, actor, id)
	if err != nil {
		return err
	}
	r.writePlainln("✓ completed %s and %s", done.ID, mirror.ID)
	return nil
}

// SetUserType upgrades or downgrades an account
func (r *Runner) SetUserType(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	t := models.UserType(cmd.String("type"))
	if t != models.UserTypeBasic && t != models.UserTypePremium {
		return fmt.Errorf("type must be %q or %q", models.UserTypeBasic, models.UserTypePremium)
	}
	actor, err := r.actor(ctx, cmd)
	if err != nil {
		return err
	}
	if err := r.admin.SetUserType(ctx, actor, id, t); err != nil {
		return err
	}
	r.writePlainln("✓ %s is now %s", id, t)
	return nil
}
