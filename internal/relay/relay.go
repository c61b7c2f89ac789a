// Package relay reconciles a GitHub issue's activity against the local
// checkpoint and announces anything new to the chat webhook.
//
// Announcements are strictly sequential: the issue first, then comments in
// ascending ID order. The checkpoint is persisted after every successful
// announcement, so an interrupted run resumes at the first item that was not
// durably recorded.
package relay

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alan/issue-relay/cmd"
	"github.com/alan/issue-relay/internal/discord"
	"github.com/alan/issue-relay/internal/github"
	"golang.org/x/time/rate"
)

// ErrPartialPersist means an announcement was delivered but the checkpoint
// recording it could not be saved; the next run may repeat that announcement.
var ErrPartialPersist = errors.New("announcement sent but checkpoint not saved")

// DefaultSinceOverlap is subtracted from last_fetch_time before it is sent as
// the comment since filter. GitHub applies since to its own timestamps and
// list reads can lag writes, so the window must reach back past the previous
// fetch; FilterNew drops the comments the overlap returns again.
const DefaultSinceOverlap = 5 * time.Minute

// IssueSource reads the issue and its comments
type IssueSource interface {
	GetIssue(ctx context.Context, number int, etag string) (*github.IssueResult, error)
	ListIssueComments(ctx context.Context, issueNumber int, since time.Time) ([]github.Comment, error)
}

// Notifier delivers one announcement
type Notifier interface {
	Send(ctx context.Context, msg discord.Message) error
}

// CheckpointStore loads and durably saves the checkpoint
type CheckpointStore interface {
	Load() (*cmd.Checkpoint, error)
	Save(checkpoint *cmd.Checkpoint) error
}

// Options configures a Reconciler
type Options struct {
	Repository    string // owner/name, shown in embed footers
	IssueNumber   int
	AnnounceDelay time.Duration
	SeenLimit     int
	SinceOverlap  time.Duration
}

// Reconciler performs one relay pass
type Reconciler struct {
	source   IssueSource
	notifier Notifier
	store    CheckpointStore
	opts     Options
	limiter  *rate.Limiter
	now      func() time.Time
}

// Result summarizes a completed pass
type Result struct {
	IssueAnnounced    bool
	IssueNotModified  bool
	CommentsAnnounced int
	Checkpoint        *cmd.Checkpoint
}

// NewReconciler wires the collaborators for a run
func NewReconciler(source IssueSource, notifier Notifier, store CheckpointStore, opts Options) *Reconciler {
	if opts.SeenLimit <= 0 {
		opts.SeenLimit = cmd.DefaultSeenLimit
	}
	if opts.SinceOverlap <= 0 {
		opts.SinceOverlap = DefaultSinceOverlap
	}

	// One token per delay interval with no burst: the first announcement
	// goes out immediately, each later one waits out the interval.
	limit := rate.Inf
	if opts.AnnounceDelay > 0 {
		limit = rate.Every(opts.AnnounceDelay)
	}

	return &Reconciler{
		source:   source,
		notifier: notifier,
		store:    store,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
	}
}

// Run loads the checkpoint and announces everything new. Progress made before
// an error is already persisted; last_fetch_time only advances on success.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	checkpoint, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	result := &Result{Checkpoint: checkpoint}

	announced, notModified, err := r.reconcileIssue(ctx, checkpoint)
	result.IssueAnnounced = announced
	result.IssueNotModified = notModified
	if err != nil {
		return result, err
	}

	fetchStarted := r.now()
	comments, err := r.source.ListIssueComments(ctx, r.opts.IssueNumber, r.since(checkpoint))
	if err != nil {
		return result, fmt.Errorf("failed to fetch comments: %w", err)
	}

	pending := FilterNew(checkpoint, comments)
	slog.Info("Fetched comments", "issue", r.opts.IssueNumber, "fetched", len(comments), "new", len(pending))

	for i := range pending {
		if err := r.announceComment(ctx, checkpoint, &pending[i]); err != nil {
			return result, err
		}
		result.CommentsAnnounced++
	}

	checkpoint.LastFetchTime = fetchStarted
	if err := r.store.Save(checkpoint); err != nil {
		return result, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return result, nil
}

// since widens the stored fetch time by the overlap; zero means fetch everything
func (r *Reconciler) since(checkpoint *cmd.Checkpoint) time.Time {
	if checkpoint.LastFetchTime.IsZero() {
		return time.Time{}
	}
	return checkpoint.LastFetchTime.Add(-r.opts.SinceOverlap)
}

// reconcileIssue fetches the issue and announces it if that has not happened yet
func (r *Reconciler) reconcileIssue(ctx context.Context, checkpoint *cmd.Checkpoint) (bool, bool, error) {
	// Only ask for a conditional response once the issue body is no longer
	// needed; an unannounced issue always needs the full payload.
	etag := ""
	if checkpoint.IssueAnnounced {
		etag = checkpoint.IssueETag
	}

	fetched, err := r.source.GetIssue(ctx, r.opts.IssueNumber, etag)
	if err != nil {
		return false, false, fmt.Errorf("failed to fetch issue: %w", err)
	}

	if fetched.NotModified {
		slog.Debug("Issue not modified since last fetch", "issue", r.opts.IssueNumber)
		return false, true, nil
	}

	if checkpoint.IssueAnnounced {
		if fetched.ETag != checkpoint.IssueETag {
			checkpoint.IssueETag = fetched.ETag
			if err := r.store.Save(checkpoint); err != nil {
				return false, false, fmt.Errorf("failed to save checkpoint: %w", err)
			}
		}
		return false, false, nil
	}

	if err := r.announce(ctx, discord.IssueMessage(r.opts.Repository, fetched.Issue)); err != nil {
		return false, false, fmt.Errorf("failed to announce issue #%d: %w", r.opts.IssueNumber, err)
	}

	checkpoint.IssueAnnounced = true
	checkpoint.IssueETag = fetched.ETag
	if err := r.store.Save(checkpoint); err != nil {
		return true, false, fmt.Errorf("%w: issue #%d: %w", ErrPartialPersist, r.opts.IssueNumber, err)
	}

	slog.Info("Announced issue", "issue", r.opts.IssueNumber, "title", fetched.Issue.Title)
	return true, false, nil
}

func (r *Reconciler) announceComment(ctx context.Context, checkpoint *cmd.Checkpoint, comment *github.Comment) error {
	msg := discord.CommentMessage(r.opts.Repository, r.opts.IssueNumber, comment)
	if err := r.announce(ctx, msg); err != nil {
		return fmt.Errorf("failed to announce comment %d: %w", comment.ID, err)
	}

	checkpoint.MarkCommentAnnounced(comment.ID, r.opts.SeenLimit)
	if err := r.store.Save(checkpoint); err != nil {
		return fmt.Errorf("%w: comment %d: %w", ErrPartialPersist, comment.ID, err)
	}

	slog.Info("Announced comment", "issue", r.opts.IssueNumber, "comment_id", comment.ID, "author", comment.Author)
	return nil
}

// announce waits for the pacing limiter, then sends
func (r *Reconciler) announce(ctx context.Context, msg discord.Message) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("announcement delay interrupted: %w", err)
	}
	return r.notifier.Send(ctx, msg)
}

// FilterNew returns the comments still to be announced, ascending by ID.
// This is the authoritative check; server-side since filtering only narrows
// what has to be compared.
func FilterNew(checkpoint *cmd.Checkpoint, comments []github.Comment) []github.Comment {
	var pending []github.Comment
	for _, c := range comments {
		if checkpoint.IsEligible(c.ID) {
			pending = append(pending, c)
		}
	}

	slices.SortStableFunc(pending, func(a, b github.Comment) int {
		return cmp.Compare(a.ID, b.ID)
	})

	// Duplicate IDs across pages would otherwise be announced twice
	return slices.CompactFunc(pending, func(a, b github.Comment) bool {
		return a.ID == b.ID
	})
}
