package relay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alan/issue-relay/cmd"
	"github.com/alan/issue-relay/internal/config"
	"github.com/alan/issue-relay/internal/discord"
	"github.com/alan/issue-relay/internal/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	issue       *github.Issue
	etag        string
	comments    []github.Comment
	issueErr    error
	commentsErr error

	gotETags []string
	gotSince []time.Time
}

func (f *fakeSource) GetIssue(_ context.Context, _ int, etag string) (*github.IssueResult, error) {
	f.gotETags = append(f.gotETags, etag)
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	if etag != "" && etag == f.etag {
		return &github.IssueResult{ETag: etag, NotModified: true}, nil
	}
	return &github.IssueResult{Issue: f.issue, ETag: f.etag}, nil
}

func (f *fakeSource) ListIssueComments(_ context.Context, _ int, since time.Time) ([]github.Comment, error) {
	f.gotSince = append(f.gotSince, since)
	if f.commentsErr != nil {
		return nil, f.commentsErr
	}
	return f.comments, nil
}

type fakeNotifier struct {
	sent   []discord.Message
	failOn func(discord.Embed) bool
}

func (f *fakeNotifier) Send(_ context.Context, msg discord.Message) error {
	if f.failOn != nil && f.failOn(msg.Embeds[0]) {
		return errors.New("webhook returned HTTP 500")
	}
	f.sent = append(f.sent, msg)
	return nil
}

// announced renders sent embeds as "issue" or the comment ID suffix of the URL
func (f *fakeNotifier) announced() []string {
	var out []string
	for _, msg := range f.sent {
		embed := msg.Embeds[0]
		if strings.HasPrefix(embed.Title, "Issue #") {
			out = append(out, "issue")
			continue
		}
		out = append(out, embed.URL[strings.LastIndex(embed.URL, "-")+1:])
	}
	return out
}

type failingStore struct {
	*config.Store
	failAfter int
	saves     int
}

func (s *failingStore) Save(checkpoint *cmd.Checkpoint) error {
	s.saves++
	if s.saves > s.failAfter {
		return errors.New("disk full")
	}
	return s.Store.Save(checkpoint)
}

func newIssue() *github.Issue {
	return &github.Issue{
		Number: 42,
		Title:  "Widgets explode",
		Body:   "They go boom.",
		Author: "alice",
		URL:    "https://github.com/octo/widgets/issues/42",
	}
}

func commentsWithIDs(ids ...int64) []github.Comment {
	var out []github.Comment
	for _, id := range ids {
		out = append(out, github.Comment{ID: id, Body: "c", Author: "bob"})
	}
	return out
}

func newTestReconciler(t *testing.T, source IssueSource, notifier Notifier, store CheckpointStore) *Reconciler {
	t.Helper()
	r := NewReconciler(source, notifier, store, Options{
		Repository:  "octo/widgets",
		IssueNumber: 42,
		SeenLimit:   100,
	})
	r.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	return r
}

func newStore(t *testing.T) *config.Store {
	t.Helper()
	return config.NewStore(filepath.Join(t.TempDir(), ".state", "state.json"))
}

func TestRun_FirstRunAnnouncesIssueThenCommentsInOrder(t *testing.T) {
	source := &fakeSource{issue: newIssue(), etag: `"v1"`, comments: commentsWithIDs(101, 102, 103)}
	notifier := &fakeNotifier{}
	store := newStore(t)

	result, err := newTestReconciler(t, source, notifier, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"issue", "101", "102", "103"}, notifier.announced())
	assert.True(t, result.IssueAnnounced)
	assert.Equal(t, 3, result.CommentsAnnounced)

	checkpoint, err := store.Load()
	require.NoError(t, err)
	assert.True(t, checkpoint.IssueAnnounced)
	assert.Equal(t, int64(103), checkpoint.LastCommentID)
	assert.Equal(t, []int64{101, 102, 103}, checkpoint.SeenCommentIDs)
	assert.Equal(t, `"v1"`, checkpoint.IssueETag)
	assert.Equal(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), checkpoint.LastFetchTime.UTC())
	assert.True(t, source.gotSince[0].IsZero(), "first run fetches without a since hint")
}

func TestRun_IsIdempotent(t *testing.T) {
	source := &fakeSource{issue: newIssue(), comments: commentsWithIDs(101, 102, 103)}
	notifier := &fakeNotifier{}
	store := newStore(t)

	_, err := newTestReconciler(t, source, notifier, store).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, notifier.sent, 4)

	for i := 0; i < 3; i++ {
		result, err := newTestReconciler(t, source, notifier, store).Run(context.Background())
		require.NoError(t, err)
		assert.False(t, result.IssueAnnounced)
		assert.Zero(t, result.CommentsAnnounced)
	}
	assert.Len(t, notifier.sent, 4, "re-runs announce nothing further")
}

func TestRun_CommentFailureAbortsAndResumes(t *testing.T) {
	source := &fakeSource{issue: newIssue(), comments: commentsWithIDs(101, 102, 103)}
	failing := &fakeNotifier{failOn: func(e discord.Embed) bool {
		return strings.HasSuffix(e.URL, "issuecomment-102")
	}}
	store := newStore(t)

	_, err := newTestReconciler(t, source, failing, store).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to announce comment 102")
	assert.Equal(t, []string{"issue", "101"}, failing.announced())

	checkpoint, err := store.Load()
	require.NoError(t, err)
	assert.True(t, checkpoint.IssueAnnounced)
	assert.Equal(t, int64(101), checkpoint.LastCommentID)
	assert.True(t, checkpoint.LastFetchTime.IsZero(), "aborted run must not advance last fetch time")

	healthy := &fakeNotifier{}
	result, err := newTestReconciler(t, source, healthy, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"102", "103"}, healthy.announced())
	assert.Equal(t, 2, result.CommentsAnnounced)
	assert.True(t, source.gotSince[1].IsZero(), "resumed run re-fetches the same window")

	checkpoint, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(103), checkpoint.LastCommentID)
}

func TestRun_SortsOutOfOrderComments(t *testing.T) {
	source := &fakeSource{issue: newIssue(), comments: commentsWithIDs(103, 101, 102)}
	notifier := &fakeNotifier{}

	_, err := newTestReconciler(t, source, notifier, newStore(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"issue", "101", "102", "103"}, notifier.announced())
}

func TestRun_IssueAnnouncementFailureLeavesCheckpointUntouched(t *testing.T) {
	source := &fakeSource{issue: newIssue(), comments: commentsWithIDs(101)}
	notifier := &fakeNotifier{failOn: func(e discord.Embed) bool {
		return strings.HasPrefix(e.Title, "Issue #")
	}}
	store := newStore(t)

	_, err := newTestReconciler(t, source, notifier, store).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to announce issue #42")
	assert.Empty(t, notifier.sent)
	assert.Empty(t, source.gotSince, "comments are not fetched after the issue fails")

	checkpoint, err := store.Load()
	require.NoError(t, err)
	assert.False(t, checkpoint.IssueAnnounced)

	retry := &fakeNotifier{}
	_, err = newTestReconciler(t, source, retry, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"issue", "101"}, retry.announced())
}

func TestRun_NotModifiedSkipsToComments(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save(&cmd.Checkpoint{
		IssueAnnounced: true,
		LastCommentID:  101,
		SeenCommentIDs: []int64{101},
		IssueETag:      `"v1"`,
		LastFetchTime:  time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
	}))

	source := &fakeSource{etag: `"v1"`, comments: commentsWithIDs(101, 102)}
	notifier := &fakeNotifier{}

	result, err := newTestReconciler(t, source, notifier, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{`"v1"`}, source.gotETags)
	assert.True(t, result.IssueNotModified)
	assert.Equal(t, []string{"102"}, notifier.announced())
	assert.Equal(t, time.Date(2026, 10, 14, 23, 55, 0, 0, time.UTC), source.gotSince[0].UTC())
}

// serverSource filters comments by since against its own clock, like the API
type serverSource struct {
	fakeSource
	posted map[int64]time.Time
}

func (s *serverSource) ListIssueComments(_ context.Context, _ int, since time.Time) ([]github.Comment, error) {
	s.gotSince = append(s.gotSince, since)
	var out []github.Comment
	for _, c := range s.comments {
		if since.IsZero() || !s.posted[c.ID].Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestRun_SinceOverlapCoversServerClockSkew(t *testing.T) {
	store := newStore(t)
	fetchedAt := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	source := &serverSource{fakeSource: fakeSource{issue: newIssue(), etag: `"v1"`}, posted: map[int64]time.Time{}}
	notifier := &fakeNotifier{}
	r := newTestReconciler(t, source, notifier, store)
	r.now = func() time.Time { return fetchedAt }

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	// Posted after the first fetch, but stamped 20s earlier by a server
	// clock running behind ours.
	source.comments = commentsWithIDs(101)
	source.posted[101] = fetchedAt.Add(-20 * time.Second)

	for i := 1; i <= 3; i++ {
		r.now = func() time.Time { return fetchedAt.Add(time.Duration(i) * time.Minute) }
		_, err := r.Run(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"issue", "101"}, notifier.announced())
	assert.Equal(t, fetchedAt.Add(-DefaultSinceOverlap), source.gotSince[1].UTC())

	checkpoint, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(101), checkpoint.LastCommentID)
}

func TestRun_UnannouncedIssueIsFetchedUnconditionally(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save(&cmd.Checkpoint{IssueETag: `"v1"`}))

	source := &fakeSource{issue: newIssue(), etag: `"v1"`}
	notifier := &fakeNotifier{}

	_, err := newTestReconciler(t, source, notifier, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{""}, source.gotETags)
	assert.Equal(t, []string{"issue"}, notifier.announced())
}

func TestRun_SeenSetGuardsNonMonotonicDelivery(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save(&cmd.Checkpoint{
		IssueAnnounced: true,
		LastCommentID:  100,
		SeenCommentIDs: []int64{100, 120},
	}))

	source := &fakeSource{issue: newIssue(), comments: commentsWithIDs(90, 120, 110)}
	notifier := &fakeNotifier{}

	_, err := newTestReconciler(t, source, notifier, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"110"}, notifier.announced())

	checkpoint, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(110), checkpoint.LastCommentID)
}

func TestRun_PartialPersistFailure(t *testing.T) {
	store := &failingStore{Store: newStore(t), failAfter: 2}
	source := &fakeSource{issue: newIssue(), comments: commentsWithIDs(101, 102, 103)}
	notifier := &fakeNotifier{}

	_, err := newTestReconciler(t, source, notifier, store).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartialPersist))
	assert.Contains(t, err.Error(), "comment 102")

	// 102 was delivered but not recorded; the next run repeats it
	assert.Equal(t, []string{"issue", "101", "102"}, notifier.announced())
	checkpoint, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(101), checkpoint.LastCommentID)
}

func TestRun_TransportFailures(t *testing.T) {
	tests := []struct {
		name       string
		source     *fakeSource
		wantErrMsg string
		wantIssue  bool
		wantSent   int
	}{
		{
			name:       "issue fetch fails",
			source:     &fakeSource{issueErr: errors.New("502 bad gateway")},
			wantErrMsg: "failed to fetch issue",
		},
		{
			name:       "comment fetch fails after issue announced",
			source:     &fakeSource{issue: newIssue(), commentsErr: errors.New("503 unavailable")},
			wantErrMsg: "failed to fetch comments",
			wantIssue:  true,
			wantSent:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			notifier := &fakeNotifier{}

			_, err := newTestReconciler(t, tt.source, notifier, store).Run(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErrMsg)
			assert.Len(t, notifier.sent, tt.wantSent)

			checkpoint, err := store.Load()
			require.NoError(t, err)
			assert.Equal(t, tt.wantIssue, checkpoint.IssueAnnounced)
			assert.True(t, checkpoint.LastFetchTime.IsZero())
		})
	}
}

func TestRun_CorruptStateAborts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := config.NewStore(path)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	source := &fakeSource{issue: newIssue()}
	notifier := &fakeNotifier{}

	_, err := newTestReconciler(t, source, notifier, store).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrCorruptState))
	assert.Empty(t, source.gotETags, "nothing is fetched")
	assert.Empty(t, notifier.sent)
}

func TestRun_PacesAnnouncements(t *testing.T) {
	source := &fakeSource{issue: newIssue(), comments: commentsWithIDs(1, 2)}
	notifier := &fakeNotifier{}

	r := NewReconciler(source, notifier, newStore(t), Options{
		Repository:    "octo/widgets",
		IssueNumber:   42,
		AnnounceDelay: 25 * time.Millisecond,
	})

	start := time.Now()
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, notifier.sent, 3)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond, "three announcements need two full delays")
}

func TestFilterNew(t *testing.T) {
	checkpoint := &cmd.Checkpoint{LastCommentID: 10, SeenCommentIDs: []int64{12}}
	comments := commentsWithIDs(14, 9, 12, 11, 14, 10)

	var ids []int64
	for _, c := range FilterNew(checkpoint, comments) {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int64{11, 14}, ids)
}
