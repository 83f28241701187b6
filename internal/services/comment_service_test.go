package services

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/config"
	"github.com/saidovdiyorbek/threads/internal/domain"
	"github.com/saidovdiyorbek/threads/internal/remote"
	"github.com/saidovdiyorbek/threads/internal/repo"
)

type commentFixture struct {
	svc      *CommentService
	db       *gorm.DB
	users    *fakeUsers
	posts    *fakePosts
	attaches *fakeAttaches
}

func newCommentFixture(t *testing.T) *commentFixture {
	t.Helper()
	db := newTestDB(t, &domain.Comment{}, &domain.CommentAttach{}, &domain.CommentLike{}, &domain.Idempotency{})
	f := &commentFixture{
		db:       db,
		users:    newFakeUsers(map[uint64]string{1: "alice", 2: "bob"}),
		posts:    newFakePosts(10, 11),
		attaches: newFakeAttaches(map[string]uint64{"h1": 1, "h2": 1, "h3": 1}),
	}
	f.svc = NewCommentService(db, f.users, f.posts, f.attaches)
	return f
}

func (f *commentFixture) mustComment(t *testing.T, ctx context.Context, in CreateCommentInput) *CommentDetail {
	t.Helper()
	c, _, err := f.svc.Create(ctx, in, "")
	if err != nil {
		t.Fatalf("Create(%+v): %v", in, err)
	}
	return c
}

func TestCommentDelete_CascadesOneLevel(t *testing.T) {
	f := newCommentFixture(t)
	ctx := as(1, "alice")

	c1 := f.mustComment(t, ctx, CreateCommentInput{Text: "top", PostID: 10})
	if f.posts.commentCount[10] != 1 {
		t.Fatalf("comment_count = %d, want 1", f.posts.commentCount[10])
	}
	c2 := f.mustComment(t, as(2, "bob"), CreateCommentInput{Text: "reply", PostID: 10, ParentID: &c1.ID})
	if f.posts.commentCount[10] != 2 {
		t.Fatalf("comment_count = %d, want 2", f.posts.commentCount[10])
	}
	if c2.Username != "bob" {
		t.Fatalf("username snapshot = %q", c2.Username)
	}

	if err := f.svc.Delete(ctx, c1.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.posts.commentCount[10] != 1 {
		t.Fatalf("comment_count = %d, want 1", f.posts.commentCount[10])
	}

	stored1, err := repo.Comments.FindFullByID(context.Background(), f.db, c1.ID)
	if err != nil || stored1 == nil {
		t.Fatalf("FindFullByID c1: (%v, %v)", stored1, err)
	}
	if !stored1.Deleted || stored1.ReplyCount != 1 {
		t.Fatalf("c1 = deleted:%v reply_count:%d; want true/1", stored1.Deleted, stored1.ReplyCount)
	}
	stored2, err := repo.Comments.FindFullByID(context.Background(), f.db, c2.ID)
	if err != nil || stored2 == nil || !stored2.Deleted {
		t.Fatalf("reply must be trashed: (%+v, %v)", stored2, err)
	}

	if err := f.svc.Delete(ctx, c1.ID); !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("second delete: expected ErrCommentNotFound, got %v", err)
	}
}

func TestCommentDelete_ReplyDecrementsParent(t *testing.T) {
	f := newCommentFixture(t)
	ctx := as(1, "alice")
	parent := f.mustComment(t, ctx, CreateCommentInput{Text: "top", PostID: 10})
	reply := f.mustComment(t, ctx, CreateCommentInput{Text: "re", PostID: 10, ParentID: &parent.ID, Hashes: []string{"h1"}})

	replies := func() int64 {
		v, _ := repo.CounterValue(context.Background(), f.db, repo.CommentReplies, parent.ID)
		return v
	}
	if replies() != 1 {
		t.Fatalf("reply_count = %d, want 1", replies())
	}

	if err := f.svc.Delete(ctx, reply.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if replies() != 0 {
		t.Fatalf("reply_count = %d, want 0", replies())
	}
	if !reflect.DeepEqual(f.attaches.deleted, []string{"h1"}) {
		t.Fatalf("released = %v", f.attaches.deleted)
	}
	if _, err := f.svc.Get(ctx, parent.ID); err != nil {
		t.Fatalf("parent must stay active: %v", err)
	}
}

func TestCommentCreate_HashesCheckedOneByOne(t *testing.T) {
	f := newCommentFixture(t)
	delete(f.attaches.owner, "h2")

	_, _, err := f.svc.Create(as(1, "alice"), CreateCommentInput{Text: "x", PostID: 10, Hashes: []string{"h1", "h2", "h3"}}, "")
	if !errors.Is(err, ErrCommentAttachMissing) {
		t.Fatalf("expected ErrCommentAttachMissing, got %v", err)
	}
	if f.attaches.existsCalls != 2 {
		t.Fatalf("checks must stop at the first missing hash, got %d calls", f.attaches.existsCalls)
	}
	var n int64
	f.db.Model(&domain.Comment{}).Count(&n)
	if n != 0 || f.posts.commentCount[10] != 0 {
		t.Fatalf("nothing may be written: rows=%d count=%d", n, f.posts.commentCount[10])
	}
}

func TestCommentCreate_Preconditions(t *testing.T) {
	f := newCommentFixture(t)
	ctx := as(1, "alice")

	if _, _, err := f.svc.Create(ctx, CreateCommentInput{Text: "x", PostID: 99}, ""); !errors.Is(err, ErrCommentPostNotFound) {
		t.Fatalf("missing post: %v", err)
	}
	if _, _, err := f.svc.Create(ctx, CreateCommentInput{Text: "   ", PostID: 10}, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank text: %v", err)
	}
	if _, _, err := f.svc.Create(ctx, CreateCommentInput{Text: "x"}, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing post_id: %v", err)
	}
	missing := uint64(404)
	if _, _, err := f.svc.Create(ctx, CreateCommentInput{Text: "x", PostID: 10, ParentID: &missing}, ""); !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("missing parent: %v", err)
	}

	top := f.mustComment(t, ctx, CreateCommentInput{Text: "top", PostID: 10})
	if _, _, err := f.svc.Create(ctx, CreateCommentInput{Text: "x", PostID: 11, ParentID: &top.ID}, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("parent on another post: %v", err)
	}

	_, _, err := f.svc.Create(as(9, "ghost"), CreateCommentInput{Text: "x", PostID: 10}, "")
	var re *remote.Error
	if !errors.As(err, &re) || !re.NotFound() {
		t.Fatalf("unknown author: expected a remote not-found, got %v", err)
	}
}

func TestCommentCreate_RemoteFailureRollsBack(t *testing.T) {
	f := newCommentFixture(t)
	ctx := as(1, "alice")
	top := f.mustComment(t, ctx, CreateCommentInput{Text: "top", PostID: 10})
	f.posts.incErr = &remote.Error{Service: "post", Status: http.StatusBadGateway}

	if _, _, err := f.svc.Create(ctx, CreateCommentInput{Text: "re", PostID: 10, ParentID: &top.ID}, ""); err == nil {
		t.Fatalf("expected the remote failure to surface")
	}
	if v, _ := repo.CounterValue(context.Background(), f.db, repo.CommentReplies, top.ID); v != 0 {
		t.Fatalf("reply_count must be rolled back, got %d", v)
	}
	replies, err := f.svc.RepliesOf(ctx, top.ID)
	if err != nil || len(replies.Replies) != 0 {
		t.Fatalf("RepliesOf = (%+v, %v)", replies, err)
	}
}

func TestCommentLike_Toggle(t *testing.T) {
	f := newCommentFixture(t)
	c := f.mustComment(t, as(1, "alice"), CreateCommentInput{Text: "nice", PostID: 10})
	likes := func() int64 {
		v, _ := repo.CounterValue(context.Background(), f.db, repo.CommentLikes, c.ID)
		return v
	}

	if err := f.svc.Like(as(1, "alice"), c.ID); !errors.Is(err, ErrCommentSelfLike) {
		t.Fatalf("self like: %v", err)
	}
	bob := as(2, "bob")
	if err := f.svc.Like(bob, c.ID); err != nil {
		t.Fatalf("Like: %v", err)
	}
	if err := f.svc.Like(bob, c.ID); !errors.Is(err, ErrCommentAlreadyLiked) {
		t.Fatalf("second like: %v", err)
	}
	if likes() != 1 {
		t.Fatalf("like_count = %d, want 1", likes())
	}
	if err := f.svc.Unlike(bob, c.ID); err != nil {
		t.Fatalf("Unlike: %v", err)
	}
	if err := f.svc.Unlike(bob, c.ID); !errors.Is(err, ErrCommentNotLiked) {
		t.Fatalf("second unlike: %v", err)
	}
	if err := f.svc.Like(bob, c.ID); err != nil || likes() != 1 {
		t.Fatalf("re-like: err=%v likes=%d", err, likes())
	}
	if err := f.svc.Like(as(9, "ghost"), c.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestCommentUpdate_AuthorOnly(t *testing.T) {
	f := newCommentFixture(t)
	c := f.mustComment(t, as(1, "alice"), CreateCommentInput{Text: "first", PostID: 10})

	if _, err := f.svc.Update(as(2, "bob"), c.ID, "hijack"); !errors.Is(err, ErrCommentNotYours) {
		t.Fatalf("expected ErrCommentNotYours, got %v", err)
	}
	if _, err := f.svc.Update(asAdmin(50), c.ID, "admin"); !errors.Is(err, ErrCommentNotYours) {
		t.Fatalf("admins may not rewrite other users' comments, got %v", err)
	}
	got, err := f.svc.Update(as(1, "alice"), c.ID, "second")
	if err != nil || got.Text != "second" {
		t.Fatalf("Update = (%+v, %v)", got, err)
	}
}

func TestCommentQueries(t *testing.T) {
	f := newCommentFixture(t)
	alice := as(1, "alice")
	top := f.mustComment(t, alice, CreateCommentInput{Text: "top", PostID: 10, Hashes: []string{"h1"}})
	f.mustComment(t, as(2, "bob"), CreateCommentInput{Text: "re", PostID: 10, ParentID: &top.ID})
	f.mustComment(t, alice, CreateCommentInput{Text: "elsewhere", PostID: 11})

	byPost, err := f.svc.ByPost(context.Background(), 10)
	if err != nil || len(byPost.Comments) != 2 {
		t.Fatalf("ByPost = (%+v, %v)", byPost, err)
	}
	if _, err := f.svc.ByPost(context.Background(), 99); !errors.Is(err, ErrCommentPostNotFound) {
		t.Fatalf("ByPost missing: %v", err)
	}

	byUser, err := f.svc.ByUser(context.Background(), 1)
	if err != nil || byUser.User.Username != "alice" || len(byUser.Comments) != 2 {
		t.Fatalf("ByUser = (%+v, %v)", byUser, err)
	}

	replies, err := f.svc.RepliesOf(context.Background(), top.ID)
	if err != nil || replies.Text != "top" || len(replies.Replies) != 1 {
		t.Fatalf("RepliesOf = (%+v, %v)", replies, err)
	}

	got, err := f.svc.Get(context.Background(), top.ID)
	if err != nil || !reflect.DeepEqual(got.Hashes, []string{"h1"}) {
		t.Fatalf("Get = (%+v, %v)", got, err)
	}
}

func TestCommentTrashByPost(t *testing.T) {
	f := newCommentFixture(t)
	ctx := as(1, "alice")
	a := f.mustComment(t, ctx, CreateCommentInput{Text: "a", PostID: 10})
	f.mustComment(t, ctx, CreateCommentInput{Text: "b", PostID: 10, ParentID: &a.ID})
	keep := f.mustComment(t, ctx, CreateCommentInput{Text: "c", PostID: 11})

	n, err := f.svc.TrashByPost(context.Background(), 10)
	if err != nil || n != 2 {
		t.Fatalf("TrashByPost = (%d, %v), want 2", n, err)
	}
	if n, _ := f.svc.TrashByPost(context.Background(), 10); n != 0 {
		t.Fatalf("second TrashByPost trashed %d rows", n)
	}
	if _, err := f.svc.Get(ctx, keep.ID); err != nil {
		t.Fatalf("other post's comment must survive: %v", err)
	}
}

func TestCommentCreate_IdempotencyKeyReplays(t *testing.T) {
	f := newCommentFixture(t)
	ctx := as(1, "alice")
	first, _, err := f.svc.Create(ctx, CreateCommentInput{Text: "once", PostID: 10}, "k")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	again, replayed, err := f.svc.Create(ctx, CreateCommentInput{Text: "once", PostID: 10}, "k")
	if err != nil || !replayed || again.ID != first.ID {
		t.Fatalf("replay: id=%d replayed=%v err=%v", again.ID, replayed, err)
	}
	if f.posts.commentCount[10] != 1 {
		t.Fatalf("comment_count = %d, want 1", f.posts.commentCount[10])
	}
}

// holdingPosts parks the first DecrementCommentCount call until release closes.
type holdingPosts struct {
	*fakePosts
	mu       sync.Mutex
	decCalls int
	entered  chan struct{}
	release  chan struct{}
}

func (h *holdingPosts) DecrementCommentCount(ctx context.Context, id uint64) error {
	h.mu.Lock()
	h.decCalls++
	first := h.decCalls == 1
	h.mu.Unlock()
	if first {
		close(h.entered)
		<-h.release
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fakePosts.DecrementCommentCount(ctx, id)
}

func TestCommentDelete_OverlappingDeletesCascadeOnce(t *testing.T) {
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "comment.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db, config.ServiceComment); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	posts := &holdingPosts{
		fakePosts: newFakePosts(10),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	svc := NewCommentService(db, newFakeUsers(map[uint64]string{1: "alice"}), posts, newFakeAttaches(nil))
	ctx := as(1, "alice")

	parent, _, err := svc.Create(ctx, CreateCommentInput{Text: "root", PostID: 10}, "")
	if err != nil {
		t.Fatalf("Create parent: %v", err)
	}
	reply, _, err := svc.Create(ctx, CreateCommentInput{Text: "reply", PostID: 10, ParentID: &parent.ID}, "")
	if err != nil {
		t.Fatalf("Create reply: %v", err)
	}

	results := make(chan error, 2)
	go func() { results <- svc.Delete(ctx, reply.ID) }()
	select {
	case <-posts.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first delete never reached the comment counter")
	}
	go func() { results <- svc.Delete(ctx, reply.ID) }()

	var errs []error
	select {
	case err := <-results:
		errs = append(errs, err)
	case <-time.After(200 * time.Millisecond):
	}
	close(posts.release)
	for len(errs) < 2 {
		select {
		case err := <-results:
			errs = append(errs, err)
		case <-time.After(10 * time.Second):
			t.Fatal("deletes did not finish")
		}
	}

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("exactly one delete must win, got %v", errs)
	}
	if posts.decCalls != 1 || posts.commentCount[10] != 1 {
		t.Fatalf("comment counter adjusted %d times, commentCount = %d, want 1 and 1", posts.decCalls, posts.commentCount[10])
	}
	replies, err := repo.CounterValue(context.Background(), db, repo.CommentReplies, parent.ID)
	if err != nil || replies != 0 {
		t.Fatalf("reply_count = %d (%v), want 0", replies, err)
	}
}
