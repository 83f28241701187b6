package services

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/saidovdiyorbek/threads/internal/actor"
	"github.com/saidovdiyorbek/threads/internal/remote"
)

func newTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid schema leakage across tests.
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func as(id uint64, username string) context.Context {
	return actor.With(context.Background(), actor.Actor{ID: id, Username: username, Role: actor.RoleUser})
}

func asAdmin(id uint64) context.Context {
	return actor.With(context.Background(), actor.Actor{ID: id, Username: "root", Role: actor.RoleAdmin})
}

func notFoundRemote(service string, code int) *remote.Error {
	return &remote.Error{Service: service, Status: http.StatusNotFound, Code: code, Message: "not found"}
}

// ----- fake sibling services -----

type fakeUsers struct {
	active    map[uint64]string // id -> username
	postCount map[uint64]int64

	incErr error
	decErr error
}

func newFakeUsers(users map[uint64]string) *fakeUsers {
	return &fakeUsers{active: users, postCount: map[uint64]int64{}}
}

func (f *fakeUsers) Exists(_ context.Context, id uint64) (bool, error) {
	_, ok := f.active[id]
	return ok, nil
}

func (f *fakeUsers) ShortInfo(_ context.Context, id uint64) (*remote.UserShortInfo, error) {
	name, ok := f.active[id]
	if !ok {
		return nil, notFoundRemote("user", 100)
	}
	return &remote.UserShortInfo{ID: id, Username: name}, nil
}

func (f *fakeUsers) IncrementPostCount(_ context.Context, id uint64) error {
	if f.incErr != nil {
		return f.incErr
	}
	f.postCount[id]++
	return nil
}

func (f *fakeUsers) DecrementPostCount(_ context.Context, id uint64) error {
	if f.decErr != nil {
		return f.decErr
	}
	f.postCount[id]--
	return nil
}

type fakePosts struct {
	active       map[uint64]bool
	commentCount map[uint64]int64

	incErr error
}

func newFakePosts(ids ...uint64) *fakePosts {
	f := &fakePosts{active: map[uint64]bool{}, commentCount: map[uint64]int64{}}
	for _, id := range ids {
		f.active[id] = true
	}
	return f
}

func (f *fakePosts) Exists(_ context.Context, id uint64) (bool, error) { return f.active[id], nil }

func (f *fakePosts) IncrementCommentCount(_ context.Context, id uint64) error {
	if f.incErr != nil {
		return f.incErr
	}
	f.commentCount[id]++
	return nil
}

func (f *fakePosts) DecrementCommentCount(_ context.Context, id uint64) error {
	f.commentCount[id]--
	return nil
}

type fakeComments struct {
	trashedPosts []uint64
}

func (f *fakeComments) TrashByPost(_ context.Context, postID uint64) (int64, error) {
	f.trashedPosts = append(f.trashedPosts, postID)
	return 0, nil
}

type fakeAttaches struct {
	owner   map[string]uint64 // hash -> uploader
	deleted []string

	existsCalls int
	listCalls   int
}

func newFakeAttaches(owner map[string]uint64) *fakeAttaches {
	return &fakeAttaches{owner: owner}
}

func (f *fakeAttaches) Exists(_ context.Context, hash string, userID uint64) (bool, error) {
	f.existsCalls++
	uid, ok := f.owner[hash]
	return ok && uid == userID, nil
}

func (f *fakeAttaches) ListExists(_ context.Context, hashes []string, userID uint64) (bool, error) {
	f.listCalls++
	for _, h := range hashes {
		if uid, ok := f.owner[h]; !ok || uid != userID {
			return false, nil
		}
	}
	return true, nil
}

func (f *fakeAttaches) DeleteList(_ context.Context, hashes []string) error {
	f.deleted = append(f.deleted, hashes...)
	for _, h := range hashes {
		delete(f.owner, h)
	}
	return nil
}
