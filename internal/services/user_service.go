// Package services – UserService
//
// UserService owns accounts and the follow graph. Usernames and emails are
// case-folded before they are stored or compared, passwords are kept as
// bcrypt hashes, and the follower/following/post counters are only changed
// through repo.Increment and repo.Decrement.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"net/mail"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/actor"
	"github.com/saidovdiyorbek/threads/internal/domain"
	"github.com/saidovdiyorbek/threads/internal/remote"
	"github.com/saidovdiyorbek/threads/internal/repo"
)

// CreateUserInput is the payload of UserService.Create.
type CreateUserInput struct {
	FullName string
	Username string
	Email    string
	Password string
	Bio      string
	Role     string
}

// UpdateUserInput carries the optional fields of UserService.Update. Nil
// fields are left untouched.
type UpdateUserInput struct {
	FullName *string
	Username *string
	Email    *string
	Password *string
	Bio      *string
}

// Profile is the public summary of an account with its stored counters.
type Profile struct {
	ID             uint64 `json:"id"`
	FullName       string `json:"full_name"`
	Username       string `json:"username"`
	Bio            string `json:"bio"`
	PostCount      int64  `json:"post_count"`
	FollowersCount int64  `json:"followers_count"`
	FollowingCount int64  `json:"following_count"`
}

// UserService implements the user service operations.
type UserService struct {
	DB *gorm.DB

	// BcryptCost is the work factor for new password hashes.
	BcryptCost int
}

// NewUserService constructs a UserService with the default bcrypt cost.
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db, BcryptCost: bcrypt.DefaultCost}
}

func (s *UserService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/UserService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// Create registers a new account. Only an admin may create another admin.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	ctx, span := s.span(ctx, "Create")
	defer span.End()

	username, email, err := s.identity(in.Username, in.Email)
	if err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(in.Password); n < 6 || n > 60 {
		return nil, invalid("password must be between 6 and 60 characters")
	}
	role := strings.ToUpper(strings.TrimSpace(in.Role))
	switch role {
	case "", actor.RoleUser:
		role = actor.RoleUser
	case actor.RoleAdmin:
		if a, ok := actor.From(ctx); !ok || !a.IsAdmin() {
			return nil, ErrUserNotYours
		}
	default:
		return nil, invalid("role must be USER or ADMIN")
	}

	if taken, err := repo.UsernameTaken(ctx, s.DB, username, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameExists
	}
	if taken, err := repo.EmailTaken(ctx, s.DB, email, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost())
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		FullName:     strings.TrimSpace(in.FullName),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Bio:          strings.TrimSpace(in.Bio),
		Status:       domain.UserStatusActive,
		Role:         role,
	}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if repo.IsUniqueViolation(err) {
			// Lost a race against a concurrent registration.
			return nil, ErrUsernameExists
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int64("user.id", int64(u.ID)))
	return u, nil
}

// Get returns the account whether or not it has been trashed.
func (s *UserService) Get(ctx context.Context, id uint64) (*domain.User, error) {
	ctx, span := s.span(ctx, "Get", attribute.Int64("user.id", int64(id)))
	defer span.End()

	u, err := repo.Users.FindFullByID(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// ListPage returns one page of active accounts and the active total.
func (s *UserService) ListPage(ctx context.Context, page, pageSize int) ([]domain.User, int64, error) {
	ctx, span := s.span(ctx, "ListPage", attribute.Int("page", page), attribute.Int("page_size", pageSize))
	defer span.End()

	_, limit, offset := pageBounds(page, pageSize)
	return repo.Users.ListActivePage(ctx, s.DB, offset, limit)
}

// Update changes the given fields of an active account. Uniqueness is only
// re-checked for values that actually change.
func (s *UserService) Update(ctx context.Context, id uint64, in UpdateUserInput) (*domain.User, error) {
	ctx, span := s.span(ctx, "Update", attribute.Int64("user.id", int64(id)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	u, err := repo.Users.FindActiveByID(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	if !who.Owns(u.ID) {
		return nil, ErrUserNotYours
	}

	fields := map[string]any{}
	if in.FullName != nil {
		fields["full_name"] = strings.TrimSpace(*in.FullName)
	}
	if in.Bio != nil {
		fields["bio"] = strings.TrimSpace(*in.Bio)
	}
	if in.Username != nil {
		username := fold(strings.TrimSpace(*in.Username))
		if n := utf8.RuneCountInString(username); n < 3 || n > 60 {
			return nil, invalid("username must be between 3 and 60 characters")
		}
		if username != u.Username {
			if taken, err := repo.UsernameTaken(ctx, s.DB, username, u.ID); err != nil {
				return nil, err
			} else if taken {
				return nil, ErrUsernameExists
			}
			fields["username"] = username
		}
	}
	if in.Email != nil {
		email, err := s.normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		if email != u.Email {
			if taken, err := repo.EmailTaken(ctx, s.DB, email, u.ID); err != nil {
				return nil, err
			} else if taken {
				return nil, ErrEmailExists
			}
			fields["email"] = email
		}
	}
	if in.Password != nil {
		if n := utf8.RuneCountInString(*in.Password); n < 6 || n > 60 {
			return nil, invalid("password must be between 6 and 60 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), s.cost())
		if err != nil {
			return nil, err
		}
		fields["password_hash"] = string(hash)
	}

	if err := repo.UpdateUser(ctx, s.DB, u, fields); err != nil {
		if repo.IsUniqueViolation(err) {
			return nil, ErrUsernameExists
		}
		return nil, err
	}
	return repo.Users.FindActiveByID(ctx, s.DB, id)
}

// Delete trashes an active account. Trashing twice reports ErrUserNotFound.
func (s *UserService) Delete(ctx context.Context, id uint64) error {
	ctx, span := s.span(ctx, "Delete", attribute.Int64("user.id", int64(id)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return err
	}
	u, err := repo.Users.FindActiveByID(ctx, s.DB, id)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	if !who.Owns(u.ID) {
		return ErrUserNotYours
	}
	trashed, err := repo.Users.TrashActive(ctx, s.DB, id)
	if err != nil {
		return err
	}
	if !trashed {
		return ErrUserNotFound
	}
	return nil
}

// Follow makes the caller follow followID. A trashed edge from an earlier
// unfollow is revived instead of inserting a second one.
func (s *UserService) Follow(ctx context.Context, followID uint64) error {
	ctx, span := s.span(ctx, "Follow", attribute.Int64("follow.id", int64(followID)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Target checks run first: an admin following themselves is refused
		// as an unknown target, only a regular user gets the self-follow
		// conflict.
		if err := s.followable(ctx, tx, who.ID, followID); err != nil {
			return err
		}
		if who.ID == followID {
			return ErrAlreadyFollowed
		}
		edge, err := repo.FindFollow(ctx, tx, who.ID, followID)
		if err != nil {
			return err
		}
		switch {
		case edge == nil:
			if _, err := repo.CreateFollow(ctx, tx, who.ID, followID); err != nil {
				if repo.IsUniqueViolation(err) {
					return ErrAlreadyFollowed
				}
				return err
			}
		case edge.Deleted:
			revived, err := repo.Revive(ctx, tx, edge)
			if err != nil {
				return err
			}
			if !revived {
				return ErrAlreadyFollowed
			}
		default:
			return ErrAlreadyFollowed
		}
		if err := repo.Increment(ctx, tx, repo.UserFollowers, followID); err != nil {
			return err
		}
		return repo.Increment(ctx, tx, repo.UserFollowing, who.ID)
	})
}

// Unfollow trashes the caller's active edge to unfollowID.
func (s *UserService) Unfollow(ctx context.Context, unfollowID uint64) error {
	ctx, span := s.span(ctx, "Unfollow", attribute.Int64("follow.id", int64(unfollowID)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.followable(ctx, tx, who.ID, unfollowID); err != nil {
			return err
		}
		if who.ID == unfollowID {
			return ErrAlreadyUnfollowed
		}
		edge, err := repo.FindFollow(ctx, tx, who.ID, unfollowID)
		if err != nil {
			return err
		}
		if edge == nil || edge.Deleted {
			return ErrAlreadyUnfollowed
		}
		trashed, err := repo.Follows.TrashActive(ctx, tx, edge.ID)
		if err != nil {
			return err
		}
		if !trashed {
			return ErrAlreadyUnfollowed
		}
		if err := repo.Decrement(ctx, tx, repo.UserFollowers, unfollowID); err != nil {
			return err
		}
		return repo.Decrement(ctx, tx, repo.UserFollowing, who.ID)
	})
}

// followable checks that the caller is active and the target is an active
// regular user.
func (s *UserService) followable(ctx context.Context, tx *gorm.DB, profileID, targetID uint64) error {
	me, err := repo.Users.FindActiveByID(ctx, tx, profileID)
	if err != nil {
		return err
	}
	if me == nil {
		return ErrUserNotFound
	}
	target, err := repo.Users.FindActiveByID(ctx, tx, targetID)
	if err != nil {
		return err
	}
	if target == nil || target.Role != actor.RoleUser {
		return ErrFollowTargetNotFound
	}
	return nil
}

// Profile returns the stored counters of an active account.
func (s *UserService) Profile(ctx context.Context, id uint64) (*Profile, error) {
	ctx, span := s.span(ctx, "Profile", attribute.Int64("user.id", int64(id)))
	defer span.End()

	u, err := s.active(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:             u.ID,
		FullName:       u.FullName,
		Username:       u.Username,
		Bio:            u.Bio,
		PostCount:      u.PostCount,
		FollowersCount: u.FollowersCount,
		FollowingCount: u.FollowingCount,
	}, nil
}

// Exists answers the internal existence probe. An absent user is reported as
// ErrUserNotFound rather than false.
func (s *UserService) Exists(ctx context.Context, id uint64) (bool, error) {
	if _, err := s.active(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// ShortInfo returns the id and username of an active account.
func (s *UserService) ShortInfo(ctx context.Context, id uint64) (*remote.UserShortInfo, error) {
	u, err := s.active(ctx, id)
	if err != nil {
		return nil, err
	}
	return &remote.UserShortInfo{ID: u.ID, Username: u.Username}, nil
}

// IncrementPostCount adds one to the post counter of an active account.
func (s *UserService) IncrementPostCount(ctx context.Context, id uint64) error {
	if _, err := s.active(ctx, id); err != nil {
		return err
	}
	return repo.Increment(ctx, s.DB, repo.UserPosts, id)
}

// DecrementPostCount subtracts one from the post counter of an active account.
func (s *UserService) DecrementPostCount(ctx context.Context, id uint64) error {
	if _, err := s.active(ctx, id); err != nil {
		return err
	}
	return repo.Decrement(ctx, s.DB, repo.UserPosts, id)
}

func (s *UserService) active(ctx context.Context, id uint64) (*domain.User, error) {
	u, err := repo.Users.FindActiveByID(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *UserService) identity(rawUsername, rawEmail string) (string, string, error) {
	username := fold(strings.TrimSpace(rawUsername))
	if n := utf8.RuneCountInString(username); n < 3 || n > 60 {
		return "", "", invalid("username must be between 3 and 60 characters")
	}
	email, err := s.normalizeEmail(rawEmail)
	if err != nil {
		return "", "", err
	}
	return username, email, nil
}

func (s *UserService) normalizeEmail(raw string) (string, error) {
	email := fold(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email must be valid")
	}
	return email, nil
}

// fold case-folds s. A Caser is stateful, so one is built per call.
func fold(s string) string { return cases.Fold().String(s) }

func (s *UserService) cost() int {
	if s.BcryptCost < bcrypt.MinCost {
		return bcrypt.DefaultCost
	}
	return s.BcryptCost
}

// CheckPassword reports whether password matches the stored hash of u.
func CheckPassword(u *domain.User, password string) bool {
	if u == nil {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// IsNotFound reports whether err is one of the not-found service errors.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
