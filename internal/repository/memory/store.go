// Package memory provides process-local repository implementations used when
// no database is configured and by tests. All repositories vended by one Store
// share a single lock so cascades and conditional updates are atomic.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/blog-service/internal/domain"
	"github.com/spec-kit/blog-service/internal/repository"
)

// Store holds accounts, verification tokens and posts.
type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	users  map[string]domain.User
	tokens map[string]domain.VerificationToken // by token hash
	posts  map[string]domain.Post
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		now:    time.Now,
		users:  make(map[string]domain.User),
		tokens: make(map[string]domain.VerificationToken),
		posts:  make(map[string]domain.Post),
	}
}

// Users returns the account repository.
func (s *Store) Users() repository.UserRepository { return userRepo{s} }

// VerificationTokens returns the verification token repository.
func (s *Store) VerificationTokens() repository.VerificationTokenRepository { return tokenRepo{s} }

// Posts returns the post repository.
func (s *Store) Posts() repository.PostRepository { return postRepo{s} }

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	email := domain.NormalizeEmail(user.Email)
	if s.emailTakenLocked(email, "") {
		return repository.ErrDuplicateEmail
	}
	now := s.now()
	user.ID = uuid.NewString()
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	email = domain.NormalizeEmail(email)
	for _, user := range s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) List(_ context.Context) ([]domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (r userRepo) UpdateProfile(_ context.Context, id string, changes repository.ProfileChanges) (*domain.User, error) {
	s := r.s
	return s.mutateUser(id, func(u *domain.User) error {
		if changes.Email != nil {
			email := domain.NormalizeEmail(*changes.Email)
			if s.emailTakenLocked(email, id) {
				return repository.ErrDuplicateEmail
			}
			u.Email = email
			u.EmailVerified = false
			s.dropTokensLocked(id)
		}
		if changes.Name != nil {
			u.Name = *changes.Name
		}
		return nil
	})
}

func (r userRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	_, err := r.s.mutateUser(id, func(u *domain.User) error {
		u.PasswordHash = passwordHash
		return nil
	})
	return err
}

func (r userRepo) UpdateRole(_ context.Context, id string, role domain.Role) (*domain.User, error) {
	return r.s.mutateUser(id, func(u *domain.User) error {
		u.Role = role
		return nil
	})
}

func (r userRepo) Delete(_ context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.users, id)
	s.dropTokensLocked(id)
	for postID, post := range s.posts {
		if post.AuthorID == id {
			delete(s.posts, postID)
		}
	}
	return nil
}

func (s *Store) mutateUser(id string, fn func(*domain.User) error) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := fn(&user); err != nil {
		return nil, err
	}
	user.UpdatedAt = s.now()
	s.users[id] = user
	return &user, nil
}

func (s *Store) dropTokensLocked(userID string) {
	for hash, token := range s.tokens {
		if token.UserID == userID {
			delete(s.tokens, hash)
		}
	}
}

func (s *Store) emailTakenLocked(email, exceptID string) bool {
	for id, user := range s.users {
		if id != exceptID && user.Email == email {
			return true
		}
	}
	return false
}

type tokenRepo struct{ s *Store }

func (r tokenRepo) Replace(_ context.Context, token *domain.VerificationToken) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[token.UserID]; !ok {
		return fmt.Errorf("verification token owner: %w", repository.ErrNotFound)
	}
	s.dropTokensLocked(token.UserID)
	token.ID = uuid.NewString()
	token.CreatedAt = s.now()
	token.ConsumedAt = nil
	s.tokens[token.TokenHash] = *token
	return nil
}

func (r tokenRepo) Redeem(_ context.Context, tokenHash string, now time.Time) (string, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[tokenHash]
	if !ok {
		return "", repository.ErrNotFound
	}
	if token.Consumed() {
		return "", repository.ErrTokenConsumed
	}
	if token.Expired(now) {
		return "", repository.ErrTokenExpired
	}
	user, ok := s.users[token.UserID]
	if !ok {
		return "", repository.ErrNotFound
	}

	consumedAt := now
	token.ConsumedAt = &consumedAt
	s.tokens[tokenHash] = token
	user.EmailVerified = true
	user.UpdatedAt = s.now()
	s.users[user.ID] = user
	return user.ID, nil
}

type postRepo struct{ s *Store }

func (r postRepo) Create(_ context.Context, post *domain.Post) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[post.AuthorID]; !ok {
		return fmt.Errorf("post author: %w", repository.ErrNotFound)
	}
	now := s.now()
	post.ID = uuid.NewString()
	post.CreatedAt = now
	post.UpdatedAt = now
	s.posts[post.ID] = *post
	return nil
}

func (r postRepo) Update(_ context.Context, post *domain.Post) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.posts[post.ID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Title = post.Title
	existing.Content = post.Content
	existing.UpdatedAt = s.now()
	s.posts[post.ID] = existing
	post.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r postRepo) Delete(_ context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (r postRepo) GetByID(_ context.Context, id string) (*domain.PostWithAuthor, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	joined := s.joinLocked(post)
	return &joined, nil
}

func (r postRepo) List(_ context.Context, filter repository.PostFilter) ([]domain.PostWithAuthor, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	filter = filter.Normalized()
	var search string
	if filter.SearchTerm != nil {
		search = strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
	}

	matched := make([]domain.PostWithAuthor, 0)
	for _, post := range s.posts {
		if filter.AuthorID != nil && post.AuthorID != *filter.AuthorID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(post.Title), search) &&
			!strings.Contains(strings.ToLower(post.Content), search) {
			continue
		}
		matched = append(matched, s.joinLocked(post))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []domain.PostWithAuthor{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

func (s *Store) joinLocked(post domain.Post) domain.PostWithAuthor {
	author := s.users[post.AuthorID]
	return domain.PostWithAuthor{Post: post, AuthorName: author.Name, AuthorEmail: author.Email}
}
