package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"insiderr-api/internal/domain"
)

// Store реализует domain.Store в памяти процесса.
type Store struct {
	mu       sync.RWMutex
	posts    map[string]domain.Post
	comments map[string]domain.Comment
	votes    map[string]domain.Vote
	channels map[string]domain.Channel
	updates  map[string]domain.Update
	users    map[string]domain.User
	tokens   map[string]string
	flags    map[string]domain.Flag
	feedback map[string]domain.Feedback

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ domain.Store = (*Store)(nil)

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		posts:    make(map[string]domain.Post),
		comments: make(map[string]domain.Comment),
		votes:    make(map[string]domain.Vote),
		channels: make(map[string]domain.Channel),
		updates:  make(map[string]domain.Update),
		users:    make(map[string]domain.User),
		tokens:   make(map[string]string),
		flags:    make(map[string]domain.Flag),
		feedback: make(map[string]domain.Feedback),
		locks:    make(map[string]*sync.Mutex),
	}
}

func copyPost(p domain.Post) domain.Post {
	p.Channels = append([]string(nil), p.Channels...)
	ids := make(map[string]int, len(p.IdentityMap))
	for k, v := range p.IdentityMap {
		ids[k] = v
	}
	p.IdentityMap = ids
	return p
}

func (s *Store) postLock(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// CreatePost реализует domain.PostRepo.
func (s *Store) CreatePost(_ context.Context, post domain.Post) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.Key]; ok {
		return domain.Post{}, domain.ErrDuplicate
	}
	s.posts[post.Key] = copyPost(post)
	return copyPost(post), nil
}

// GetPost реализует domain.PostRepo.
func (s *Store) GetPost(_ context.Context, key string) (domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[key]
	if !ok {
		return domain.Post{}, domain.ErrNotFound
	}
	return copyPost(p), nil
}

// GetPosts реализует domain.PostRepo.
func (s *Store) GetPosts(_ context.Context, keys []string) ([]domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Post, 0, len(keys))
	for _, key := range keys {
		if p, ok := s.posts[key]; ok {
			res = append(res, copyPost(p))
		}
	}
	return res, nil
}

// ListPosts возвращает посты от новых к старым.
func (s *Store) ListPosts(_ context.Context, limit int) ([]domain.Post, error) {
	s.mu.RLock()
	res := make([]domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		res = append(res, copyPost(p))
	}
	s.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Created.Equal(res[j].Created) {
			return res[i].Created.After(res[j].Created)
		}
		return res[i].Key > res[j].Key
	})
	if limit <= 0 {
		limit = 100
	}
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// LockPost сериализует изменения одного поста через мьютекс его ключа.
func (s *Store) LockPost(ctx context.Context, key string, fn func(post *domain.Post) (bool, error)) error {
	l := s.postLock(key)
	l.Lock()
	defer l.Unlock()

	post, err := s.GetPost(ctx, key)
	if err != nil {
		return err
	}
	changed, err := fn(&post)
	if err != nil || !changed {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[key]; !ok {
		return domain.ErrNotFound
	}
	s.posts[key] = copyPost(post)
	return nil
}

// DeletePost реализует domain.PostRepo.
func (s *Store) DeletePost(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[key]; !ok {
		return domain.ErrNotFound
	}
	delete(s.posts, key)
	return nil
}

// CreateComment реализует domain.CommentRepo.
func (s *Store) CreateComment(_ context.Context, comment domain.Comment) (domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[comment.Key] = comment
	return comment, nil
}

// GetComment реализует domain.CommentRepo.
func (s *Store) GetComment(_ context.Context, key string) (domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[key]
	if !ok {
		return domain.Comment{}, domain.ErrNotFound
	}
	return c, nil
}

// ListComments реализует domain.CommentRepo.
func (s *Store) ListComments(_ context.Context, postKey string, until time.Time) ([]domain.Comment, error) {
	s.mu.RLock()
	res := make([]domain.Comment, 0)
	for _, c := range s.comments {
		if c.PostKey != postKey {
			continue
		}
		if !until.IsZero() && c.Created.After(until) {
			continue
		}
		res = append(res, c)
	}
	s.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Created.Equal(res[j].Created) {
			return res[i].Created.After(res[j].Created)
		}
		return res[i].Key > res[j].Key
	})
	return res, nil
}

// CountComments реализует domain.CommentRepo.
func (s *Store) CountComments(ctx context.Context, postKey string, until time.Time) (int, error) {
	comments, err := s.ListComments(ctx, postKey, until)
	return len(comments), err
}

// DeleteCommentsByPost реализует domain.CommentRepo.
func (s *Store) DeleteCommentsByPost(_ context.Context, postKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, c := range s.comments {
		if c.PostKey == postKey {
			delete(s.comments, key)
		}
	}
	return nil
}

// InsertVote реализует domain.VoteRepo.
func (s *Store) InsertVote(_ context.Context, vote domain.Vote) (domain.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[vote.Key] = vote
	return vote, nil
}

// GetVote реализует domain.VoteRepo.
func (s *Store) GetVote(_ context.Context, key string) (domain.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[key]
	if !ok {
		return domain.Vote{}, domain.ErrNotFound
	}
	return v, nil
}

// DeleteVotes реализует domain.VoteRepo.
func (s *Store) DeleteVotes(_ context.Context, entityKey string, pseudonym int, dir domain.Direction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, v := range s.votes {
		if v.EntityKey == entityKey && v.Pseudonym == pseudonym && v.Direction == dir {
			delete(s.votes, key)
			n++
		}
	}
	return n, nil
}

// CountVotes реализует domain.VoteRepo.
func (s *Store) CountVotes(_ context.Context, entityKey string, dir domain.Direction) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, v := range s.votes {
		if v.EntityKey == entityKey && v.Direction == dir {
			n++
		}
	}
	return n, nil
}

// ListVoteKeys реализует domain.VoteRepo.
func (s *Store) ListVoteKeys(_ context.Context, entityKey string, pseudonym int, dir domain.Direction) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0)
	for key, v := range s.votes {
		if v.EntityKey == entityKey && v.Pseudonym == pseudonym && v.Direction == dir {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

// DeleteVoteKeys реализует domain.VoteRepo.
func (s *Store) DeleteVoteKeys(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.votes, key)
	}
	return nil
}

// DeleteVotesByPost реализует domain.VoteRepo.
func (s *Store) DeleteVotesByPost(_ context.Context, postKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, v := range s.votes {
		if v.PostKey == postKey {
			delete(s.votes, key)
		}
	}
	return nil
}

// CreateChannel реализует domain.ChannelRepo.
func (s *Store) CreateChannel(_ context.Context, title string) (domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		if ch.Title == title {
			return domain.Channel{}, domain.ErrDuplicate
		}
	}
	ch := domain.Channel{Key: domain.NewKey(), Title: title}
	s.channels[ch.Key] = ch
	return ch, nil
}

// GetChannel реализует domain.ChannelRepo.
func (s *Store) GetChannel(_ context.Context, key string) (domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[key]
	if !ok {
		return domain.Channel{}, domain.ErrNotFound
	}
	return ch, nil
}

// GetChannelByTitle реализует domain.ChannelRepo.
func (s *Store) GetChannelByTitle(_ context.Context, title string) (domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.channels {
		if ch.Title == title {
			return ch, nil
		}
	}
	return domain.Channel{}, domain.ErrNotFound
}

// ListChannels реализует domain.ChannelRepo.
func (s *Store) ListChannels(_ context.Context) ([]domain.Channel, error) {
	s.mu.RLock()
	res := make([]domain.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		res = append(res, ch)
	}
	s.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].Title < res[j].Title })
	return res, nil
}

// InsertUpdate реализует domain.UpdateRepo.
func (s *Store) InsertUpdate(_ context.Context, update domain.Update) (domain.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[update.Key] = update
	return update, nil
}

func updateLess(a, b domain.Update) bool {
	if !a.Created.Equal(b.Created) {
		return a.Created.Before(b.Created)
	}
	return a.Key < b.Key
}

func matchesBound(u domain.Update, q domain.UpdateQuery) bool {
	if u.Created.After(q.Until) {
		return false
	}
	bound := domain.Update{Created: q.Since, Key: q.AfterKey}
	if q.Forward {
		if q.AfterKey == "" {
			return !u.Created.Before(q.Since)
		}
		return updateLess(bound, u)
	}
	if q.AfterKey == "" {
		return !u.Created.After(q.Since)
	}
	return updateLess(u, bound)
}

// ScanUpdates реализует domain.UpdateRepo.
func (s *Store) ScanUpdates(_ context.Context, q domain.UpdateQuery) ([]domain.Update, error) {
	s.mu.RLock()
	res := make([]domain.Update, 0)
	for _, u := range s.updates {
		if u.ChannelKey == q.ChannelKey && matchesBound(u, q) {
			res = append(res, u)
		}
	}
	s.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		if q.Forward {
			return updateLess(res[i], res[j])
		}
		return updateLess(res[j], res[i])
	})
	if q.Limit > 0 && len(res) > q.Limit {
		res = res[:q.Limit]
	}
	return res, nil
}

// UpdatesForPosts реализует domain.UpdateRepo.
func (s *Store) UpdatesForPosts(_ context.Context, postKeys []string, since, until time.Time, kinds []string) ([]domain.Update, error) {
	wantPost := make(map[string]struct{}, len(postKeys))
	for _, k := range postKeys {
		wantPost[k] = struct{}{}
	}
	wantKind := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		wantKind[strings.TrimSpace(k)] = struct{}{}
	}
	s.mu.RLock()
	res := make([]domain.Update, 0)
	for _, u := range s.updates {
		if _, ok := wantPost[u.PostKey]; !ok || u.PostKey == "" {
			continue
		}
		if u.Created.Before(since) || u.Created.After(until) {
			continue
		}
		if len(wantKind) > 0 {
			if _, ok := wantKind[u.WhatKind]; !ok {
				continue
			}
		}
		res = append(res, u)
	}
	s.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return updateLess(res[j], res[i]) })
	return res, nil
}

// DeleteUpdatesByPost реализует domain.UpdateRepo.
func (s *Store) DeleteUpdatesByPost(_ context.Context, postKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, u := range s.updates {
		if u.PostKey == postKey {
			delete(s.updates, key)
		}
	}
	return nil
}

// DeleteUpdatesBefore реализует domain.UpdateRepo.
func (s *Store) DeleteUpdatesBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, u := range s.updates {
		if u.Created.Before(before) {
			delete(s.updates, key)
			n++
		}
	}
	return n, nil
}

// CreateUser реализует domain.UserRepo.
func (s *Store) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PubKeyHash == user.PubKeyHash {
			return domain.User{}, domain.ErrDuplicate
		}
	}
	if _, ok := s.users[user.ID]; ok {
		return domain.User{}, domain.ErrDuplicate
	}
	s.users[user.ID] = user
	return user, nil
}

// GetUser реализует domain.UserRepo.
func (s *Store) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

// GetUserByPubKeyHash реализует domain.UserRepo.
func (s *Store) GetUserByPubKeyHash(_ context.Context, hash string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.PubKeyHash == hash {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

// ReplaceToken реализует domain.TokenRepo.
func (s *Store) ReplaceToken(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return domain.ErrNotFound
	}
	for t, owner := range s.tokens {
		if owner == userID {
			delete(s.tokens, t)
		}
	}
	s.tokens[token] = userID
	return nil
}

// UserByToken реализует domain.TokenRepo.
func (s *Store) UserByToken(_ context.Context, token string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

// CreateFlag реализует domain.ReportRepo.
func (s *Store) CreateFlag(_ context.Context, flag domain.Flag) (domain.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[flag.Key] = flag
	return flag, nil
}

// ListFlags реализует domain.ReportRepo.
func (s *Store) ListFlags(_ context.Context, entityKey string) ([]domain.Flag, error) {
	s.mu.RLock()
	res := make([]domain.Flag, 0)
	for _, f := range s.flags {
		if f.EntityKey == entityKey {
			res = append(res, f)
		}
	}
	s.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Created.Equal(res[j].Created) {
			return res[i].Created.After(res[j].Created)
		}
		return res[i].Key > res[j].Key
	})
	return res, nil
}

// DeleteFlagsByPost реализует domain.ReportRepo.
func (s *Store) DeleteFlagsByPost(_ context.Context, postKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, f := range s.flags {
		if f.PostKey == postKey {
			delete(s.flags, key)
		}
	}
	return nil
}

// CreateFeedback реализует domain.ReportRepo.
func (s *Store) CreateFeedback(_ context.Context, fb domain.Feedback) (domain.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback[fb.Key] = fb
	return fb, nil
}

// ListFeedback реализует domain.ReportRepo.
func (s *Store) ListFeedback(_ context.Context, limit int) ([]domain.Feedback, error) {
	s.mu.RLock()
	res := make([]domain.Feedback, 0, len(s.feedback))
	for _, fb := range s.feedback {
		res = append(res, fb)
	}
	s.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Created.Equal(res[j].Created) {
			return res[i].Created.After(res[j].Created)
		}
		return res[i].Key > res[j].Key
	})
	if limit <= 0 {
		limit = 100
	}
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
