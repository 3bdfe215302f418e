// Package memory implements the primary-store interface in process memory.
// It backs tests and makes the daemon runnable without a forum deployment.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/forumkit/searchsync/internal/forum"
)

// Store is an in-memory primary store. The zero value is not usable; call
// New.
type Store struct {
	mu      sync.RWMutex
	topics  map[int64]forum.Topic
	posts   map[int64]forum.Post
	sets    map[string][]int64
	objects map[string]map[string]string

	// RangeErr, when set, is returned by every SortedSetRange call. Tests
	// use it to simulate iteration failures.
	RangeErr error

	// RangeHook, when set, runs at the start of every SortedSetRange call,
	// before the store lock is taken. Tests use it to pause or observe
	// rebuild iteration.
	RangeHook func(set string)
}

func New() *Store {
	return &Store{
		topics:  make(map[int64]forum.Topic),
		posts:   make(map[int64]forum.Post),
		sets:    make(map[string][]int64),
		objects: make(map[string]map[string]string),
	}
}

// AddTopic stores a topic and registers it in the topic ordered set.
func (s *Store) AddTopic(t forum.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.topics[t.ID]; !exists {
		s.sets[forum.TopicSet] = append(s.sets[forum.TopicSet], t.ID)
	}
	s.topics[t.ID] = t
}

// AddPost stores a post and registers it in the post ordered set and its
// topic's child set. A topic's main post is tracked on the topic record, so
// it stays out of the child set (add the topic first for that to apply).
func (s *Store) AddPost(p forum.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.posts[p.ID]; !exists {
		s.sets[forum.PostSet] = append(s.sets[forum.PostSet], p.ID)
		if t, ok := s.topics[p.TopicID]; !ok || t.MainPostID != p.ID {
			childSet := forum.TopicPostsSet(p.TopicID)
			s.sets[childSet] = append(s.sets[childSet], p.ID)
		}
	}
	s.posts[p.ID] = p
}

// MovePost reassigns a post to another topic, fixing up both child sets.
func (s *Store) MovePost(id, topicID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok || p.TopicID == topicID {
		return
	}
	oldSet := forum.TopicPostsSet(p.TopicID)
	s.sets[oldSet] = removeID(s.sets[oldSet], id)
	newSet := forum.TopicPostsSet(topicID)
	s.sets[newSet] = append(s.sets[newSet], id)
	p.TopicID = topicID
	s.posts[id] = p
}

// RemoveTopic deletes a topic record entirely, as a purge would.
func (s *Store) RemoveTopic(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.topics, id)
	s.sets[forum.TopicSet] = removeID(s.sets[forum.TopicSet], id)
}

// RemovePost deletes a post record entirely, as a purge would.
func (s *Store) RemovePost(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.posts[id]; ok {
		childSet := forum.TopicPostsSet(p.TopicID)
		s.sets[childSet] = removeID(s.sets[childSet], id)
	}
	delete(s.posts, id)
	s.sets[forum.PostSet] = removeID(s.sets[forum.PostSet], id)
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (s *Store) TopicFields(ctx context.Context, ids []int64) (map[int64]forum.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topics := make(map[int64]forum.Topic, len(ids))
	for _, id := range ids {
		if t, ok := s.topics[id]; ok {
			topics[id] = t
		}
	}
	return topics, nil
}

func (s *Store) PostFields(ctx context.Context, ids []int64) (map[int64]forum.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posts := make(map[int64]forum.Post, len(ids))
	for _, id := range ids {
		if p, ok := s.posts[id]; ok {
			posts[id] = p
		}
	}
	return posts, nil
}

func (s *Store) SortedSetRange(ctx context.Context, set string, start, stop int64) ([]int64, error) {
	if s.RangeHook != nil {
		s.RangeHook(set)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.RangeErr != nil {
		return nil, s.RangeErr
	}
	members := s.sets[set]
	if start < 0 {
		start = 0
	}
	if start >= int64(len(members)) {
		return nil, nil
	}
	end := stop
	if end < 0 || end >= int64(len(members)) {
		end = int64(len(members)) - 1
	}
	out := make([]int64, 0, end-start+1)
	out = append(out, members[start:end+1]...)
	return out, nil
}

func (s *Store) SortedSetCard(ctx context.Context, set string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sets[set])), nil
}

func (s *Store) GetObject(ctx context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields := make(map[string]string, len(s.objects[key]))
	for f, v := range s.objects[key] {
		fields[f] = v
	}
	return fields, nil
}

func (s *Store) SetObject(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.objects[key]
	if obj == nil {
		obj = make(map[string]string, len(fields))
		s.objects[key] = obj
	}
	for f, v := range fields {
		obj[f] = v
	}
	return nil
}

func (s *Store) IncrObjectField(ctx context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.objects[key]
	if obj == nil {
		obj = make(map[string]string)
		s.objects[key] = obj
	}
	current, _ := strconv.ParseInt(obj[field], 10, 64)
	current += delta
	obj[field] = strconv.FormatInt(current, 10)
	return current, nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close(ctx context.Context) error { return nil }
