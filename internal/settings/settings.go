// Package settings manages the shared runtime settings record: index limits,
// excluded categories, index language, progress counters, and the working
// flag. The record is persisted as a single object in the primary store and
// every save is broadcast so cooperating processes converge without
// restarting.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/internal/normalize"
	"github.com/forumkit/searchsync/internal/pubsub"
	"github.com/forumkit/searchsync/internal/store"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
	"github.com/forumkit/searchsync/pkg/logger"
)

// Key is the object key the settings record is persisted under.
const Key = "searchsettings"

// Default limits applied when no setting has been saved yet.
const (
	DefaultTopicLimit = 500
	DefaultPostLimit  = 500
)

// Persisted field names. Values are stored as strings; excludeCategories
// holds a JSON array.
const (
	fieldTopicLimit    = "topicLimit"
	fieldPostLimit     = "postLimit"
	fieldExcluded      = "excludeCategories"
	fieldLanguage      = "indexLanguage"
	fieldTopicsIndexed = "topicsIndexed"
	fieldPostsIndexed  = "postsIndexed"
	fieldWorking       = "working"
)

// Settings is a point-in-time snapshot of the shared record. Counters carry
// raw persisted values; display clamping happens in the progress reporter.
type Settings struct {
	TopicLimit         int
	PostLimit          int
	ExcludedCategories []int64
	Language           string
	TopicsIndexed      int64
	PostsIndexed       int64
	Working            bool
}

// Defaults returns the record assumed before any save: both limits at 500,
// no exclusions, English, zero counters, not working.
func Defaults() Settings {
	return Settings{
		TopicLimit: DefaultTopicLimit,
		PostLimit:  DefaultPostLimit,
		Language:   normalize.DefaultLanguage,
	}
}

// LimitFor returns the configured result limit for kind.
func (s Settings) LimitFor(kind forum.Kind) int {
	if kind == forum.KindTopic {
		return s.TopicLimit
	}
	return s.PostLimit
}

// CounterFor returns the raw indexed-document counter for kind.
func (s Settings) CounterFor(kind forum.Kind) int64 {
	if kind == forum.KindTopic {
		return s.TopicsIndexed
	}
	return s.PostsIndexed
}

// Excludes reports whether documents in categoryID are kept out of the
// index. Exclusion lists are admin-curated and small.
func (s Settings) Excludes(categoryID int64) bool {
	for _, id := range s.ExcludedCategories {
		if id == categoryID {
			return true
		}
	}
	return false
}

// Partial carries a save request. Empty string fields and a nil category
// slice mean "leave unchanged"; an empty non-nil slice clears the
// exclusion list. Limits arrive as strings because they originate from
// form input.
type Partial struct {
	TopicLimit         string
	PostLimit          string
	ExcludedCategories []int64
	Language           string
}

// wireConfig is the broadcast form of the full record.
type wireConfig struct {
	TopicLimit         int     `json:"topicLimit"`
	PostLimit          int     `json:"postLimit"`
	ExcludedCategories []int64 `json:"excludeCategories"`
	Language           string  `json:"indexLanguage"`
	TopicsIndexed      int64   `json:"topicsIndexed"`
	PostsIndexed       int64   `json:"postsIndexed"`
	Working            bool    `json:"working"`
}

// broadcast wraps a wireConfig with the identity of the publishing process
// so self-delivered messages can be skipped; the local cache is already
// current when they arrive.
type broadcast struct {
	Origin string     `json:"origin"`
	Config wireConfig `json:"config"`
}

// Manager owns the cached snapshot and all reads and writes of the
// persisted record. Register update callbacks before calling Watch.
type Manager struct {
	store   store.Store
	bus     pubsub.Broadcaster
	channel string
	origin  string
	logger  *slog.Logger

	mu      sync.RWMutex
	current Settings

	onUpdate []func(Settings)
}

// NewManager returns a Manager serving Defaults until Load runs.
func NewManager(st store.Store, bus pubsub.Broadcaster, channel string) *Manager {
	return &Manager{
		store:   st,
		bus:     bus,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger.WithComponent("settings"),
		current: Defaults(),
	}
}

// Load reads the persisted record into the cache. Missing fields take
// defaults; malformed numeric fields fall back to defaults; a malformed
// exclusion list is treated as empty and logged rather than failing the
// load.
func (m *Manager) Load(ctx context.Context) error {
	fields, err := m.store.GetObject(ctx, Key)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrConfigLoad, err)
	}

	s := Defaults()
	s.TopicLimit = parsePositive(fields[fieldTopicLimit], DefaultTopicLimit)
	s.PostLimit = parsePositive(fields[fieldPostLimit], DefaultPostLimit)
	s.TopicsIndexed = parseCounter(fields[fieldTopicsIndexed])
	s.PostsIndexed = parseCounter(fields[fieldPostsIndexed])
	s.Working = fields[fieldWorking] == "1"
	if lang := fields[fieldLanguage]; lang != "" {
		s.Language = lang
	}
	if raw := fields[fieldExcluded]; raw != "" {
		excluded, ok := parseExcluded(raw)
		if !ok {
			m.logger.Warn("ignoring malformed excluded-category list", "raw", raw)
		}
		s.ExcludedCategories = excluded
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return nil
}

// Current returns a copy of the cached snapshot.
func (m *Manager) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.current
	s.ExcludedCategories = append([]int64(nil), m.current.ExcludedCategories...)
	return s
}

// OnUpdate registers fn to run after a remote save is applied to the
// cache. Not safe to call once Watch has started.
func (m *Manager) OnUpdate(fn func(Settings)) {
	m.onUpdate = append(m.onUpdate, fn)
}

// Watch subscribes to the settings channel. Remote saves replace the
// cached record field by field and then trigger the update callbacks.
func (m *Manager) Watch(ctx context.Context) error {
	return m.bus.Subscribe(ctx, m.channel, m.handleBroadcast)
}

// Save validates p, merges the provided fields into the persisted record,
// updates the cache, and broadcasts the full resulting record.
func (m *Manager) Save(ctx context.Context, p Partial) error {
	persist := make(map[string]string)

	if p.TopicLimit != "" {
		n, err := strconv.Atoi(p.TopicLimit)
		if err != nil || n <= 0 {
			return fmt.Errorf("topic limit %q is not a positive integer: %w", p.TopicLimit, apperrors.ErrInvalidInput)
		}
		persist[fieldTopicLimit] = strconv.Itoa(n)
	}
	if p.PostLimit != "" {
		n, err := strconv.Atoi(p.PostLimit)
		if err != nil || n <= 0 {
			return fmt.Errorf("post limit %q is not a positive integer: %w", p.PostLimit, apperrors.ErrInvalidInput)
		}
		persist[fieldPostLimit] = strconv.Itoa(n)
	}
	if p.Language != "" {
		if !normalize.Supported(p.Language) {
			return fmt.Errorf("unsupported index language %q: %w", p.Language, apperrors.ErrInvalidInput)
		}
		persist[fieldLanguage] = p.Language
	}
	if p.ExcludedCategories != nil {
		encoded, err := json.Marshal(p.ExcludedCategories)
		if err != nil {
			return fmt.Errorf("encoding excluded categories: %w", err)
		}
		persist[fieldExcluded] = string(encoded)
	}
	if len(persist) == 0 {
		return nil
	}

	if err := m.store.SetObject(ctx, Key, persist); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}

	m.mu.Lock()
	if v, ok := persist[fieldTopicLimit]; ok {
		m.current.TopicLimit, _ = strconv.Atoi(v)
	}
	if v, ok := persist[fieldPostLimit]; ok {
		m.current.PostLimit, _ = strconv.Atoi(v)
	}
	if _, ok := persist[fieldLanguage]; ok {
		m.current.Language = p.Language
	}
	if _, ok := persist[fieldExcluded]; ok {
		m.current.ExcludedCategories = append([]int64(nil), p.ExcludedCategories...)
	}
	snap := m.current
	m.mu.Unlock()

	payload, err := json.Marshal(broadcast{Origin: m.origin, Config: toWire(snap)})
	if err != nil {
		return fmt.Errorf("encoding settings broadcast: %w", err)
	}
	if err := m.bus.Publish(ctx, m.channel, payload); err != nil {
		return fmt.Errorf("broadcasting settings: %w", err)
	}
	return nil
}

// IncrCounter adds delta to the indexed-document counter for kind and
// returns the new persisted value.
func (m *Manager) IncrCounter(ctx context.Context, kind forum.Kind, delta int64) (int64, error) {
	field := fieldPostsIndexed
	if kind == forum.KindTopic {
		field = fieldTopicsIndexed
	}
	v, err := m.store.IncrObjectField(ctx, Key, field, delta)
	if err != nil {
		return 0, fmt.Errorf("updating %s: %w", field, err)
	}
	m.mu.Lock()
	if kind == forum.KindTopic {
		m.current.TopicsIndexed = v
	} else {
		m.current.PostsIndexed = v
	}
	m.mu.Unlock()
	return v, nil
}

// SetWorking persists the working flag.
func (m *Manager) SetWorking(ctx context.Context, working bool) error {
	v := "0"
	if working {
		v = "1"
	}
	if err := m.store.SetObject(ctx, Key, map[string]string{fieldWorking: v}); err != nil {
		return fmt.Errorf("persisting working flag: %w", err)
	}
	m.mu.Lock()
	m.current.Working = working
	m.mu.Unlock()
	return nil
}

// ResetCounters sets both indexed-document counters to exactly zero.
func (m *Manager) ResetCounters(ctx context.Context) error {
	err := m.store.SetObject(ctx, Key, map[string]string{
		fieldTopicsIndexed: "0",
		fieldPostsIndexed:  "0",
	})
	if err != nil {
		return fmt.Errorf("resetting counters: %w", err)
	}
	m.mu.Lock()
	m.current.TopicsIndexed = 0
	m.current.PostsIndexed = 0
	m.mu.Unlock()
	return nil
}

// Counters re-reads the persisted counters and working flag. Progress polls
// go through here so rebuild activity in other processes shows up without
// waiting for a broadcast.
func (m *Manager) Counters(ctx context.Context) (topics, posts int64, working bool, err error) {
	fields, err := m.store.GetObject(ctx, Key)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: %w", apperrors.ErrConfigLoad, err)
	}
	topics = parseCounter(fields[fieldTopicsIndexed])
	posts = parseCounter(fields[fieldPostsIndexed])
	working = fields[fieldWorking] == "1"

	m.mu.Lock()
	m.current.TopicsIndexed = topics
	m.current.PostsIndexed = posts
	m.current.Working = working
	m.mu.Unlock()
	return topics, posts, working, nil
}

func (m *Manager) handleBroadcast(payload []byte) {
	var b broadcast
	if err := json.Unmarshal(payload, &b); err != nil {
		m.logger.Warn("dropping malformed settings broadcast", "error", err)
		return
	}
	if b.Origin == m.origin {
		return
	}

	m.mu.Lock()
	m.current = Settings{
		TopicLimit:         b.Config.TopicLimit,
		PostLimit:          b.Config.PostLimit,
		ExcludedCategories: b.Config.ExcludedCategories,
		Language:           b.Config.Language,
		TopicsIndexed:      b.Config.TopicsIndexed,
		PostsIndexed:       b.Config.PostsIndexed,
		Working:            b.Config.Working,
	}
	snap := m.current
	m.mu.Unlock()

	m.logger.Info("settings reloaded from broadcast",
		"topic_limit", snap.TopicLimit,
		"post_limit", snap.PostLimit,
		"language", snap.Language,
		"excluded", len(snap.ExcludedCategories))
	for _, fn := range m.onUpdate {
		fn(snap)
	}
}

func toWire(s Settings) wireConfig {
	return wireConfig{
		TopicLimit:         s.TopicLimit,
		PostLimit:          s.PostLimit,
		ExcludedCategories: s.ExcludedCategories,
		Language:           s.Language,
		TopicsIndexed:      s.TopicsIndexed,
		PostsIndexed:       s.PostsIndexed,
		Working:            s.Working,
	}
}

func parsePositive(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func parseCounter(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseExcluded accepts both numeric and string-encoded ID arrays. The
// forum's admin UI has stored both shapes over time.
func parseExcluded(raw string) ([]int64, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, false
	}
	ids := make([]int64, 0, len(elems))
	for _, elem := range elems {
		var n int64
		if err := json.Unmarshal(elem, &n); err == nil {
			ids = append(ids, n)
			continue
		}
		var s string
		if err := json.Unmarshal(elem, &s); err == nil {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				ids = append(ids, n)
				continue
			}
		}
		return nil, false
	}
	return ids, true
}
