package forum

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/forumkit/searchsync/pkg/errors"
)

// EventKind names a document lifecycle mutation announced by the forum.
type EventKind string

const (
	EventPostCreated  EventKind = "post.created"
	EventPostEdited   EventKind = "post.edited"
	EventPostRestored EventKind = "post.restored"
	EventPostDeleted  EventKind = "post.deleted"
	EventPostPurged   EventKind = "post.purged"
	EventPostMoved    EventKind = "post.moved"

	EventTopicCreated  EventKind = "topic.created"
	EventTopicEdited   EventKind = "topic.edited"
	EventTopicRestored EventKind = "topic.restored"
	EventTopicDeleted  EventKind = "topic.deleted"
	EventTopicPurged   EventKind = "topic.purged"
	EventTopicMoved    EventKind = "topic.moved"
)

// postEvent reports whether k concerns a post.
func (k EventKind) postEvent() bool {
	return strings.HasPrefix(string(k), "post.")
}

// topicEvent reports whether k concerns a topic.
func (k EventKind) topicEvent() bool {
	return strings.HasPrefix(string(k), "topic.")
}

var knownEventKinds = map[EventKind]struct{}{
	EventPostCreated: {}, EventPostEdited: {}, EventPostRestored: {},
	EventPostDeleted: {}, EventPostPurged: {}, EventPostMoved: {},
	EventTopicCreated: {}, EventTopicEdited: {}, EventTopicRestored: {},
	EventTopicDeleted: {}, EventTopicPurged: {}, EventTopicMoved: {},
}

// Event is the mutation-event envelope carried on the forum.events stream.
// Exactly one of Post/Topic is set, matching the kind. Create/edit events
// carry the full document inline so the router does not have to read the
// primary store for the common case.
type Event struct {
	ID    string    `json:"id"`
	Kind  EventKind `json:"kind"`
	At    time.Time `json:"at"`
	Topic *Topic    `json:"topic,omitempty"`
	Post  *Post     `json:"post,omitempty"`
}

// Key returns the Kafka partition key. Events for the same document share a
// key, so they stay in one partition and arrive in causal order.
func (e Event) Key() string {
	if e.Post != nil {
		return fmt.Sprintf("post:%d", e.Post.ID)
	}
	if e.Topic != nil {
		return fmt.Sprintf("topic:%d", e.Topic.ID)
	}
	return string(e.Kind)
}

// Validate rejects structurally unusable events before any side effect.
func (e Event) Validate() error {
	if _, ok := knownEventKinds[e.Kind]; !ok {
		return fmt.Errorf("unknown event kind %q: %w", e.Kind, apperrors.ErrInvalidInput)
	}
	switch {
	case e.Kind.postEvent():
		if e.Post == nil {
			return fmt.Errorf("%s event without post payload: %w", e.Kind, apperrors.ErrInvalidInput)
		}
		if e.Post.ID <= 0 {
			return fmt.Errorf("%s event with post id %d: %w", e.Kind, e.Post.ID, apperrors.ErrInvalidInput)
		}
	case e.Kind.topicEvent():
		if e.Topic == nil {
			return fmt.Errorf("%s event without topic payload: %w", e.Kind, apperrors.ErrInvalidInput)
		}
		if e.Topic.ID <= 0 {
			return fmt.Errorf("%s event with topic id %d: %w", e.Kind, e.Topic.ID, apperrors.ErrInvalidInput)
		}
	}
	return nil
}
