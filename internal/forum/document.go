// Package forum defines the document model shared by the store, the index
// engine and the synchronizer: topics, posts, their kind-neutral index
// projection, and the ordered-set keys the primary store maintains.
package forum

import "fmt"

// Kind discriminates the two document kinds.
type Kind string

const (
	KindTopic Kind = "topic"
	KindPost  Kind = "post"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindTopic || k == KindPost
}

// Ordered identifier sets maintained by the forum in the primary store.
// Scores are creation timestamps, so iteration order is stable.
const (
	TopicSet = "topics:tid"
	PostSet  = "posts:pid"
)

// TopicPostsSet names the per-topic ordered set of child post IDs.
func TopicPostsSet(topicID int64) string {
	return fmt.Sprintf("tid:%d:posts", topicID)
}

// Topic is a thread starter. Title is its searchable text.
type Topic struct {
	ID         int64  `json:"tid"`
	CategoryID int64  `json:"cid"`
	AuthorID   int64  `json:"uid"`
	MainPostID int64  `json:"mainPid"`
	Deleted    bool   `json:"deleted"`
	Title      string `json:"title"`
}

// Post is a reply within a topic. Content is its searchable text. Posts
// carry no category of their own; they inherit the parent topic's.
type Post struct {
	ID       int64  `json:"pid"`
	TopicID  int64  `json:"tid"`
	AuthorID int64  `json:"uid"`
	Deleted  bool   `json:"deleted"`
	Content  string `json:"content"`
}

// Document is the kind-neutral projection the synchronizer filters,
// normalizes and hands to the index engine. CategoryID is always the
// effective category: a topic's own, or for posts the parent topic's.
type Document struct {
	ID         int64
	Kind       Kind
	CategoryID int64
	AuthorID   int64
	Deleted    bool
	Text       string
}

// Document returns the topic's index projection.
func (t Topic) Document() Document {
	return Document{
		ID:         t.ID,
		Kind:       KindTopic,
		CategoryID: t.CategoryID,
		AuthorID:   t.AuthorID,
		Deleted:    t.Deleted,
		Text:       t.Title,
	}
}

// Document returns the post's index projection under the given effective
// category (the parent topic's).
func (p Post) Document(categoryID int64) Document {
	return Document{
		ID:         p.ID,
		Kind:       KindPost,
		CategoryID: categoryID,
		AuthorID:   p.AuthorID,
		Deleted:    p.Deleted,
		Text:       p.Content,
	}
}
