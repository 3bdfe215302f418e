// Command eventgen publishes a synthetic stream of forum mutation events to
// the document-events topic, for exercising a running syncd without a forum
// deployment. It fabricates topics and posts, walks them through their
// lifecycle (edit, delete, restore, move, purge), and keeps the mix weighted
// toward creations so the corpus grows over a run.
//
// Note that eventgen writes nothing to the primary store, so a daemon backed
// by a real store will index topic events (the payload travels inline) but
// skip most post events as parent-missing. Run the daemon with the memory
// store, or point eventgen at a store seeded with matching topics, for full
// coverage of the post paths.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/pkg/config"
	"github.com/forumkit/searchsync/pkg/kafka"
	"github.com/forumkit/searchsync/pkg/logger"
)

var sampleTitles = []string{
	"Weekly standup notes and action items",
	"Best practices for index rebuilds",
	"Forum migration postmortem",
	"How do excluded categories work",
	"Search returns stale results after move",
	"Announcing the new moderation queue",
	"Benchmarking the event pipeline",
	"Language packs for CJK segmentation",
	"Counter drift after bulk purge",
	"Scheduled maintenance this weekend",
}

var sampleBodies = []string{
	"I ran the rebuild twice and the counters converged both times.",
	"The trick is to keep page sizes small enough that memory stays flat.",
	"We saw the working flag stick once after a mid-run network partition.",
	"Excluding the archive category cut index size nearly in half.",
	"Moving a topic re-derives every child post, so expect a burst of writes.",
	"Purged documents drop out immediately, soft deletes converge on reindex.",
	"Short posts get the raw text appended, which helps exact matching.",
	"The progress endpoint clamps at one hundred percent even mid-drift.",
	"Settings broadcasts land on every sibling process within a second.",
	"Try the any match mode when the all mode returns nothing useful.",
}

type genTopic struct {
	id      int64
	cid     int64
	mainPid int64
	deleted bool
}

type genPost struct {
	id      int64
	tid     int64
	deleted bool
}

// generator holds the fabricated corpus. Deleted documents stay tracked so
// restore and purge events reference ids the daemon has actually seen.
type generator struct {
	rng       *rand.Rand
	nextTopic int64
	nextPost  int64
	topics    []*genTopic
	posts     []*genPost
	emitted   map[forum.EventKind]int
	published int
	failed    int
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	rate := flag.Int("rate", 50, "events per second")
	duration := flag.Duration("duration", 30*time.Second, "how long to publish")
	seed := flag.Int64("seed", 0, "rng seed (0 picks one from the clock)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	if *rate <= 0 {
		*rate = 50
	}

	fmt.Println("=== Mutation Event Generator ===")
	fmt.Printf("Brokers:  %v\n", cfg.Kafka.Brokers)
	fmt.Printf("Topic:    %s\n", cfg.Kafka.Topics.DocumentEvents)
	fmt.Printf("Rate:     %d events/s\n", *rate)
	fmt.Printf("Duration: %s\n", *duration)
	fmt.Printf("Seed:     %d\n", *seed)
	fmt.Println()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents)
	defer producer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	g := &generator{
		rng:     rand.New(rand.NewSource(*seed)),
		emitted: make(map[forum.EventKind]int),
	}

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	fmt.Print("Publishing")
	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-progress.C:
			fmt.Print(".")
		case <-ticker.C:
			ev := g.next()
			if err := producer.Publish(ctx, kafka.Event{Key: ev.Key(), Value: ev}); err != nil {
				if ctx.Err() != nil {
					break loop
				}
				g.failed++
				continue
			}
			g.published++
			g.emitted[ev.Kind]++
		}
	}
	fmt.Println(" done!")
	fmt.Println()
	g.report()
}

// next picks a weighted event kind and builds it. Kinds that need existing
// documents fall back to a creation when the corpus cannot supply one yet.
func (g *generator) next() forum.Event {
	switch n := g.rng.Intn(100); {
	case n < 20:
		return g.createTopic()
	case n < 55:
		return g.createPost()
	case n < 65:
		return g.editPost()
	case n < 71:
		return g.editTopic()
	case n < 77:
		return g.deletePost()
	case n < 81:
		return g.restorePost()
	case n < 84:
		return g.purgePost()
	case n < 88:
		return g.moveTopic()
	case n < 92:
		return g.movePost()
	case n < 96:
		return g.deleteTopic()
	case n < 98:
		return g.restoreTopic()
	default:
		return g.purgeTopic()
	}
}

func (g *generator) envelope(kind forum.EventKind) forum.Event {
	return forum.Event{
		ID:   uuid.NewString(),
		Kind: kind,
		At:   time.Now(),
	}
}

func (g *generator) createTopic() forum.Event {
	g.nextTopic++
	g.nextPost++
	t := &genTopic{
		id:      g.nextTopic,
		cid:     int64(g.rng.Intn(8) + 1),
		mainPid: g.nextPost,
	}
	g.topics = append(g.topics, t)
	g.posts = append(g.posts, &genPost{id: t.mainPid, tid: t.id})

	ev := g.envelope(forum.EventTopicCreated)
	ev.Topic = g.topicPayload(t)
	return ev
}

func (g *generator) createPost() forum.Event {
	t := g.pickTopic(false)
	if t == nil {
		return g.createTopic()
	}
	g.nextPost++
	p := &genPost{id: g.nextPost, tid: t.id}
	g.posts = append(g.posts, p)

	ev := g.envelope(forum.EventPostCreated)
	ev.Post = g.postPayload(p)
	return ev
}

func (g *generator) editPost() forum.Event {
	p := g.pickPost(false)
	if p == nil {
		return g.createPost()
	}
	ev := g.envelope(forum.EventPostEdited)
	ev.Post = g.postPayload(p)
	return ev
}

func (g *generator) editTopic() forum.Event {
	t := g.pickTopic(false)
	if t == nil {
		return g.createTopic()
	}
	ev := g.envelope(forum.EventTopicEdited)
	ev.Topic = g.topicPayload(t)
	return ev
}

func (g *generator) deletePost() forum.Event {
	p := g.pickPost(false)
	if p == nil {
		return g.createPost()
	}
	p.deleted = true
	ev := g.envelope(forum.EventPostDeleted)
	ev.Post = g.postPayload(p)
	return ev
}

func (g *generator) restorePost() forum.Event {
	p := g.pickPost(true)
	if p == nil {
		return g.createPost()
	}
	p.deleted = false
	ev := g.envelope(forum.EventPostRestored)
	ev.Post = g.postPayload(p)
	return ev
}

func (g *generator) purgePost() forum.Event {
	p := g.pickPost(true)
	if p == nil {
		return g.deletePost()
	}
	g.removePost(p.id)
	ev := g.envelope(forum.EventPostPurged)
	ev.Post = &forum.Post{ID: p.id, TopicID: p.tid}
	return ev
}

func (g *generator) movePost() forum.Event {
	p := g.pickPost(false)
	t := g.pickTopic(false)
	if p == nil || t == nil {
		return g.createPost()
	}
	p.tid = t.id
	ev := g.envelope(forum.EventPostMoved)
	ev.Post = g.postPayload(p)
	return ev
}

func (g *generator) deleteTopic() forum.Event {
	t := g.pickTopic(false)
	if t == nil {
		return g.createTopic()
	}
	t.deleted = true
	ev := g.envelope(forum.EventTopicDeleted)
	ev.Topic = g.topicPayload(t)
	return ev
}

func (g *generator) restoreTopic() forum.Event {
	t := g.pickTopic(true)
	if t == nil {
		return g.createTopic()
	}
	t.deleted = false
	ev := g.envelope(forum.EventTopicRestored)
	ev.Topic = g.topicPayload(t)
	return ev
}

func (g *generator) moveTopic() forum.Event {
	t := g.pickTopic(false)
	if t == nil {
		return g.createTopic()
	}
	t.cid = int64(g.rng.Intn(8) + 1)
	ev := g.envelope(forum.EventTopicMoved)
	ev.Topic = g.topicPayload(t)
	return ev
}

func (g *generator) purgeTopic() forum.Event {
	t := g.pickTopic(true)
	if t == nil {
		return g.deleteTopic()
	}
	g.removeTopic(t.id)
	ev := g.envelope(forum.EventTopicPurged)
	ev.Topic = &forum.Topic{ID: t.id, CategoryID: t.cid, MainPostID: t.mainPid}
	return ev
}

func (g *generator) topicPayload(t *genTopic) *forum.Topic {
	return &forum.Topic{
		ID:         t.id,
		CategoryID: t.cid,
		AuthorID:   int64(g.rng.Intn(50) + 1),
		MainPostID: t.mainPid,
		Deleted:    t.deleted,
		Title:      sampleTitles[g.rng.Intn(len(sampleTitles))],
	}
}

func (g *generator) postPayload(p *genPost) *forum.Post {
	return &forum.Post{
		ID:       p.id,
		TopicID:  p.tid,
		AuthorID: int64(g.rng.Intn(50) + 1),
		Deleted:  p.deleted,
		Content:  sampleBodies[g.rng.Intn(len(sampleBodies))],
	}
}

func (g *generator) pickTopic(deleted bool) *genTopic {
	candidates := make([]*genTopic, 0, len(g.topics))
	for _, t := range g.topics {
		if t.deleted == deleted {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[g.rng.Intn(len(candidates))]
}

func (g *generator) pickPost(deleted bool) *genPost {
	candidates := make([]*genPost, 0, len(g.posts))
	for _, p := range g.posts {
		if p.deleted == deleted {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[g.rng.Intn(len(candidates))]
}

func (g *generator) removePost(id int64) {
	for i, p := range g.posts {
		if p.id == id {
			g.posts = append(g.posts[:i], g.posts[i+1:]...)
			return
		}
	}
}

func (g *generator) removeTopic(id int64) {
	for i, t := range g.topics {
		if t.id == id {
			g.topics = append(g.topics[:i], g.topics[i+1:]...)
			break
		}
	}
	kept := g.posts[:0]
	for _, p := range g.posts {
		if p.tid != id {
			kept = append(kept, p)
		}
	}
	g.posts = kept
}

func (g *generator) report() {
	fmt.Println("=== Results ===")
	fmt.Printf("Published: %d\n", g.published)
	fmt.Printf("Failed:    %d\n", g.failed)
	fmt.Printf("Topics:    %d live\n", len(g.topics))
	fmt.Printf("Posts:     %d live\n", len(g.posts))
	fmt.Println()
	fmt.Println("=== Event Mix ===")
	kinds := make([]string, 0, len(g.emitted))
	for kind := range g.emitted {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("  %-16s %d\n", kind, g.emitted[forum.EventKind(kind)])
	}
	if g.published == 0 {
		fmt.Println()
		fmt.Println("WARNING: nothing published. Are the brokers reachable?")
		os.Exit(1)
	}
}
