// Command syncadmin drives a running syncd daemon over its control RPC
// port: rebuilds, clears, progress, settings, language switches, and ad hoc
// index queries.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/forumkit/searchsync/internal/control"
	"github.com/forumkit/searchsync/pkg/proto"
)

const defaultAddr = "localhost:7700"

var commands = map[string]func(*control.Client, []string) error{
	"rebuild":       rebuild,
	"clear":         clear,
	"progress":      progress,
	"reindex-topic": reindexTopic,
	"reindex-post":  reindexPost,
	"settings":      showSettings,
	"save":          saveSettings,
	"language":      changeLanguage,
	"search":        search,
}

func main() {
	addr := flag.String("addr", defaultAddr, "control address of the syncd daemon")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	cmd, rest := args[0], args[1:]
	run, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	client, err := control.Dial(*addr)
	if err != nil {
		fail("connecting to %s: %v", *addr, err)
	}
	defer client.Close()

	if err := run(client, rest); err != nil {
		fail("%s: %v", cmd, err)
	}
}

func rebuild(c *control.Client, _ []string) error {
	ack, err := c.Rebuild()
	if err != nil {
		return err
	}
	fmt.Println(ack.Message)
	return nil
}

func clear(c *control.Client, _ []string) error {
	ack, err := c.Clear()
	if err != nil {
		return err
	}
	fmt.Println(ack.Message)
	return nil
}

func progress(c *control.Client, _ []string) error {
	p, err := c.Progress()
	if err != nil {
		return err
	}
	fmt.Printf("topics:  %d/%d (%.0f%%)\n", p.TopicsIndexed, p.TopicsTotal, p.TopicsPercent)
	fmt.Printf("posts:   %d/%d (%.0f%%)\n", p.PostsIndexed, p.PostsTotal, p.PostsPercent)
	fmt.Printf("working: %v\n", p.Working)
	return nil
}

func reindexTopic(c *control.Client, args []string) error {
	id, err := parseID(args, "topic")
	if err != nil {
		return err
	}
	if _, err := c.ReindexTopic(id); err != nil {
		return err
	}
	fmt.Printf("topic %d reindexed\n", id)
	return nil
}

func reindexPost(c *control.Client, args []string) error {
	id, err := parseID(args, "post")
	if err != nil {
		return err
	}
	if _, err := c.ReindexPost(id); err != nil {
		return err
	}
	fmt.Printf("post %d reindexed\n", id)
	return nil
}

func showSettings(c *control.Client, _ []string) error {
	s, err := c.Settings()
	if err != nil {
		return err
	}
	printSettings(s)
	return nil
}

func saveSettings(c *control.Client, args []string) error {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	topicLimit := fs.String("topic-limit", "", "maximum topic results per search")
	postLimit := fs.String("post-limit", "", "maximum post results per search")
	exclude := fs.String("exclude", "", `comma-separated category ids to keep out of the index ("none" clears the list)`)
	lang := fs.String("language", "", "index language short code")
	fs.Parse(args)

	req := proto.SaveSettingsRequest{
		TopicLimit: *topicLimit,
		PostLimit:  *postLimit,
		Language:   *lang,
	}
	switch *exclude {
	case "":
		// leave unchanged
	case "none":
		req.ExcludedCategories = []int64{}
	default:
		ids, err := parseIDList(*exclude)
		if err != nil {
			return err
		}
		req.ExcludedCategories = ids
	}

	resp, err := c.SaveSettings(req)
	if err != nil {
		return err
	}
	printSettings(resp)
	return nil
}

func changeLanguage(c *control.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one language code")
	}
	ack, err := c.ChangeLanguage(args[0])
	if err != nil {
		return err
	}
	fmt.Println(ack.Message)
	return nil
}

func search(c *control.Client, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	kind := fs.String("kind", "topic", `document kind: "topic" or "post"`)
	categories := fs.String("categories", "", "comma-separated category ids to filter on")
	author := fs.Int64("author", 0, "author id to filter on")
	match := fs.String("match", "", `match mode: "all" (default) or "any"`)
	limit := fs.Int("limit", 0, "result limit (0 uses the configured default)")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("missing query text")
	}
	req := proto.QueryRequest{
		Kind:      *kind,
		Query:     strings.Join(fs.Args(), " "),
		AuthorID:  *author,
		MatchMode: *match,
		Limit:     *limit,
	}
	if *categories != "" {
		ids, err := parseIDList(*categories)
		if err != nil {
			return err
		}
		req.CategoryIDs = ids
	}

	resp, err := c.Search(req)
	if err != nil {
		return err
	}
	fmt.Printf("%d result(s) in %dms\n", len(resp.IDs), resp.LatencyMs)
	for _, id := range resp.IDs {
		fmt.Printf("  %s %d\n", *kind, id)
	}
	return nil
}

func printSettings(s *proto.SettingsResponse) {
	fmt.Printf("topic limit:         %d\n", s.TopicLimit)
	fmt.Printf("post limit:          %d\n", s.PostLimit)
	fmt.Printf("excluded categories: %v\n", s.ExcludedCategories)
	fmt.Printf("language:            %s\n", s.Language)
}

func parseID(args []string, what string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one %s id", what)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, args[0])
	}
	return id, nil
}

func parseIDList(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: syncadmin [-addr host:port] <command> [args]

Commands:
  rebuild                      start a background full reindex
  clear                        remove every indexed document
  progress                     show rebuild progress
  reindex-topic <id>           re-derive one topic and its posts
  reindex-post <id>            re-derive one post
  settings                     show the shared runtime settings
  save [flags]                 update settings (see save -h)
  language <code>              switch the index language
  search [flags] <query...>    query the index (see search -h)

Global flags must precede the command.
`)
	flag.PrintDefaults()
}
