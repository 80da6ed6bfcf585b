// Package archive persists emitted posts to Neo4j and reloads them as the
// "already displayed" set for later runs.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/cafescout/cafescout/engine/dedup"
	"github.com/cafescout/cafescout/engine/domain"
	"github.com/cafescout/cafescout/pkg/repo"
)

// DefaultSeedLimit caps how many archived posts seed a run's dedup index.
const DefaultSeedLimit = 10000

// Entry is one archived post.
type Entry struct {
	RunID      string
	ArchivedAt time.Time
	Post       domain.PostRecord
}

// Key identifies a post: its URL, or cafe and title when the URL is unknown.
func Key(p domain.PostRecord) string {
	if p.URL != "" {
		return p.URL
	}
	return "title:" + p.CafeID + "/" + p.Title
}

// Store reads and writes Post and Cafe nodes.
type Store struct {
	posts *repo.Neo4jRepo[Entry, string]
}

// New creates a Store over sessions.
func New(sessions repo.SessionFactory) *Store {
	return &Store{posts: repo.NewNeo4jRepo[Entry, string](sessions, "Post", entryToMap, entryFromRecord, repo.WithIDKey[Entry, string]("key"))}
}

// Open connects to Neo4j and verifies connectivity. The returned func closes the driver.
func Open(ctx context.Context, url, user, pass, database string) (*Store, func(context.Context) error, error) {
	driver, err := neo4j.NewDriverWithContext(url, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return nil, nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, nil, fmt.Errorf("neo4j connect: %w", err)
	}
	s := New(repo.DriverSessions(driver, database))
	if err := s.EnsureSchema(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, nil, err
	}
	return s, driver.Close, nil
}

// EnsureSchema creates the uniqueness constraints the merges rely on.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, c := range []string{
		"CREATE CONSTRAINT post_key IF NOT EXISTS FOR (p:Post) REQUIRE p.key IS UNIQUE",
		"CREATE CONSTRAINT cafe_id IF NOT EXISTS FOR (c:Cafe) REQUIRE c.id IS UNIQUE",
	} {
		if err := s.posts.Exec(ctx, c, nil); err != nil {
			return fmt.Errorf("neo4j schema: %w", err)
		}
	}
	return nil
}

// Save upserts the post and links it to its cafe.
func (s *Store) Save(ctx context.Context, e Entry) error {
	if err := s.posts.Merge(ctx, e); err != nil {
		return fmt.Errorf("archive post: %w", err)
	}
	if e.Post.CafeID == "" {
		return nil
	}
	err := s.posts.Exec(ctx,
		"MATCH (p:Post {key: $key}) MERGE (c:Cafe {id: $cafe}) SET c.name = coalesce($name, c.name) MERGE (c)-[:HAS_POST]->(p)",
		map[string]any{"key": Key(e.Post), "cafe": e.Post.CafeID, "name": nilIfEmpty(e.Post.Author)},
	)
	if err != nil {
		return fmt.Errorf("archive cafe link: %w", err)
	}
	return nil
}

// Seed loads up to limit archived posts into a dedup index.
func (s *Store) Seed(ctx context.Context, limit int) (*dedup.Index, error) {
	if limit <= 0 {
		limit = DefaultSeedLimit
	}
	entries, err := s.posts.List(ctx, repo.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("archive seed: %w", err)
	}
	idx := dedup.NewIndex()
	for _, e := range entries {
		idx.AddTitle(e.Post.Title)
		idx.AddPair(e.Post.CafeID, e.Post.Title)
	}
	return idx, nil
}

func entryToMap(e Entry) map[string]any {
	p := e.Post
	m := map[string]any{
		"key":          Key(p),
		"url":          p.URL,
		"title":        p.Title,
		"cafe_id":      p.CafeID,
		"article_id":   p.ArticleID,
		"author":       p.Author,
		"posted_at":    p.PostedAt,
		"body_snippet": p.BodySnippet,
		"run_id":       e.RunID,
		"archived_at":  e.ArchivedAt.UTC().Format(time.RFC3339),
	}
	if p.Classification != nil {
		m["relevant"] = p.Classification.IsRelevant
		m["matched_keywords"] = p.Classification.MatchedKeywords
		m["rationale"] = p.Classification.Rationale
	}
	return m
}

func entryFromRecord(rec *neo4j.Record) (Entry, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return Entry{}, err
	}
	props := node.Props
	e := Entry{
		RunID: strProp(props, "run_id"),
		Post: domain.PostRecord{
			URL:         strProp(props, "url"),
			Title:       strProp(props, "title"),
			CafeID:      strProp(props, "cafe_id"),
			ArticleID:   strProp(props, "article_id"),
			Author:      strProp(props, "author"),
			PostedAt:    strProp(props, "posted_at"),
			BodySnippet: strProp(props, "body_snippet"),
		},
	}
	if t, err := time.Parse(time.RFC3339, strProp(props, "archived_at")); err == nil {
		e.ArchivedAt = t
	}
	return e, nil
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
