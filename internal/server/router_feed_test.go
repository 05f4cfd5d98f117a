package server

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/feed"
)

func TestFeedRoutesCreateAndReadPosts(t *testing.T) {
	server := newTestServer(t)
	aliceToken := server.token(t, "alice-subject", "alice@example.com")
	bobToken := server.token(t, "bob-subject", "bob@example.com")

	created := server.do(t, http.MethodPost, "/tweet", aliceToken, map[string]any{"body": "hello world"})
	expectStatus(t, created, http.StatusCreated)
	root := decodeJSON[postPayload](t, created)
	if root.ID == 0 || root.Body != "hello world" || root.UserID != "alice" || root.IsComment {
		t.Fatalf("unexpected created post %+v", root)
	}
	if root.Likes != 0 || root.Replies != 0 || root.Restacks != 0 || root.Saves != 0 {
		t.Fatalf("expected zero counters, got %+v", root)
	}

	comment := server.do(t, http.MethodPost, "/tweet", bobToken, map[string]any{
		"body":            "nice post",
		"is_comment":      true,
		"parent_tweet_id": root.ID,
	})
	expectStatus(t, comment, http.StatusCreated)

	fetched := server.do(t, http.MethodGet, "/tweet/"+strconv.FormatUint(uint64(root.ID), 10), "", nil)
	expectStatus(t, fetched, http.StatusOK)
	if payload := decodeJSON[postPayload](t, fetched); payload.Replies != 1 {
		t.Fatalf("expected one reply on parent, got %+v", payload)
	}

	second := server.do(t, http.MethodPost, "/tweet", bobToken, map[string]any{"body": "second root"})
	expectStatus(t, second, http.StatusCreated)
	bobRoot := decodeJSON[postPayload](t, second)

	home := server.do(t, http.MethodGet, "/home", "", nil)
	expectStatus(t, home, http.StatusOK)
	entries := decodeJSON[[]map[string]any](t, home)
	if len(entries) != 2 {
		t.Fatalf("expected two root posts in the feed, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry["body"] == "nice post" {
			t.Fatalf("comments must not appear in the home feed: %v", entry)
		}
	}
	if entries[0]["body"] != "second root" || entries[0]["userId"] != "bob" || entries[0]["profileName"] != "bob" {
		t.Fatalf("expected newest root post first, got %v", entries[0])
	}
	if entries[1]["replies"] != float64(1) {
		t.Fatalf("expected reply count on the commented post, got %v", entries[1])
	}
	for _, field := range []string{"id", "body", "likes", "replies", "restacks", "saves", "userId", "profileName", "profileUrl"} {
		if _, ok := entries[1][field]; !ok {
			t.Fatalf("feed entry missing %q: %v", field, entries[1])
		}
	}

	firstPage := server.do(t, http.MethodGet, "/home?limit=1", "", nil)
	expectStatus(t, firstPage, http.StatusOK)
	if page := decodeJSON[[]feedEntryPayload](t, firstPage); len(page) != 1 || page[0].ID != bobRoot.ID {
		t.Fatalf("unexpected first page %+v", page)
	}

	limited := server.do(t, http.MethodGet, "/home?limit=1&offset=1", "", nil)
	expectStatus(t, limited, http.StatusOK)
	page := decodeJSON[[]feedEntryPayload](t, limited)
	if len(page) != 1 || page[0].ID != root.ID {
		t.Fatalf("unexpected second page %+v", page)
	}

	comments := server.do(t, http.MethodGet, "/tweet/"+strconv.FormatUint(uint64(root.ID), 10)+"/comments", "", nil)
	expectStatus(t, comments, http.StatusOK)
	listed := decodeJSON[[]commentPayload](t, comments)
	if len(listed) != 1 || listed[0].Body != "nice post" || listed[0].UserID == nil || *listed[0].UserID != "bob" {
		t.Fatalf("unexpected comments %+v", listed)
	}

	legacy := server.do(t, http.MethodGet, "/comments?tweetId=eq."+strconv.FormatUint(uint64(root.ID), 10), "", nil)
	expectStatus(t, legacy, http.StatusOK)
	if found := decodeJSON[[]commentPayload](t, legacy); len(found) != 1 {
		t.Fatalf("expected legacy lookup to find one comment, got %+v", found)
	}
}

func TestFeedRoutesErrorResponses(t *testing.T) {
	server := newTestServer(t)
	token := server.token(t, "carol-subject", "carol@example.com")

	missing := server.do(t, http.MethodGet, "/tweet/999", "", nil)
	expectStatus(t, missing, http.StatusNotFound)
	if payload := decodeJSON[errorPayload](t, missing); payload.Error != "not_found" || payload.Code != "feed.get_post.tweet_not_found" {
		t.Fatalf("unexpected not found payload %+v", payload)
	}

	expectStatus(t, server.do(t, http.MethodGet, "/tweet/abc", "", nil), http.StatusBadRequest)
	expectStatus(t, server.do(t, http.MethodGet, "/tweet/0", "", nil), http.StatusBadRequest)
	expectStatus(t, server.do(t, http.MethodGet, "/tweet/999/comments", "", nil), http.StatusNotFound)
	expectStatus(t, server.do(t, http.MethodGet, "/home?limit=many", "", nil), http.StatusBadRequest)

	empty := server.do(t, http.MethodGet, "/comments?tweetId=garbage", "", nil)
	expectStatus(t, empty, http.StatusOK)
	if found := decodeJSON[[]commentPayload](t, empty); len(found) != 0 {
		t.Fatalf("expected empty list, got %+v", found)
	}

	blank := server.do(t, http.MethodPost, "/tweet", token, map[string]any{"body": "   "})
	expectStatus(t, blank, http.StatusBadRequest)

	orphan := server.do(t, http.MethodPost, "/tweet", token, map[string]any{"body": "reply", "is_comment": true, "parent_tweet_id": 12345})
	expectStatus(t, orphan, http.StatusNotFound)

	malformed := server.do(t, http.MethodPost, "/tweet", token, "{not json")
	expectStatus(t, malformed, http.StatusBadRequest)
	if payload := decodeJSON[errorPayload](t, malformed); payload.Code != "request.invalid_json" {
		t.Fatalf("unexpected malformed payload %+v", payload)
	}

	var count int64
	if err := server.db.Model(&feed.Tweet{}).Count(&count).Error; err != nil {
		t.Fatalf("count tweets: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rejected requests to create nothing, found %d tweets", count)
	}
}

func TestUserRoutesRegisterAndLookup(t *testing.T) {
	server := newTestServer(t)
	token := server.token(t, "dave-subject", "")

	registered := server.do(t, http.MethodPost, "/user", token, map[string]any{"username": "dave", "bio": "writes things"})
	expectStatus(t, registered, http.StatusCreated)
	user := decodeJSON[userPayload](t, registered)
	if user.Username != "dave" || user.Bio == nil || *user.Bio != "writes things" {
		t.Fatalf("unexpected registered user %+v", user)
	}

	fetched := server.do(t, http.MethodGet, "/user/"+strconv.FormatUint(uint64(user.ID), 10), "", nil)
	expectStatus(t, fetched, http.StatusOK)
	if payload := decodeJSON[userPayload](t, fetched); payload.ID != user.ID {
		t.Fatalf("unexpected fetched user %+v", payload)
	}

	duplicate := server.do(t, http.MethodPost, "/user", "", map[string]any{"username": "dave"})
	expectStatus(t, duplicate, http.StatusConflict)

	// The registered row is bound to the token subject, so posting reuses it.
	created := server.do(t, http.MethodPost, "/tweet", token, map[string]any{"body": "first"})
	expectStatus(t, created, http.StatusCreated)
	if payload := decodeJSON[postPayload](t, created); payload.UserID != "dave" {
		t.Fatalf("expected post by registered user, got %+v", payload)
	}

	expectStatus(t, server.do(t, http.MethodGet, "/user/4242", "", nil), http.StatusNotFound)
}
