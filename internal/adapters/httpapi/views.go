package httpapi

import (
	"time"

	"insiderr-api/internal/domain"
	"insiderr-api/internal/usecase/feed"
	"insiderr-api/internal/usecase/posts"
)

type postJSON struct {
	Key          string    `json:"key"`
	Content      string    `json:"content"`
	Theme        string    `json:"theme"`
	Background   string    `json:"background"`
	Role         string    `json:"role"`
	RoleText     string    `json:"role_text"`
	Channels     []string  `json:"channels"`
	Created      time.Time `json:"created"`
	CommentCount int       `json:"comment_count"`
	domain.Tally
}

func toPostJSON(v feed.PostView) postJSON {
	return postJSON{
		Key:          v.Post.Key,
		Content:      v.Post.Content,
		Theme:        v.Post.Theme,
		Background:   v.Post.Background,
		Role:         v.Post.Role,
		RoleText:     v.Post.RoleText,
		Channels:     v.Post.Channels,
		Created:      v.Post.Created,
		CommentCount: v.CommentCount,
		Tally:        v.Tally,
	}
}

type commentJSON struct {
	Key      string    `json:"key"`
	Content  string    `json:"content"`
	Role     string    `json:"role"`
	RoleText string    `json:"role_text"`
	Icon     int       `json:"icon"`
	Created  time.Time `json:"created"`
	domain.Tally
}

func toCommentJSON(v posts.CommentView) commentJSON {
	return commentJSON{
		Key:      v.Comment.Key,
		Content:  v.Comment.Content,
		Role:     v.Comment.Role,
		RoleText: v.Comment.RoleText,
		Icon:     v.Comment.Pseudonym,
		Created:  v.Comment.Created,
		Tally:    v.Tally,
	}
}

type channelJSON struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

type feedEntryJSON struct {
	Post postJSON `json:"post"`
	Hash string   `json:"hash"`
}

type updateEntryJSON struct {
	Obj  postJSON  `json:"obj"`
	Type string    `json:"type"`
	Key  string    `json:"key"`
	Hash time.Time `json:"hash"`
}

type keyReply struct {
	OK  bool   `json:"ok"`
	Key string `json:"key"`
}

type tallyReply struct {
	OK  bool   `json:"ok"`
	Key string `json:"key"`
	domain.Tally
}

type newPostRequest struct {
	Content    string   `json:"content"`
	Theme      string   `json:"theme"`
	Background string   `json:"background"`
	Role       string   `json:"role"`
	RoleText   string   `json:"role_text"`
	Channels   []string `json:"channels"`
}

type newCommentRequest struct {
	Content  string  `json:"content"`
	Role     *string `json:"role"`
	RoleText *string `json:"role_text"`
}

type registerRequest struct {
	PubKey      string `json:"pub_key"`
	Description string `json:"description"`
}

type loginRequest struct {
	Key string `json:"key"`
}
