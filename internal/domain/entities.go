package domain

import (
	"strings"
	"time"
)

// Названия видов сущностей, которые попадают в Update.WhatKind.
const (
	KindUser     = "User"
	KindPost     = "Post"
	KindComment  = "Comment"
	KindUpVote   = "UpVote"
	KindDownVote = "DownVote"
	KindChannel  = "Channel"
	KindFlag     = "Flag"
	KindFeedback = "Feedback"
)

// AuthorPseudonym всегда принадлежит автору поста.
const AuthorPseudonym = 0

// User описывает зарегистрированного пользователя.
type User struct {
	ID          string
	PubKeyHash  string
	Description string
	Channels    []string
	CreatedAt   time.Time
}

// Post представляет пост, привязанный к набору каналов.
type Post struct {
	Key        string
	AuthorID   string
	Content    string
	Theme      string
	Background string
	Role       string
	RoleText   string
	Channels   []string
	// IdentityMap сопоставляет реальный ID пользователя с псевдонимом внутри поста.
	IdentityMap map[string]int
	Created     time.Time
}

// VotableKey реализует Votable.
func (p Post) VotableKey() string { return p.Key }

// OwningPostKey реализует Votable: пост владеет сам собой.
func (p Post) OwningPostKey() string { return p.Key }

// Kind возвращает имя вида сущности.
func (p Post) Kind() string { return KindPost }

// Comment представляет комментарий к посту.
type Comment struct {
	Key       string
	PostKey   string
	Pseudonym int
	Content   string
	Role      string
	RoleText  string
	Created   time.Time
}

// VotableKey реализует Votable.
func (c Comment) VotableKey() string { return c.Key }

// OwningPostKey реализует Votable.
func (c Comment) OwningPostKey() string { return c.PostKey }

// Kind возвращает имя вида сущности.
func (c Comment) Kind() string { return KindComment }

// Votable описывает сущность, за которую можно голосовать.
type Votable interface {
	VotableKey() string
	OwningPostKey() string
}

// Direction задаёт направление голоса.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection разбирает направление без учёта регистра.
func ParseDirection(raw string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case DirectionUp:
		return DirectionUp, true
	case DirectionDown:
		return DirectionDown, true
	}
	return "", false
}

// Opposite возвращает противоположное направление.
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// Kind возвращает имя вида записи голоса.
func (d Direction) Kind() string {
	if d == DirectionUp {
		return KindUpVote
	}
	return KindDownVote
}

// Vote представляет запись UpVote или DownVote.
type Vote struct {
	Key       string
	EntityKey string
	PostKey   string
	Direction Direction
	Pseudonym int
	Created   time.Time
}

// Kind возвращает имя вида сущности.
func (v Vote) Kind() string { return v.Direction.Kind() }

// Tally содержит подсчёт голосов сущности.
type Tally struct {
	Up   int `json:"upvote_count"`
	Down int `json:"downvote_count"`
}

// Channel описывает канал с уникальным заголовком.
type Channel struct {
	Key   string
	Title string
}

// Update фиксирует изменение сущности в конкретном канале.
type Update struct {
	Key        string
	Created    time.Time
	What       string
	WhatKind   string
	PostKey    string
	ChannelKey string
}

// Flag отмечает пост или комментарий для модерации.
type Flag struct {
	Key        string
	EntityKey  string
	EntityKind string
	PostKey    string
	Created    time.Time
}

// Feedback хранит отзыв пользователя о сервисе.
type Feedback struct {
	Key     string
	UserID  string
	Content string
	Created time.Time
}

// Entity описывает изменённую сущность для фанаута.
type Entity struct {
	Key     string
	Kind    string
	PostKey string
}

// Timestamp приводит время к точности хранилища (микросекунды, UTC).
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
