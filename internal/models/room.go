package models

import (
	"sort"
	"strings"
	"time"
)

// DefaultRoom always exists and every user may read and post in it.
const DefaultRoom = "General"

// Room is a named chat room. The name doubles as its identifier.
type Room struct {
	Name         string    `db:"name" json:"name"`
	CreatorEmail string    `db:"creator_email" json:"creatorEmail"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// CreateRoomRequest is the body of POST /create-room.
type CreateRoomRequest struct {
	RoomName     string   `json:"roomName" binding:"required"`
	CreatorEmail string   `json:"creatorEmail"`
	MemberEmails []string `json:"memberEmails"`
}

// EditMembersRequest is the body of POST /edit-room-members.
type EditMembersRequest struct {
	RoomID          string   `json:"roomId" binding:"required"`
	UserEmail       string   `json:"userEmail"`
	NewMemberEmails []string `json:"newMemberEmails"`
}

// MemberSet unions owner into members, dropping blanks and duplicates.
// Emails are compared case-insensitively and returned sorted.
func MemberSet(owner string, members []string) []string {
	set := map[string]struct{}{}
	if email := NormalizeEmail(owner); email != "" {
		set[email] = struct{}{}
	}
	for _, m := range members {
		if email := NormalizeEmail(m); email != "" {
			set[email] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for email := range set {
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}

// NormalizeEmail trims and lowercases an address for comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// WithDefaultRoom returns names with DefaultRoom first and duplicates removed.
func WithDefaultRoom(names []string) []string {
	out := []string{DefaultRoom}
	seen := map[string]struct{}{DefaultRoom: {}}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
