package model

import "time"

// Activity is a single entry in the member activity feed: an event RSVP,
// a group post, a donation receipt, a message, and so on. The id is the
// deduplication key across pages; overlapping pages may repeat an id when
// the server inserts rows between fetches, in which case the first-seen
// copy wins.
type Activity struct {
	// ID uniquely identifies this activity across all pages.
	ID string `json:"id"`

	// Kind is the activity discriminator (e.g., "event.rsvp",
	// "group.post", "donation.receipt", "message").
	Kind string `json:"kind"`

	// Title is the one-line summary shown in the feed.
	Title string `json:"title"`

	// Body is the longer description, possibly empty.
	Body string `json:"body"`

	// GroupName is the originating group, when the activity belongs to one.
	GroupName string `json:"group_name,omitempty"`

	// Unread reports whether the member has seen this activity yet.
	Unread bool `json:"unread"`

	// CreatedAt is when the activity happened server-side.
	CreatedAt time.Time `json:"created_at"`
}

// ActivityPage is one fetched page of the activity feed. Pages are
// ephemeral: a refetch replaces the whole page, nothing is mutated in place.
type ActivityPage struct {
	// Results holds the activities of this page in server order.
	Results []Activity `json:"results"`

	// Count is the server-reported total across all pages.
	Count int `json:"count"`

	// PageSize is the requested page size; a page shorter than this is
	// the last page.
	PageSize int `json:"page_size"`
}
