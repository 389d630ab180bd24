package model

// AnnouncementStatus is the lifecycle state of an announcement.
type AnnouncementStatus string

const (
	// AnnouncementStatusNew marks an announcement the member has not
	// dismissed yet.
	AnnouncementStatusNew AnnouncementStatus = "NEW"

	// AnnouncementStatusInteracted marks an announcement the member has
	// dismissed; it must never be shown again.
	AnnouncementStatusInteracted AnnouncementStatus = "INTERACTED"
)

// Announcement is a dismissible banner addressed to the member, fetched by
// slug. Dismissal flips Status to INTERACTED locally before the server
// confirms it.
type Announcement struct {
	// ID is the announcement identifier; an empty ID means the payload
	// carries nothing to show.
	ID string `json:"id"`

	// Slug is the stable lookup key for this announcement.
	Slug string `json:"slug"`

	// Status is NEW until the member dismisses the announcement.
	Status AnnouncementStatus `json:"status"`

	// ActivityID links the announcement to the activity whose
	// mark-interacted endpoint confirms the dismissal.
	ActivityID string `json:"activity_id"`

	// Title and Body are the banner contents.
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Showable reports whether the announcement should be surfaced: it must
// exist and not have been interacted with yet.
func (a *Announcement) Showable() bool {
	return a != nil && a.ID != "" && a.Status != AnnouncementStatusInteracted
}
