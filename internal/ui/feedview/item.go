package feedview

import (
	"github.com/mverhagen/memberhub/internal/model"
	"github.com/mverhagen/memberhub/internal/theme"
)

// ActivityItem adapts a model.Activity to the bubbles list item interface.
type ActivityItem struct {
	Activity model.Activity
}

// Title renders the one-line summary with a kind label and unread marker.
func (i ActivityItem) Title() string {
	title := theme.KindStyle(i.Activity.Kind).Render(i.Activity.Kind) +
		" " + i.Activity.Title
	if i.Activity.Unread {
		title = "● " + title
	}
	return title
}

// Description renders the secondary line.
func (i ActivityItem) Description() string {
	desc := i.Activity.CreatedAt.Format("Jan 2 15:04")
	if i.Activity.GroupName != "" {
		desc += " · " + i.Activity.GroupName
	}
	return desc
}

// FilterValue implements list.Item.
func (i ActivityItem) FilterValue() string {
	return i.Activity.Title
}
