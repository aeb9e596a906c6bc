// Package feed turns a couple's raw activity log into grouped summaries.
package feed

import (
	"sort"
	"time"

	"github.com/luckylove/server/internal/model"
)

// FeedLimit is how many of the newest events are considered.
const FeedLimit = 60

// Group is one line of the feed: every event by the same actor with the
// same action.
type Group struct {
	IDs           []string  `json:"ids"`
	ActorID       *string   `json:"actor_id"`
	ActorName     string    `json:"actor_name"`
	Action        string    `json:"action"`
	Count         int       `json:"count"`
	Text          string    `json:"text"`
	LastCreatedAt time.Time `json:"created_at"`
	Seen          bool      `json:"seen"`
}

func groupKey(e model.Event) (string, string) {
	actor := "none"
	if e.ActorID != nil {
		actor = *e.ActorID
	}
	action := e.Action
	if action == "" {
		action = "unknown"
	}
	return actor + "::" + action, action
}

// Aggregate groups events (newest first) by (actor, action) for viewerID.
// names maps actor ids to display names; missing actors read as the
// partner. A group is seen only if the viewer has seen every member.
// Groups are returned newest first; ties keep first-seen order.
func Aggregate(events []model.Event, viewerID string, names map[string]string) []Group {
	groups := make([]*Group, 0)
	byKey := make(map[string]*Group)

	for _, e := range events {
		key, action := groupKey(e)
		g, ok := byKey[key]
		if !ok {
			g = &Group{
				ActorID:       e.ActorID,
				Action:        action,
				Seen:          true,
				LastCreatedAt: e.CreatedAt,
			}
			byKey[key] = g
			groups = append(groups, g)
		}

		g.IDs = append(g.IDs, e.ID)
		g.Count++
		g.Seen = g.Seen && e.SeenByUser(viewerID)
		if e.CreatedAt.After(g.LastCreatedAt) {
			g.LastCreatedAt = e.CreatedAt
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].LastCreatedAt.After(groups[j].LastCreatedAt)
	})

	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		self := g.ActorID != nil && *g.ActorID == viewerID
		switch {
		case self:
			g.ActorName = selfName
		case g.ActorID != nil && names[*g.ActorID] != "":
			g.ActorName = names[*g.ActorID]
		default:
			g.ActorName = partnerName
		}
		g.Text = Describe(g.ActorName, g.Action, g.Count, self)
		out = append(out, *g)
	}
	return out
}
