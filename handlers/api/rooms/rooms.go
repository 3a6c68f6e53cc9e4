package rooms

import (
	"docsync-server/core"
	"net/http"
	"sort"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	// Presence reports the member count of every live room.
	Presence interface {
		Rooms() map[string]int
	}

	RoomSummary struct {
		ID         string `json:"id"`
		Users      int    `json:"users"`
		LastActive *int64 `json:"lastActive,omitempty"`
	}
)

// HandleList merges live presence with the last-active timestamps of the
// room registry. registry may be nil.
func HandleList(presence Presence, registry core.RoomRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomMap := make(map[string]*RoomSummary)
		for id, count := range presence.Rooms() {
			roomMap[id] = &RoomSummary{ID: id, Users: count}
		}

		if registry != nil {
			if storedRooms, err := registry.ListRooms(r.Context()); err != nil {
				logrus.WithError(err).Warn("failed to list rooms from registry")
			} else {
				for _, room := range storedRooms {
					entry, exists := roomMap[room.ID]
					if !exists {
						entry = &RoomSummary{ID: room.ID}
						roomMap[room.ID] = entry
					}
					if room.LastActive > 0 {
						lastActive := room.LastActive
						entry.LastActive = &lastActive
					}
				}
			}
		}

		roomList := make([]RoomSummary, 0, len(roomMap))
		for _, entry := range roomMap {
			roomList = append(roomList, *entry)
		}
		sortRooms(roomList)

		render.JSON(w, r, roomList)
	}
}

// sortRooms orders by users, then last activity, both descending, then id.
func sortRooms(roomList []RoomSummary) {
	sort.Slice(roomList, func(i, j int) bool {
		if roomList[i].Users != roomList[j].Users {
			return roomList[i].Users > roomList[j].Users
		}
		li, lj := lastActive(roomList[i]), lastActive(roomList[j])
		if li != lj {
			return li > lj
		}
		return roomList[i].ID < roomList[j].ID
	})
}

func lastActive(room RoomSummary) int64 {
	if room.LastActive == nil {
		return 0
	}
	return *room.LastActive
}
