package jellyfin

import (
	"encoding/json"
	"net/http"

	"github.com/erikbos/stashfin/catalog"
	"github.com/erikbos/stashfin/idhash"
)

// GET /Sessions
//
// sessionsHandler returns the active streams as sessions
func (j *Jellyfin) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	streams := j.tracker.Streams()
	response := make([]JFSessionInfo, 0, len(streams))
	for _, s := range streams {
		item := &JFItem{
			ID:           makeJFSceneID(s.SceneID),
			ServerID:     j.serverID,
			Name:         s.Title,
			Type:         itemTypeMovie,
			MediaType:    "Video",
			RunTimeTicks: durationTicks(s.Duration.Seconds()),
		}
		response = append(response, JFSessionInfo{
			ID:       idhash.ServerID("session:" + s.ClientIP + "|" + s.Client),
			UserID:   j.userID,
			UserName: s.User,
			Client:   s.Client,
			PlayState: JFSessionResponsePlayState{
				PositionTicks: durationTicks(s.Position().Seconds()),
				CanSeek:       true,
				PlayMethod:    "DirectPlay",
				RepeatMode:    "RepeatNone",
				PlaybackOrder: "Default",
			},
			RemoteEndPoint:           s.ClientIP,
			DeviceName:               s.Client,
			LastActivityDate:         s.LastSeen.UTC(),
			LastPlaybackCheckIn:      s.LastSeen.UTC(),
			IsActive:                 true,
			NowPlayingItem:           item,
			ServerID:                 j.serverID,
			AdditionalUsers:          []string{},
			PlayableMediaTypes:       []string{"Video"},
			SupportedCommands:        []string{},
			NowPlayingQueue:          []string{},
			NowPlayingQueueFullItems: []string{},
		})
	}
	serveJSON(response, w)
}

// POST /Sessions/Capabilities
// POST /Sessions/Capabilities/Full
//
// sessionsCapabilitiesHandler accepts and ignores client capabilities
func (j *Jellyfin) sessionsCapabilitiesHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// POST /Sessions/Playing
//
// sessionsPlayingHandler handles a playback start report
func (j *Jellyfin) sessionsPlayingHandler(w http.ResponseWriter, r *http.Request) {
	if sceneID, ok := j.playStateScene(r); ok {
		j.tracker.Progress(sceneID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /Sessions/Playing/Progress
// POST /Sessions/Playing/Ping
//
// sessionsPlayingProgressHandler keeps the stream of a progress report active
func (j *Jellyfin) sessionsPlayingProgressHandler(w http.ResponseWriter, r *http.Request) {
	if sceneID, ok := j.playStateScene(r); ok {
		j.tracker.Progress(sceneID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /Sessions/Playing/Stopped
//
// sessionsPlayingStoppedHandler ends the stream of a scene
func (j *Jellyfin) sessionsPlayingStoppedHandler(w http.ResponseWriter, r *http.Request) {
	if sceneID, ok := j.playStateScene(r); ok {
		j.tracker.Stop(r.Context(), sceneID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// playStateScene returns the scene id of a play state report.
func (j *Jellyfin) playStateScene(r *http.Request) (string, bool) {
	var state JFPlayState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		return "", false
	}
	itemID := state.ItemId
	if itemID == "" {
		itemID = state.MediaSourceID
	}
	node, err := catalog.ParseNode(itemID)
	if err != nil || node.Kind != catalog.NodeScene {
		return "", false
	}
	return node.ID, true
}
