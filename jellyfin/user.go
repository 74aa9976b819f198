package jellyfin

import (
	"net/http"
	"time"
)

// GET /Users
//
// usersAllHandler returns all users, there is only one
func (j *Jellyfin) usersAllHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON([]JFUser{j.makeJFUser()}, w)
}

// GET /Users/Me
//
// usersMeHandler returns the user of the access token
func (j *Jellyfin) usersMeHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON(j.makeJFUser(), w)
}

// GET /Users/Public
//
// usersPublicHandler returns no users, the login screen asks for a username
func (j *Jellyfin) usersPublicHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON([]JFUser{}, w)
}

// GET /Users/{user}
//
// usersHandler returns the user, any user id resolves to the single account
func (j *Jellyfin) usersHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON(j.makeJFUser(), w)
}

func (j *Jellyfin) makeJFUser() JFUser {
	now := time.Now().UTC()
	return JFUser{
		Name:                  j.username,
		ServerId:              j.serverID,
		Id:                    j.userID,
		HasPassword:           true,
		HasConfiguredPassword: true,
		LastLoginDate:         now,
		LastActivityDate:      now,
		Configuration: JFUserConfiguration{
			GroupedFolders:             []string{},
			SubtitleMode:               "Default",
			OrderedViews:               []string{},
			MyMediaExcludes:            []string{},
			LatestItemsExcludes:        []string{},
			PlayDefaultAudioTrack:      true,
			RememberAudioSelections:    true,
			RememberSubtitleSelections: true,
		},
		Policy: JFUserPolicy{
			IsAdministrator:          false,
			BlockedTags:              []string{},
			AllowedTags:              []string{},
			EnableRemoteAccess:       true,
			EnableMediaPlayback:      true,
			EnableContentDownloading: true,
			EnableAllDevices:         true,
			EnableAllChannels:        true,
			EnableAllFolders:         true,
			EnabledFolders:           []string{},
			AuthenticationProviderID: "Jellyfin.Server.Implementations.Users.DefaultAuthenticationProvider",
			PasswordResetProviderID:  "Jellyfin.Server.Implementations.Users.DefaultPasswordResetProvider",
			SyncPlayAccess:           "None",
		},
	}
}
