package model

import (
	"errors"
	"time"
)

var (
	ErrNoDbHandle = errors.New("db connection not available")
	ErrNotFound   = errors.New("not found")
)

// AccessToken represents an access token handed out at login.
type AccessToken struct {
	// UserID is the ID of the user associated with the token.
	UserID string `db:"userid"`
	// Token is the access token string.
	Token string `db:"token"`
	// DeviceId is the unique identifier for the device.
	DeviceId string `db:"deviceid"`
	// DeviceName is the name of the device.
	DeviceName string `db:"devicename"`
	// ApplicationName is the name of the application.
	ApplicationName string `db:"applicationname"`
	// ApplicationVersion is the version of the application.
	ApplicationVersion string `db:"applicationversion"`
	// RemoteAddress is the remote address of the client.
	RemoteAddress string `db:"remoteaddress"`
	// Created is the time the token was created.
	Created time.Time `db:"created"`
	// LastUsed is the last time the token was used.
	LastUsed time.Time `db:"lastused"`
}

// Stats are the persisted lifetime and daily usage counters.
type Stats struct {
	// TotalStreams is the lifetime number of counted streams.
	TotalStreams int64 `json:"totalStreams"`
	// TodayStreams is the number of streams counted on TodayDate.
	TodayStreams int64 `json:"todayStreams"`
	// TodayDate is the local date (YYYY-MM-DD) TodayStreams applies to.
	TodayDate string `json:"todayDate"`
	// TodayIPs are the distinct client addresses seen on TodayDate.
	TodayIPs []string `json:"todayIps"`
	// AuthSuccess is the lifetime number of successful authentications.
	AuthSuccess int64 `json:"authSuccess"`
	// AuthFailure is the lifetime number of failed authentications.
	AuthFailure int64 `json:"authFailure"`
	// Plays holds per-scene play counts keyed by scene id.
	Plays map[string]ScenePlays `json:"plays"`
}

// ScenePlays is the play history of one scene.
type ScenePlays struct {
	PlayCount  int64     `json:"playCount" db:"playcount"`
	Title      string    `json:"title" db:"title"`
	Performers string    `json:"performers" db:"performers"`
	LastPlayed time.Time `json:"lastPlayed" db:"lastplayed"`
}

// Ban is a banned client address.
type Ban struct {
	IP       string    `json:"ip" db:"ip"`
	Reason   string    `json:"reason" db:"reason"`
	Failures int       `json:"failures" db:"failures"`
	Created  time.Time `json:"created" db:"created"`
}
