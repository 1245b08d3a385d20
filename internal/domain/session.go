package domain

import "time"

// Platform partitions sessions: a user holds at most one active session per platform.
type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformMobile Platform = "mobile"
)

func (p Platform) Valid() bool {
	return p == PlatformWeb || p == PlatformMobile
}

// Device is one client attached to a session.
type Device struct {
	DeviceID   string    `json:"deviceId"`
	DeviceType string    `json:"deviceType"`
	UserAgent  string    `json:"userAgent,omitempty"`
	IP         string    `json:"ip,omitempty"`
	Language   string    `json:"language,omitempty"`
	LastActive time.Time `json:"lastActive"`
}

// Session binds a user to a pair of bearer credentials. Only the SHA-256
// digests of the tokens are persisted.
type Session struct {
	SessionID        string     `json:"sessionId"`
	UserID           string     `json:"userId"`
	UserType         UserType   `json:"userType"`
	Platform         Platform   `json:"platform"`
	AccessTokenHash  string     `json:"accessTokenHash"`
	RefreshTokenHash string     `json:"refreshTokenHash"`
	IsActive         bool       `json:"isActive"`
	ActiveSlot       string     `json:"activeSlot"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	RefreshExpiresAt time.Time  `json:"refreshExpiresAt"`
	Devices          []Device   `json:"devices"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastActive       time.Time  `json:"lastActive"`
	InvalidatedAt    *time.Time `json:"invalidatedAt,omitempty"`
}

// SlotFor is the uniqueness key held by the active session of a user on a
// platform. Inactive sessions carry an empty slot.
func SlotFor(userID string, p Platform) string {
	return userID + "|" + string(p)
}

// Expired reports whether the access token has passed its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RefreshExpired reports whether the refresh token can no longer be exchanged.
func (s *Session) RefreshExpired(now time.Time) bool {
	return !now.Before(s.RefreshExpiresAt)
}

// WithDevice returns the device list with d touched or appended.
func (s *Session) WithDevice(d Device) []Device {
	out := make([]Device, 0, len(s.Devices)+1)
	found := false
	for _, existing := range s.Devices {
		if existing.DeviceID == d.DeviceID {
			existing.LastActive = d.LastActive
			if d.UserAgent != "" {
				existing.UserAgent = d.UserAgent
			}
			if d.IP != "" {
				existing.IP = d.IP
			}
			found = true
		}
		out = append(out, existing)
	}
	if !found {
		out = append(out, d)
	}
	return out
}
