package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wencestudios/freelancehub/internal/domain"
)

var laptop = DeviceInfo{DeviceID: "laptop", DeviceType: "desktop", UserAgent: "firefox"}

func TestDeviceInfo_Fingerprint(t *testing.T) {
	a := DeviceInfo{UserAgent: "curl/8", IP: "10.0.0.1", Language: "en"}
	b := DeviceInfo{UserAgent: "curl/8", IP: "10.0.0.1", Language: "en"}
	c := DeviceInfo{UserAgent: "curl/8", IP: "10.0.0.2", Language: "en"}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)
	assert.Equal(t, "phone-1", DeviceInfo{DeviceID: "phone-1", UserAgent: "x"}.Fingerprint())
}

func TestCreateSession_IssuesHexTokensAndStoresDigests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, "", laptop)
	require.NoError(t, err)

	assert.Len(t, s.AccessToken, 64)
	assert.Len(t, s.RefreshToken, 64)
	assert.NotEqual(t, s.AccessToken, s.RefreshToken)
	assert.Equal(t, h.clock.Now().Add(12*time.Hour), s.ExpiresAt)
	assert.Equal(t, h.clock.Now().Add(7*24*time.Hour), s.RefreshExpiresAt)

	stored, err := h.sessionRepo.GetActiveSlot(ctx, "usr_1", domain.PlatformWeb)
	require.NoError(t, err)
	assert.Equal(t, HashToken(s.AccessToken), stored.AccessTokenHash)
	assert.NotContains(t, []string{stored.AccessTokenHash, stored.RefreshTokenHash}, s.AccessToken)
	assert.True(t, stored.IsActive)
	require.Len(t, stored.Devices, 1)
	assert.Equal(t, "laptop", stored.Devices[0].DeviceID)
}

func TestCreateSession_RejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.sessions.CreateSession(ctx, "", domain.UserTypeWriter, domain.PlatformWeb, laptop)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.sessions.CreateSession(ctx, "usr_1", "admin", domain.PlatformWeb, laptop)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, "tv", laptop)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateSession_OneActiveSessionPerPlatform(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformWeb, laptop)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	second, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformWeb,
		DeviceInfo{DeviceID: "tablet", DeviceType: "tablet"})
	require.NoError(t, err)
	again, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformWeb, laptop)
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.SessionID, again.SessionID)

	_, err = h.sessions.ValidateSession(ctx, first.AccessToken, "")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
	current, err := h.sessions.ValidateSession(ctx, again.AccessToken, "")
	require.NoError(t, err)
	require.Len(t, current.Devices, 2)
	assert.Equal(t, "laptop", current.Devices[0].DeviceID)
	assert.True(t, h.clock.Now().Equal(current.Devices[0].LastActive))
	assert.Equal(t, "tablet", current.Devices[1].DeviceID)

	mobile, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformMobile, laptop)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, mobile.SessionID)

	all, err := h.sessionRepo.ListByUser(ctx, "usr_1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateSession_ConcurrentLoginsShareTheSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeEmployer, domain.PlatformWeb, laptop)
			errs[i] = err
			if err == nil {
				ids[i] = s.SessionID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	all, err := h.sessionRepo.ListByUser(ctx, "usr_1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestValidateSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformWeb, laptop)
	require.NoError(t, err)

	got, err := h.sessions.ValidateSession(ctx, s.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", got.UserID)

	_, err = h.sessions.ValidateSession(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = h.sessions.ValidateSession(ctx, "not-a-token", "")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	_, err = h.sessions.ValidateSession(ctx, "", s.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	h.clock.Advance(12 * time.Hour)
	_, err = h.sessions.ValidateSession(ctx, s.AccessToken, "")
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.Equal(t, domain.KindSessionExpired, domain.KindOf(err))

	h.clock.Advance(7 * 24 * time.Hour)
	_, err = h.sessions.ValidateSession(ctx, "", s.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}

func TestRefreshSession_RotatesBothTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformWeb, laptop)
	require.NoError(t, err)

	h.clock.Advance(13 * time.Hour)
	refreshed, err := h.sessions.RefreshSession(ctx, s.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, s.SessionID, refreshed.SessionID)
	assert.NotEqual(t, s.AccessToken, refreshed.AccessToken)
	assert.NotEqual(t, s.RefreshToken, refreshed.RefreshToken)
	assert.Equal(t, h.clock.Now().Add(12*time.Hour), refreshed.ExpiresAt)

	_, err = h.sessions.ValidateSession(ctx, s.AccessToken, "")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
	_, err = h.sessions.ValidateSession(ctx, refreshed.AccessToken, "")
	assert.NoError(t, err)

	_, err = h.sessions.RefreshSession(ctx, s.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredRefreshToken)
	assert.Equal(t, domain.KindUnauthenticated, domain.KindOf(err))

	_, err = h.sessions.RefreshSession(ctx, refreshed.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshSession_KeepRefreshToken(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.KeepRefreshToken = true
	h := newHarness(t, withSessionConfig(cfg))
	ctx := context.Background()
	s, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformWeb, laptop)
	require.NoError(t, err)

	first, err := h.sessions.RefreshSession(ctx, s.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, s.RefreshToken, first.RefreshToken)
	assert.True(t, s.RefreshExpiresAt.Equal(first.RefreshExpiresAt))

	second, err := h.sessions.RefreshSession(ctx, s.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	_, err = h.sessions.ValidateSession(ctx, first.AccessToken, "")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
	_, err = h.sessions.ValidateSession(ctx, second.AccessToken, "")
	assert.NoError(t, err)

	h.clock.Advance(7 * 24 * time.Hour)
	_, err = h.sessions.RefreshSession(ctx, s.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredRefreshToken)
}

func TestRefreshSession_RejectsUnknownAndExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.sessions.RefreshSession(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredRefreshToken)
	_, err = h.sessions.RefreshSession(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredRefreshToken)

	s, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformWeb, laptop)
	require.NoError(t, err)
	h.clock.Advance(7*24*time.Hour + time.Second)
	_, err = h.sessions.RefreshSession(ctx, s.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredRefreshToken)
}

func TestRefreshSession_ConcurrentRefreshHasOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformWeb, laptop)
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, losses := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.sessions.RefreshSession(ctx, s.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredRefreshToken) {
				losses++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, losses)
}

func TestInvalidateSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformWeb, laptop)
	require.NoError(t, err)

	require.NoError(t, h.sessions.InvalidateSession(ctx, s.AccessToken))
	_, err = h.sessions.ValidateSession(ctx, s.AccessToken, "")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
	_, err = h.sessions.RefreshSession(ctx, s.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredRefreshToken)

	assert.ErrorIs(t, h.sessions.InvalidateSession(ctx, s.AccessToken), domain.ErrInvalidSession)
	assert.ErrorIs(t, h.sessions.InvalidateSession(ctx, ""), domain.ErrUnauthenticated)

	next, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformWeb, laptop)
	require.NoError(t, err)
	assert.NotEqual(t, s.SessionID, next.SessionID)

	all, err := h.sessionRepo.ListByUser(ctx, "usr_1")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestInvalidateAllSessionsForUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	web, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformWeb, laptop)
	require.NoError(t, err)
	mobile, err := h.sessions.CreateSession(ctx, "usr_1", domain.UserTypeWriter, domain.PlatformMobile, laptop)
	require.NoError(t, err)
	other, err := h.sessions.CreateSession(ctx, "usr_2", domain.UserTypeWriter, domain.PlatformWeb, laptop)
	require.NoError(t, err)

	n, err := h.sessions.InvalidateAllSessionsForUser(ctx, "usr_1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, tok := range []string{web.AccessToken, mobile.AccessToken} {
		_, err := h.sessions.ValidateSession(ctx, tok, "")
		assert.ErrorIs(t, err, domain.ErrInvalidSession)
	}
	_, err = h.sessions.ValidateSession(ctx, other.AccessToken, "")
	assert.NoError(t, err)

	_, err = h.sessions.InvalidateAllSessionsForUser(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
