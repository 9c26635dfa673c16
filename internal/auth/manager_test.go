package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorita/denkiwatch/pkg/models"
)

// memStore is an in-memory TokenStore
type memStore struct {
	mu   sync.Mutex
	cred *models.Credential
}

func (s *memStore) StoreToken(token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &models.Credential{Token: token, ExpiresAt: expiresAt, CreatedAt: time.Now()}
	return nil
}

func (s *memStore) GetValidToken() (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil || !s.cred.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return s.cred, nil
}

// fakeAuthenticator counts logins and can block to expose concurrency
type fakeAuthenticator struct {
	mu     sync.Mutex
	logins int
	delay  time.Duration
	err    error
}

func (a *fakeAuthenticator) Login(ctx context.Context, username, password string) (string, error) {
	a.mu.Lock()
	a.logins++
	n := a.logins
	a.mu.Unlock()

	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.err != nil {
		return "", a.err
	}
	return "tok-" + string(rune('0'+n)), nil
}

func (a *fakeAuthenticator) loginCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logins
}

func TestTokenUsesStoredCredential(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.StoreToken("stored-tok", time.Now().Add(time.Hour)))

	authn := &fakeAuthenticator{}
	m := NewManager(store, authn, "user", "pass", nil)

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored-tok", token)
	assert.Equal(t, 0, authn.loginCount(), "a valid stored token must not trigger a login")
}

func TestTokenAuthenticatesWhenMissing(t *testing.T) {
	store := &memStore{}
	authn := &fakeAuthenticator{}
	m := NewManager(store, authn, "user", "pass", nil)

	before := time.Now()
	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 1, authn.loginCount())

	// Stored with the fixed 24-hour local expiry policy
	cred, err := store.GetValidToken()
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, token, cred.Token)
	assert.WithinDuration(t, before.Add(TokenTTL), cred.ExpiresAt, 5*time.Second)
}

func TestTokenAuthenticatesWhenExpired(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.StoreToken("old-tok", time.Now().Add(-time.Minute)))

	authn := &fakeAuthenticator{}
	m := NewManager(store, authn, "user", "pass", nil)

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "old-tok", token)
	assert.Equal(t, 1, authn.loginCount())
}

func TestRefreshWithoutCredentials(t *testing.T) {
	m := NewManager(&memStore{}, &fakeAuthenticator{}, "", "", nil)

	_, err := m.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrCredentialsNotConfigured)
}

func TestRefreshPropagatesAuthFailure(t *testing.T) {
	authn := &fakeAuthenticator{err: ErrLoginFormNotFound}
	m := NewManager(&memStore{}, authn, "user", "pass", nil)

	_, err := m.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrLoginFormNotFound)

	// Nothing stored after a failed login
	cred, err2 := (&memStore{}).GetValidToken()
	require.NoError(t, err2)
	assert.Nil(t, cred)
}

func TestConcurrentRefreshSingleLogin(t *testing.T) {
	store := &memStore{}
	authn := &fakeAuthenticator{delay: 100 * time.Millisecond}
	m := NewManager(store, authn, "user", "pass", nil)

	const callers = 5
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.Refresh(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
	}

	assert.Equal(t, 1, authn.loginCount(),
		"concurrent refreshes must collapse into one login flow")
	for i := 1; i < callers; i++ {
		assert.Equal(t, tokens[0], tokens[i], "all callers share the same result")
	}
}

func TestBrowserLoginRequiresCredentials(t *testing.T) {
	a := NewBrowserAuthenticator(true, time.Minute, nil)
	_, err := a.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrCredentialsNotConfigured)
}

func TestErrorKindsAreDistinct(t *testing.T) {
	kinds := []error{ErrCredentialsNotConfigured, ErrLoginFormNotFound, ErrTokenNotCaptured}
	for i, a := range kinds {
		for j, b := range kinds {
			if i != j {
				assert.False(t, errors.Is(a, b))
			}
		}
	}
}
