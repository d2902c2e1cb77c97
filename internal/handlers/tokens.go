package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dorepo/restgw/internal/apierr"
	"github.com/dorepo/restgw/internal/dispatch"
	"github.com/dorepo/restgw/internal/repo"
)

// Token grants time-limited access to one datastream.
type Token struct {
	Token   string    `json:"token"`
	PID     string    `json:"pid"`
	DSID    string    `json:"dsid"`
	Expires time.Time `json:"expires"`
}

// TokenStore issues and redeems datastream access tokens. Tokens are held in
// memory and expire after the configured TTL.
type TokenStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]Token
	now    func() time.Time
}

// NewTokenStore creates a store issuing tokens valid for ttl.
func NewTokenStore(ttl time.Duration) *TokenStore {
	return &TokenStore{
		ttl:    ttl,
		tokens: make(map[string]Token),
		now:    time.Now,
	}
}

// Issue mints a token for the given datastream.
func (s *TokenStore) Issue(pid, dsid string) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	token := Token{
		Token:   uuid.NewString(),
		PID:     pid,
		DSID:    dsid,
		Expires: s.now().Add(s.ttl),
	}
	s.tokens[token.Token] = token
	return token
}

// Grant consumes a token when it addresses the given datastream. A token is
// single use; presenting it against a different datastream neither grants
// access nor spends it.
func (s *TokenStore) Grant(value, pid, dsid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[value]
	if !ok || s.now().After(token.Expires) {
		delete(s.tokens, value)
		return false
	}
	if token.PID != pid || token.DSID != dsid {
		return false
	}
	delete(s.tokens, value)
	return true
}

// sweep drops expired tokens. Callers hold the lock.
func (s *TokenStore) sweep() {
	now := s.now()
	for value, token := range s.tokens {
		if now.After(token.Expires) {
			delete(s.tokens, value)
		}
	}
}

// IssueDatastreamToken mints a time-limited token for the resolved
// datastream.
func (h *Handlers) IssueDatastreamToken(ctx context.Context, req *dispatch.Request) (any, error) {
	if req.Resource.Kind != repo.ResourceDatastream {
		return nil, apierr.New(http.StatusBadRequest, "no datastream addressed")
	}
	token := h.tokens.Issue(req.Resource.Object.PID, req.Resource.Datastream.ID)
	return token, nil
}
