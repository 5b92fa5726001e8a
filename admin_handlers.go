package main

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	sessionCookieName = "seals_admin_session"
	sessionLifetime   = 12 * time.Hour
	sessionTokenLen   = 48
)

// sessionStore holds the issued admin session tokens in memory. Sessions do
// not survive a restart; admins just log in again.
type sessionStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{tokens: make(map[string]time.Time)}
}

func (s *sessionStore) create() string {
	token := generateRandomToken(sessionTokenLen)
	s.mu.Lock()
	s.tokens[token] = time.Now().Add(sessionLifetime)
	s.mu.Unlock()
	return token
}

func (s *sessionStore) valid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(s.tokens, token)
		return false
	}
	return true
}

func (s *sessionStore) revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// checkAdminPassword verifies the submitted password against the configured
// credential. A bcrypt hash takes precedence over the plaintext variable.
func (a *App) checkAdminPassword(password string) bool {
	if a.Cfg.AdminPasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.Cfg.AdminPasswordHash), []byte(password)) == nil
	}
	if a.Cfg.AdminPassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(a.Cfg.AdminPassword)) == 1
}

// requireAdmin gates a handler behind a valid session cookie.
func (a *App) requireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || !a.sessions.valid(cookie.Value) {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		handler(w, r)
	}
}

func (a *App) adminLoginHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !a.checkAdminPassword(body.Password) {
		log.Printf("[W] [Auth] Failed admin login from %s", r.RemoteAddr)
		writeJSONError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token := a.sessions.create()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sessionLifetime),
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) adminLogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		a.sessions.revoke(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) adminMeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

// adminTriggerScrapeHandler runs one pipeline pass synchronously and
// reports its outcome. The pipeline's own mutex serializes concurrent
// triggers.
func (a *App) adminTriggerScrapeHandler(w http.ResponseWriter, r *http.Request) {
	log.Printf("[I] [Admin] Manual scrape triggered from %s", r.RemoteAddr)
	outcome, err := a.Pipeline.Run(r.Context())
	if err != nil {
		log.Printf("[E] [Admin] Manual scrape failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (a *App) adminScrapeHistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	runs, err := a.Store.ScrapeRuns(limit)
	if err != nil {
		log.Printf("[E] [Admin] Could not load scrape history: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "could not load scrape history")
		return
	}
	if runs == nil {
		runs = []ScrapeRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *App) adminSealsHandler(w http.ResponseWriter, r *http.Request) {
	seals, err := a.Store.AllSealsWithLocations()
	if err != nil {
		log.Printf("[E] [Admin] Could not load seal list: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "could not load seal list")
		return
	}
	if seals == nil {
		seals = []AdminSeal{}
	}
	writeJSON(w, http.StatusOK, seals)
}

func (a *App) adminAddLocationHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SealID   int    `json:"sealId"`
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.Location = strings.TrimSpace(body.Location)
	if body.SealID <= 0 || body.Location == "" {
		writeJSONError(w, http.StatusBadRequest, "sealId and location are required")
		return
	}
	if err := a.Store.AddLocation(body.SealID, body.Location); err != nil {
		log.Printf("[E] [Admin] Could not add location: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "could not add location")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) adminUpdateLocationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid location id")
		return
	}
	var body struct {
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.Location = strings.TrimSpace(body.Location)
	if body.Location == "" {
		writeJSONError(w, http.StatusBadRequest, "location is required")
		return
	}
	if err := a.Store.UpdateLocation(id, body.Location); err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) adminDeleteLocationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid location id")
		return
	}
	if err := a.Store.DeleteLocation(id); err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) adminUpdateSealMaxHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid seal id")
		return
	}
	var body struct {
		MaxSeals int `json:"maxSeals"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.MaxSeals < 1 {
		writeJSONError(w, http.StatusBadRequest, "maxSeals must be positive")
		return
	}
	if err := a.Store.UpdateSealMax(id, body.MaxSeals); err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
