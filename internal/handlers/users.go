package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// UserHandler serves profile, search and follow endpoints.
type UserHandler struct {
	Catalog Catalog
}

// Me handles GET /user/me.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Catalog.Me(r.Context(), bearerToken(r))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newUserResponse(user))
}

type usernameRequest struct {
	Username string `json:"username"`
}

// SetUsername handles PUT and PATCH /user/me.
func (h UserHandler) SetUsername(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(r.Context(), w, "invalid request body")
		return
	}

	user, err := h.Catalog.SetMyUsername(r.Context(), bearerToken(r), req.Username)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newUserResponse(user))
}

// Search handles GET /user/search?q=.
func (h UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	users, err := h.Catalog.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newUserList(users))
}

// Suggestions handles GET /users/search?q=, answering with the bare
// usernames under "suggestions" as older clients expect.
func (h UserHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	users, err := h.Catalog.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	respondJSON(r.Context(), w, http.StatusOK, suggestionsResponse{Suggestions: names})
}

// Validate handles GET /user/validate?username=.
func (h UserHandler) Validate(w http.ResponseWriter, r *http.Request) {
	exists, err := h.Catalog.UsernameExists(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]bool{"exists": exists})
}

// ByUsername handles GET /user?username=.
func (h UserHandler) ByUsername(w http.ResponseWriter, r *http.Request) {
	user, err := h.Catalog.UserByUsername(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newUserResponse(user))
}

// FollowInfo handles GET /user/{id}/follow.
func (h UserHandler) FollowInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.Catalog.FollowInfo(r.Context(), chi.URLParam(r, "id"), bearerToken(r))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newFollowInfoResponse(info))
}

// Follow handles POST /user/{id}/follow.
func (h UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	info, err := h.Catalog.Follow(r.Context(), bearerToken(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newFollowInfoResponse(info))
}

// Unfollow handles DELETE /user/{id}/follow.
func (h UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	info, err := h.Catalog.Unfollow(r.Context(), bearerToken(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newFollowInfoResponse(info))
}
