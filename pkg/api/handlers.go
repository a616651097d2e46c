package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"scenefeed/pkg/feed"
	"scenefeed/pkg/models"
	"scenefeed/pkg/mutate"
	"scenefeed/pkg/utils"
)

func parseLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func boolParam(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	scenarioID := mux.Vars(r)["id"]
	opts := feed.PageOptions{IncludeReplies: boolParam(r, "replies")}
	if profile := r.URL.Query().Get("profile"); profile != "" {
		opts.Filter = func(p models.Post) bool { return p.AuthorProfileID == profile }
	}
	page, err := s.feed.Page(scenarioID, r.URL.Query().Get("cursor"), parseLimit(r), opts)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, page)
}

func (s *Server) handleProfileFeed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tab := feed.ProfileTab(r.URL.Query().Get("tab"))
	if tab == "" {
		tab = feed.TabPosts
	}
	page, err := s.feed.ProfileFeedPage(vars["id"], vars["pid"], tab, r.URL.Query().Get("cursor"), parseLimit(r))
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, page)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	page, err := s.feed.MessagesPage(vars["id"], vars["cid"], r.URL.Query().Get("cursor"), parseLimit(r), boolParam(r, "desc"))
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, page)
}

func (s *Server) handleThreadRoot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	root, ok := s.feed.ThreadRoot(vars["id"], vars["postID"])
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "post not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, root)
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		ProfileID string `json:"profileId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ProfileID == "" {
		utils.JSONError(w, http.StatusBadRequest, "profileId required")
		return
	}
	liked, err := s.mutate.ToggleLike(r.Context(), vars["id"], body.ProfileID, vars["postID"])
	if err != nil {
		// Optimistic state is already applied; the caller decides
		// whether to revert it.
		utils.JSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"ok": true, "liked": liked})
}

func (s *Server) handleReorderPins(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PostIDs []string `json:"postIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.mutate.ReorderPins(mux.Vars(r)["id"], body.PostIDs); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSetPinnedPost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PostID     *string `json:"postId"`
		ScenarioID string  `json:"scenarioId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.mutate.SetPinnedPost(r.Context(), body.ScenarioID, mux.Vars(r)["id"], body.PostID); err != nil {
		utils.JSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleGMSheets(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Updates         []mutate.SheetUpdate `json:"updates"`
		AuthorProfileID string               `json:"authorProfileId"`
		Note            string               `json:"note"`
		Commit          bool                 `json:"commit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	scenarioID := mux.Vars(r)["id"]

	var recap models.Post
	var err error
	if body.Commit {
		recap, err = s.mutate.GMCommitSheetAndPostText(r.Context(), scenarioID, body.AuthorProfileID, body.Note, body.Updates)
	} else {
		recap, err = s.mutate.GMApplySheetUpdate(scenarioID, body.AuthorProfileID, body.Note, body.Updates)
	}
	switch {
	case errors.Is(err, mutate.ErrPartialCommit):
		// Sheets landed remotely, the recap post did not. Surface the
		// inconsistency rather than masking it as success or failure.
		_ = utils.JSONWrite(w, http.StatusMultiStatus, map[string]any{
			"ok":    false,
			"recap": recap,
			"error": err.Error(),
		})
	case errors.Is(err, mutate.ErrNoRemote):
		utils.JSONError(w, http.StatusConflict, err.Error())
	case err != nil:
		utils.JSONError(w, http.StatusBadGateway, err.Error())
	default:
		_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"ok": true, "recap": recap})
	}
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		SenderProfileID string   `json:"senderProfileId"`
		Text            string   `json:"text"`
		ImageURLs       []string `json:"imageUrls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SenderProfileID == "" {
		utils.JSONError(w, http.StatusBadRequest, "senderProfileId required")
		return
	}
	msg, err := s.mutate.SendMessage(r.Context(), vars["id"], vars["cid"], body.SenderProfileID, body.Text, body.ImageURLs)
	if err != nil {
		// The optimistic row is stored with clientStatus "failed";
		// return it with the error so the caller can retry.
		_ = utils.JSONWrite(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "message": msg})
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, msg)
}
