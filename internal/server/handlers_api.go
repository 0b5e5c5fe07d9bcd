package server

import (
	"context"
	"errors"
	"net/http"

	"artfusion/internal/game"

	"github.com/gin-gonic/gin"
)

type sessionURI struct {
	ID string `uri:"id" binding:"required,max=64"`
}

type turnURI struct {
	ID      string `uri:"id" binding:"required,max=64"`
	Address string `uri:"address" binding:"required,address"`
}

type addressRequest struct {
	Address string `json:"address" binding:"required,address"`
}

type stateQuery struct {
	Address string `form:"address" binding:"omitempty,address"`
}

type turnUpdateRequest struct {
	HasDrawn    *bool   `json:"has_drawn"`
	Prompt      *string `json:"prompt" binding:"omitempty,prompt"`
	DrawingData *string `json:"drawing_data" binding:"omitempty,drawing"`
}

type voteRequest struct {
	Address   string `json:"address" binding:"required,address"`
	Candidate *int   `json:"candidate" binding:"required,min=0"`
}

type mintRequest struct {
	Title string `json:"title" binding:"omitempty,title"`
}

type eventsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

var sessionMessages = bindMessages{
	"ID": {"required": "session id is required", "max": "session id is too long"},
}

var addressMessages = bindMessages{
	"Address": {
		"required": "address is required",
		"address":  "address must be 128 letters, digits or -_.: characters at most",
	},
}

var turnUpdateMessages = bindMessages{
	"Prompt":      {"prompt": "prompt must be 280 plain characters or fewer"},
	"DrawingData": {"drawing": "drawing must be an image data URI under 2MB"},
}

var voteMessages = bindMessages{
	"Address":   addressMessages["Address"],
	"Candidate": {"required": "candidate is required", "min": "candidate must not be negative"},
}

var mintMessages = bindMessages{
	"Title": {"title": "title must be 140 plain characters or fewer"},
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		writeError(c, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	ctx := c.Request.Context()
	session, err := s.coord.CreateSession(ctx)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.recordEvent(ctx, session.ID, "", eventSessionCreated, session.Phase, EventPayload{})
	writeJSON(c, http.StatusCreated, gin.H{
		"session_id": session.ID,
		"session":    session,
	})
}

// handleGetSession is the fetch-state call clients poll. An address in the
// query doubles as a heartbeat, and stale participants are swept here.
func (s *Server) handleGetSession(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	var query stateQuery
	if !bindQuery(c, &query, addressMessages) {
		return
	}
	ctx := c.Request.Context()
	if query.Address != "" {
		if _, err := s.coord.Heartbeat(ctx, uri.ID, query.Address); err != nil && !errors.Is(err, game.ErrParticipantNotFound) {
			s.writeDomainError(c, err)
			return
		}
	}
	swept, err := s.coord.SweepInactive(ctx, uri.ID, s.cfg.InactiveThreshold())
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	snap, err := s.coord.Snapshot(ctx, uri.ID)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	if len(swept) > 0 {
		s.recordEvent(ctx, uri.ID, "", eventParticipantsSwept, snap.Session.Phase, EventPayload{Count: len(swept)})
		s.ws.Broadcast(uri.ID, snap)
	}
	writeJSON(c, http.StatusOK, snap)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	ctx := c.Request.Context()
	if err := s.coord.TeardownSession(ctx, uri.ID); err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.cancelVoteDeadline(uri.ID)
	s.ws.Close(uri.ID)
	s.recordEvent(ctx, uri.ID, "", eventSessionDeleted, "", EventPayload{})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleJoin(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	var req addressRequest
	if !bindJSON(c, &req, addressMessages, "invalid request") {
		return
	}
	ctx := c.Request.Context()
	session, err := s.coord.AddParticipant(ctx, uri.ID, req.Address)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.recordEvent(ctx, uri.ID, req.Address, eventParticipantJoined, session.Phase, EventPayload{
		Address: req.Address,
		Count:   len(session.Participants),
	})
	s.broadcastSession(ctx, uri.ID)
	writeJSON(c, http.StatusOK, session)
}

func (s *Server) handleLeave(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	var req addressRequest
	if !bindJSON(c, &req, addressMessages, "invalid request") {
		return
	}
	ctx := c.Request.Context()
	session, err := s.coord.RemoveParticipant(ctx, uri.ID, req.Address)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	if session == nil {
		s.cancelVoteDeadline(uri.ID)
		s.ws.Close(uri.ID)
		s.recordEvent(ctx, uri.ID, req.Address, eventSessionDeleted, "", EventPayload{Reason: "empty"})
		writeJSON(c, http.StatusOK, gin.H{"deleted": true})
		return
	}
	s.recordEvent(ctx, uri.ID, req.Address, eventParticipantLeft, session.Phase, EventPayload{
		Address: req.Address,
		Count:   len(session.Participants),
	})
	s.broadcastSession(ctx, uri.ID)
	writeJSON(c, http.StatusOK, session)
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	var req addressRequest
	if !bindJSON(c, &req, addressMessages, "invalid request") {
		return
	}
	session, err := s.coord.Heartbeat(c.Request.Context(), uri.ID, req.Address)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, session)
}

func (s *Server) handleStart(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	var req addressRequest
	if !bindJSON(c, &req, addressMessages, "invalid request") {
		return
	}
	ctx := c.Request.Context()
	session, err := s.coord.StartSession(ctx, uri.ID, req.Address)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.recordEvent(ctx, uri.ID, req.Address, eventSessionStarted, session.Phase, EventPayload{
		NextArtist: session.CurrentArtist(),
		Count:      len(session.TurnOrder),
	})
	s.broadcastSession(ctx, uri.ID)
	writeJSON(c, http.StatusOK, session)
}

func (s *Server) handleGetTurn(c *gin.Context) {
	var uri turnURI
	if !bindURI(c, &uri, addressMessages) {
		return
	}
	turn, err := s.coord.Turn(c.Request.Context(), uri.ID, uri.Address)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, turn)
}

func (s *Server) handleUpdateTurn(c *gin.Context) {
	var uri turnURI
	if !bindURI(c, &uri, addressMessages) {
		return
	}
	var req turnUpdateRequest
	if !bindJSON(c, &req, turnUpdateMessages, "invalid turn update") {
		return
	}
	update := game.TurnUpdate{
		HasDrawn:    req.HasDrawn,
		DrawingData: req.DrawingData,
	}
	if req.Prompt != nil {
		prompt, _ := validatePrompt(*req.Prompt)
		update.Prompt = &prompt
	}
	ctx := c.Request.Context()
	turn, err := s.coord.UpdateDrawingTurn(ctx, uri.ID, uri.Address, update)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.broadcastSession(ctx, uri.ID)
	writeJSON(c, http.StatusOK, turn)
}

func (s *Server) handleLock(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	var req addressRequest
	if !bindJSON(c, &req, addressMessages, "invalid request") {
		return
	}
	ctx := c.Request.Context()
	result, err := s.coord.LockTurn(ctx, uri.ID, req.Address)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.recordEvent(ctx, uri.ID, req.Address, eventTurnLocked, result.Phase, EventPayload{
		Address:        req.Address,
		TurnSequence:   result.TurnSequence,
		NextArtist:     result.NextArtist,
		CombinedPrompt: result.CombinedPrompt,
	})
	s.broadcastSession(ctx, uri.ID)
	writeJSON(c, http.StatusOK, result)
}

// handleGenerate runs detached from the request context so a client
// dropping its connection does not abort generation for everyone else.
func (s *Server) handleGenerate(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	ctx := context.WithoutCancel(c.Request.Context())
	result, produced, err := s.coord.RequestGeneration(ctx, uri.ID)
	if err != nil {
		if errors.Is(err, game.ErrGenerationFailed) {
			s.recordEvent(ctx, uri.ID, "", eventGenerationFailed, game.PhaseDrawing, EventPayload{Reason: err.Error()})
			s.broadcastSession(ctx, uri.ID)
		}
		s.writeDomainError(c, err)
		return
	}
	if produced {
		s.recordEvent(ctx, uri.ID, "", eventGenerationDone, game.PhaseVoting, EventPayload{
			CombinedPrompt: result.CombinedPrompt,
			Candidates:     len(result.Images),
			Degraded:       result.Degraded,
		})
		s.scheduleVoteDeadline(uri.ID)
		s.broadcastSession(ctx, uri.ID)
	}
	writeJSON(c, http.StatusOK, result)
}

func (s *Server) handleGetGeneration(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	result, err := s.coord.FetchGenerationResult(c.Request.Context(), uri.ID)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, result)
}

func (s *Server) handleVote(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	var req voteRequest
	if !bindJSON(c, &req, voteMessages, "invalid vote") {
		return
	}
	ctx := c.Request.Context()
	result, err := s.coord.SubmitVote(ctx, uri.ID, req.Address, *req.Candidate)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	phase := game.PhaseVoting
	if result.Complete {
		phase = game.PhaseComplete
		s.cancelVoteDeadline(uri.ID)
	}
	s.recordEvent(ctx, uri.ID, req.Address, eventVoteSubmitted, phase, EventPayload{
		Address:   req.Address,
		Candidate: req.Candidate,
		Count:     len(result.Votes),
	})
	s.broadcastSession(ctx, uri.ID)
	writeJSON(c, http.StatusOK, result)
}

func (s *Server) handleGetVotes(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.coord.Session(ctx, uri.ID); err != nil {
		s.writeDomainError(c, err)
		return
	}
	votes, err := s.coord.Votes(ctx, uri.ID)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	final, err := s.coord.FinalSelection(ctx, uri.ID)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"votes": votes,
		"final": final,
	})
}

func (s *Server) handleMint(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	var req mintRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, mintMessages, "invalid mint request") {
		return
	}
	title, _ := validateTitle(req.Title)
	ctx := c.Request.Context()
	assetID, err := s.coord.Mint(ctx, uri.ID, title)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	session, err := s.coord.Session(ctx, uri.ID)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.recordEvent(ctx, uri.ID, "", eventArtworkMinted, session.Phase, EventPayload{AssetID: assetID})
	writeJSON(c, http.StatusOK, gin.H{
		"asset_id": assetID,
		"stakes":   game.EqualStakes(session.TurnOrder),
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri, sessionMessages) {
		return
	}
	var query eventsQuery
	if !bindQuery(c, &query, bindMessages{"Limit": {"min": "limit must be at least 1", "max": "limit must be 500 or fewer"}}) {
		return
	}
	if s.db == nil {
		writeError(c, http.StatusNotFound, "event log is not enabled")
		return
	}
	if query.Limit == 0 {
		query.Limit = 100
	}
	events, err := s.listEvents(c.Request.Context(), uri.ID, query.Limit)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", uri.ID).Msg("list events failed")
		writeError(c, http.StatusInternalServerError, "failed to load events")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": events})
}
