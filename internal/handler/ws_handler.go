package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/service"
	ws "github.com/stemsi/exstem-live/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler carries the in-exam traffic of one attempt over a WebSocket.
// Every action goes through the same services as the REST endpoints.
type WSHandler struct {
	attempts  *service.AttemptService
	answers   *service.AnswerService
	integrity *service.IntegrityService
	scoring   *service.ScoringService
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	attempts *service.AttemptService,
	answers *service.AnswerService,
	integrity *service.IntegrityService,
	scoring *service.ScoringService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		attempts:  attempts,
		answers:   answers,
		integrity: integrity,
		scoring:   scoring,
		log:       log.With().Str("component", "ws_handler").Logger(),
		upgrader:  buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream?token=...
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}
	studentID := claims.UserID

	// Refuse the upgrade unless the attempt is the caller's and still running.
	state, err := h.attempts.State(c.Request.Context(), attemptID, studentID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if !state.Attempt.IsActive() {
		fail(c, h.log, service.ErrAttemptNotActive)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	// The request context ends with the handler; actions run on a detached
	// one so a half-written answer is not cancelled by a disconnect.
	ctx := context.WithoutCancel(c.Request.Context())

	for {
		action, raw, err := ws.ReadMessage(conn)
		if err != nil {
			if errors.Is(err, ws.ErrMalformed) {
				ws.WriteError(conn, string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var done bool
		switch action {
		case ws.ActionAnswer:
			h.handleAnswer(ctx, conn, attemptID, studentID, raw)
		case ws.ActionViolation:
			done = h.handleViolation(ctx, conn, attemptID, studentID, raw)
		case ws.ActionSubmit:
			done = h.handleSubmit(ctx, conn, wsLog, attemptID, studentID)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
			ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(action))
		}

		if done {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt closed"))
			return
		}
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, conn *websocket.Conn, attemptID uuid.UUID, studentID int, raw []byte) {
	var msg ws.AnswerRequest
	if err := json.Unmarshal(raw, &msg); err != nil || msg.QuestionID == uuid.Nil || msg.ChoiceID == uuid.Nil {
		ws.WriteError(conn, string(response.ErrValidation), "question_id and choice_id are required")
		return
	}

	answer, err := h.answers.Record(ctx, attemptID, studentID, &model.RecordAnswerRequest{
		QuestionID: msg.QuestionID,
		ChoiceID:   msg.ChoiceID,
	})
	if err != nil {
		h.writeServiceError(conn, err)
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{
		Event:      ws.EventSaved,
		QuestionID: answer.QuestionID,
		ChoiceID:   answer.ChoiceID,
	})
}

// handleViolation reports whether the attempt was closed by this report.
func (h *WSHandler) handleViolation(ctx context.Context, conn *websocket.Conn, attemptID uuid.UUID, studentID int, raw []byte) bool {
	var msg ws.ViolationRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		ws.WriteError(conn, string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
		return false
	}

	outcome, err := h.integrity.Record(ctx, attemptID, studentID, &model.RecordViolationRequest{
		Type:    model.ViolationType(msg.Type),
		Details: msg.Details,
	})
	if err != nil {
		h.writeServiceError(conn, err)
		return errors.Is(err, service.ErrAttemptNotActive)
	}

	event := ws.EventViolation
	if outcome.KickedOut {
		event = ws.EventKickedOut
	}
	ws.WriteTyped(conn, ws.ViolationResponse{
		Event:          event,
		ViolationCount: outcome.ViolationCount,
		KickedOut:      outcome.KickedOut,
	})
	return outcome.KickedOut
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, studentID int) bool {
	result, err := h.scoring.Submit(ctx, attemptID, studentID)
	if err != nil {
		h.writeServiceError(conn, err)
		return errors.Is(err, service.ErrAttemptNotActive)
	}

	wsLog.Info().
		Int("score", result.Score).
		Int("total_points", result.TotalPoints).
		Msg("Attempt submitted over WebSocket")

	ws.WriteTyped(conn, ws.SubmittedResponse{
		Event:       ws.EventSubmitted,
		Score:       result.Score,
		TotalPoints: result.TotalPoints,
		Percentage:  result.Percentage,
		Passed:      result.Passed,
	})
	return true
}

// writeServiceError sends the same code the REST surface would use.
func (h *WSHandler) writeServiceError(conn *websocket.Conn, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		ws.WriteError(conn, string(response.ErrValidation), verr.Error())
		return
	}
	_, code := errorStatus(err)
	if code == response.ErrInternal {
		h.log.Error().Err(err).Msg("WebSocket action failed")
	}
	ws.WriteError(conn, string(code), response.GetMessage(code))
}
