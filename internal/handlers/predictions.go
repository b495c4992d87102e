package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/battlelab/matchup/internal/battle"
	"github.com/battlelab/matchup/internal/logic"
	"github.com/battlelab/matchup/internal/model"
	"github.com/battlelab/matchup/internal/models"
)

// PredictBest ranks candidate moves for the attacker by win probability
// @Summary Predict Best Move
// @Tags Prediction
// @Accept json
// @Produce json
// @Param request body models.PredictRequest true "Matchup and candidate moves"
// @Success 200 {object} models.PredictionResult
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 503 {object} map[string]string "No model available"
// @Router /api/v1/predict [post]
func (h *Handler) PredictBest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	var req models.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	attacker, err := req.Attacker.ToCombatant()
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "attacker: "+err.Error())
		return
	}
	defender, err := req.Defender.ToCombatant()
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "defender: "+err.Error())
		return
	}
	candidates := make([]models.Move, 0, len(req.Candidates))
	for i, in := range req.Candidates {
		mv, err := in.ToMove()
		if err != nil {
			h.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("candidates[%d]: %v", i, err))
			return
		}
		candidates = append(candidates, mv)
	}
	var opponentMove *models.Move
	if req.OpponentMove != nil {
		mv, err := req.OpponentMove.ToMove()
		if err != nil {
			h.errorResponse(w, http.StatusBadRequest, "opponent_move: "+err.Error())
			return
		}
		opponentMove = &mv
	}

	res, err := h.prediction.PredictBest(r.Context(), attacker, defender, candidates, opponentMove)
	if err != nil {
		status, msg := predictionError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Errorw("Failed to predict best move",
				"error", err,
				"requestID", requestIDFromContext(r.Context()),
				"attacker", attacker.ID,
				"defender", defender.ID,
			)
		}
		h.errorResponse(w, status, msg)
		return
	}

	h.jsonResponse(w, http.StatusOK, res)
}

// ReloadModel swaps in the bundle currently promoted for the served stage
// @Summary Reload Model
// @Tags Admin
// @Produce json
// @Success 200 {object} models.ReloadModelResponse
// @Failure 409 {object} map[string]string "Bundle rejected"
// @Failure 503 {object} map[string]string "No model available"
// @Router /api/v1/admin/model/reload [post]
func (h *Handler) ReloadModel(w http.ResponseWriter, r *http.Request) {
	b, err := h.prediction.ReloadModel(r.Context())
	if err != nil {
		h.logger.Errorw("Failed to reload model", "error", err, "requestID", requestIDFromContext(r.Context()))
		switch {
		case model.Fatal(err):
			h.errorResponse(w, http.StatusConflict, err.Error())
		case errors.Is(err, model.ErrNoModel):
			h.errorResponse(w, http.StatusServiceUnavailable, "No model available")
		default:
			h.errorResponse(w, http.StatusInternalServerError, "Failed to reload model")
		}
		return
	}

	h.jsonResponse(w, http.StatusOK, models.ReloadModelResponse{
		ModelName:     b.Name,
		Stage:         b.Stage,
		Version:       b.Version,
		SchemaVersion: b.SchemaVersion,
		Source:        b.Source,
	})
}

func predictionError(err error) (int, string) {
	var vErr *models.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Error()
	case errors.Is(err, logic.ErrNoCandidates),
		errors.Is(err, battle.ErrNoOffensiveMove),
		errors.Is(err, models.ErrUnknownType),
		errors.Is(err, models.ErrUnknownCategory):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrNoModel):
		return http.StatusServiceUnavailable, "No model available"
	default:
		return http.StatusInternalServerError, "Failed to compute prediction"
	}
}

func validationMessage(err error) string {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		return fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag())
	}
	return err.Error()
}
