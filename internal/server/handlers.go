package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Skufu/lifeline/internal/enrich"
	"github.com/Skufu/lifeline/internal/history"
	"github.com/Skufu/lifeline/internal/refine"
)

const (
	msgNoValidSymptoms = "Please use the chatbot for further assistance."
	msgNoMatch         = "No disease matches all of your symptoms. Please use the chatbot for further assistance."
)

type predictRequest struct {
	Symptoms           []string `json:"symptoms"`
	AdditionalSymptoms []string `json:"additional_symptoms"`
	RefinementCount    int      `json:"refinement_count"`
	Username           string   `json:"username"`
}

type detailsRequest struct {
	Disease  string   `json:"disease"`
	Symptoms []string `json:"symptoms"`
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) getSymptoms(c *gin.Context) {
	symptoms, err := s.engine.Symptoms()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symptoms": symptoms})
}

func (s *Server) predict(c *gin.Context) {
	var req predictRequest
	if !s.bind(c, &req) {
		return
	}

	res, err := s.engine.Refine(req.Symptoms, req.AdditionalSymptoms, req.RefinementCount)
	if err != nil {
		s.fail(c, err)
		return
	}

	if res.Kind.Terminal() && res.Diagnosis() != "" && strings.TrimSpace(req.Username) != "" {
		s.record(c, req.Username, res)
	}

	switch res.Kind {
	case refine.NoValidSymptoms:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "No valid symptoms provided.",
			"chatbot_suggested": true,
			"message":           msgNoValidSymptoms,
		})
	case refine.NoMatch:
		c.JSON(http.StatusOK, gin.H{
			"disease":           res.FallbackDisease,
			"matched":           false,
			"chatbot_suggested": true,
			"message":           msgNoMatch,
		})
	case refine.SingleDiagnosis:
		c.JSON(http.StatusOK, gin.H{
			"disease": res.Disease,
			"matched": true,
			"source":  res.Source,
		})
	case refine.RefinementNeeded:
		c.JSON(http.StatusOK, gin.H{
			"possible_diseases": res.Candidates,
			"ask_more_symptoms": []string{res.AskSymptom},
			"refinement_count":  req.RefinementCount,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected result", "code": refine.CodePredictionFailure})
	}
}

// record appends a terminal diagnosis to the user's history. Failures are
// logged only.
func (s *Server) record(c *gin.Context, username string, res refine.Result) {
	if s.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	err := s.history.Append(ctx, history.Entry{
		Username: username,
		Disease:  res.Diagnosis(),
		Symptoms: res.Symptoms,
	})
	if err != nil {
		s.logger(c).WithError(err).WithField("username", username).Warn("failed to record prediction history")
	}
}

func (s *Server) getDetails(c *gin.Context) {
	var req detailsRequest
	if !s.bind(c, &req) {
		return
	}
	disease := strings.TrimSpace(req.Disease)
	if disease == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "disease is required", "code": refine.CodeInvalidInput})
		return
	}

	c.JSON(http.StatusOK, s.enrich.FetchDetails(c.Request.Context(), disease, req.Symptoms))
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if !s.bind(c, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required", "code": refine.CodeInvalidInput})
		return
	}

	reply, err := s.enrich.Chat(c.Request.Context(), req.Message)
	if err != nil {
		if errors.Is(err, enrich.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat is unavailable", "code": refine.CodeResourceUnavailable})
			return
		}
		s.logger(c).WithError(err).Error("chat failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": reply})
}

func (s *Server) listHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled", "code": refine.CodeResourceUnavailable})
		return
	}

	entries, err := s.history.List(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, history.ErrNoUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": refine.CodeInvalidInput})
			return
		}
		s.logger(c).WithError(err).Error("failed to list history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// bind decodes the JSON body and answers 400 or 413 on failure.
func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large", "code": refine.CodeInvalidInput})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": refine.CodeInvalidInput})
		return false
	}
	return true
}

// fail maps refinement errors to HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	var rerr *refine.Error
	if !errors.As(err, &rerr) {
		s.logger(c).WithError(err).Error("unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch rerr.Code {
	case refine.CodeResourceUnavailable:
		status = http.StatusServiceUnavailable
	case refine.CodeInvalidInput:
		status = http.StatusBadRequest
	case refine.CodePredictionFailure:
		s.logger(c).WithError(err).Error("prediction failed")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": rerr.Message, "code": rerr.Code})
}
