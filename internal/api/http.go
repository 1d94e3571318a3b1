package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/miradorstack/mirador-churn/internal/models"
	"github.com/miradorstack/mirador-churn/internal/services"
	"github.com/miradorstack/mirador-churn/internal/utils"
)

const rootMessage = "API is up and running!"

// HTTPServer exposes the predictor as a JSON API.
type HTTPServer struct {
	logger    *slog.Logger
	predictor Predictor
	router    *gin.Engine
}

type fieldDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

type batchResponse struct {
	Predictions []models.Prediction `json:"predictions"`
}

// NewHTTPServer wires routes onto a fresh gin engine.
func NewHTTPServer(logger *slog.Logger, predictor Predictor) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &HTTPServer{logger: logger, predictor: predictor, router: router}
	router.Use(gin.Recovery(), s.logRequests)

	router.GET("/", s.handleRoot)
	router.GET("/healthz", s.handleHealth)
	router.GET("/readyz", s.handleReady)
	router.GET("/model", s.handleModel)
	router.POST("/predict", s.handlePredict)
	router.POST("/predict/batch", s.handlePredictBatch)

	return s
}

// Handler returns the routed http.Handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("http request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.FullPath()),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", time.Since(start)),
	)
}

func (s *HTTPServer) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": rootMessage})
}

func (s *HTTPServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) handleReady(c *gin.Context) {
	if !s.predictor.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": services.ModelUnavailableMessage})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *HTTPServer) handleModel(c *gin.Context) {
	info, err := s.predictor.ModelInfo()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *HTTPServer) handlePredict(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil || body == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []fieldDetail{{
			Loc:  []string{"body"},
			Msg:  "request body must be a JSON object",
			Type: "json_invalid",
		}}})
		return
	}

	pred, err := s.predictor.PredictFields(c.Request.Context(), body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pred)
}

func (s *HTTPServer) handlePredictBatch(c *gin.Context) {
	var body []map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []fieldDetail{{
			Loc:  []string{"body"},
			Msg:  "request body must be a JSON array of objects",
			Type: "json_invalid",
		}}})
		return
	}

	preds, err := s.predictor.PredictBatch(c.Request.Context(), body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, batchResponse{Predictions: preds})
}

func (s *HTTPServer) writeError(c *gin.Context, err error) {
	switch utils.KindOf(err) {
	case utils.KindInvalidInput:
		var verr *models.ValidationError
		details := []fieldDetail{}
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				details = append(details, fieldDetail{Loc: []string{"body", f.Field}, Msg: f.Message, Type: "value_error"})
			}
		} else {
			details = append(details, fieldDetail{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error"})
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": details})
	case utils.KindUnavailable:
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": services.ModelUnavailableMessage})
	default:
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "An error occurred during prediction: " + rootCause(err).Error()})
	}
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
