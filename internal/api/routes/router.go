package routes

import (
	"net/http"

	"github.com/clinsight/clinical-dashboard/internal/api/handlers"
	"github.com/clinsight/clinical-dashboard/internal/api/middleware"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	patientHandler  *handlers.PatientHandler
	analysisHandler *handlers.AnalysisHandler
	ehrHandler      *handlers.EHRHandler
	sseHandler      *handlers.SSEHandler
	feedbackHandler *handlers.FeedbackHandler

	cacheMiddleware *middleware.CacheMiddleware
	metrics         *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	patientHandler *handlers.PatientHandler,
	analysisHandler *handlers.AnalysisHandler,
	ehrHandler *handlers.EHRHandler,
	sseHandler *handlers.SSEHandler,
	feedbackHandler *handlers.FeedbackHandler,
	cacheMiddleware *middleware.CacheMiddleware,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		patientHandler:  patientHandler,
		analysisHandler: analysisHandler,
		ehrHandler:      ehrHandler,
		sseHandler:      sseHandler,
		feedbackHandler: feedbackHandler,
		cacheMiddleware: cacheMiddleware,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Patient read-model endpoints
	r.mux.HandleFunc("GET /api/patients", r.patientHandler.ListPatients)
	r.mux.HandleFunc("POST /api/patients/refetch", r.patientHandler.RefetchPatients)
	r.mux.HandleFunc("GET /api/patients/search", r.patientHandler.SearchPatients)
	r.mux.HandleFunc("GET /api/patients/{id}", r.patientHandler.GetPatient)

	// Analysis and chart review endpoints
	if r.analysisHandler != nil {
		r.mux.HandleFunc("POST /api/patients/{id}/analyze", r.analysisHandler.AnalyzePatient)
		r.mux.HandleFunc("POST /api/patients/{id}/chart-review", r.analysisHandler.ReviewChart)
	}

	// EHR integration endpoints
	if r.ehrHandler != nil {
		r.mux.HandleFunc("GET /api/ehr/authorize-url", r.ehrHandler.GetAuthorizeURL)
		r.mux.HandleFunc("POST /api/ehr/token", r.ehrHandler.ExchangeToken)
		r.mux.HandleFunc("POST /api/ehr/sync", r.ehrHandler.TriggerSync)
	}

	// SSE stream endpoints
	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/stream/patients", r.sseHandler.StreamPatientUpdates)
		r.mux.HandleFunc("GET /api/stream/patients/{id}", r.sseHandler.StreamPatient)
	}

	// Product feedback
	if r.feedbackHandler != nil {
		r.mux.HandleFunc("POST /api/feedback", r.feedbackHandler.SubmitFeedback)
	}

	// Apply middleware in reverse order (last middleware wraps first)
	// CORS must be outermost so cached responses also get CORS headers.

	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)

	// Apply cache middleware if available
	if r.cacheMiddleware != nil {
		handler = r.cacheMiddleware.Middleware(handler)
	}

	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)

	// Apply HTTP performance optimizations (compression, ETag, cache headers)
	handler = middleware.ResponseOptimization(handler)

	// CORS wraps everything so headers are set even on cache HITs
	handler = middleware.CORSMiddleware(handler)

	return handler
}
