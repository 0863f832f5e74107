package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/mistifyio/kelpie"
	log "github.com/sirupsen/logrus"
	"github.com/tylerb/graceful"
)

type ctxKey int

const (
	controllerKey ctxKey = iota
	computeTimeoutKey
	projectKey
	vmKey
)

type (
	// HTTPResponse is a wrapper for http.ResponseWriter which provides access
	// to several convenience methods
	HTTPResponse struct {
		http.ResponseWriter
	}

	// HTTPError contains information for http error responses
	HTTPError struct {
		Message string   `json:"message"`
		Code    int      `json:"code"`
		Stack   []string `json:"stack,omitempty"`
	}
)

// NewHandler builds the API router wrapped in the common middleware
func NewHandler(ctrl *kelpie.Controller, m *metricsContext, computeTimeout time.Duration) http.Handler {
	router := mux.NewRouter()
	router.StrictSlash(true)

	accessLog := log.StandardLogger().WriterLevel(log.InfoLevel)
	commonMiddleware := alice.New(
		func(h http.Handler) http.Handler {
			return handlers.CombinedLoggingHandler(accessLog, h)
		},
		handlers.CompressHandler,
		handlers.RecoveryHandler(
			handlers.RecoveryLogger(log.StandardLogger()),
			handlers.PrintRecoveryStack(true),
		),
		func(h http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := context.WithValue(r.Context(), controllerKey, ctrl)
				ctx = context.WithValue(ctx, computeTimeoutKey, computeTimeout)
				h.ServeHTTP(w, r.WithContext(ctx))
			})
		},
	)

	// NOTE: Due to weirdness with PrefixPath and StrictSlash, can't just pass
	// a prefixed subrouter to the register functions and have the base path
	// work cleanly. The register functions need to add a base path handler to
	// the main router before setting subhandlers on either main or subrouter

	RegisterComputeRoutes("/computes", router, m)
	RegisterProjectRoutes("/projects", router, m)

	router.Handle("/metrics", m.PrometheusHandler())
	router.HandleFunc("/metrics.json",
		func(w http.ResponseWriter, r *http.Request) {
			hr := HTTPResponse{w}
			summary, err := m.inmem.DisplayMetrics(w, r)
			if err != nil {
				hr.JSONError(http.StatusInternalServerError, err)
				return
			}
			hr.JSON(http.StatusOK, summary)
		})

	return commonMiddleware.Then(router)
}

// Run starts the server
func Run(port uint, shutdownTimeout time.Duration, handler http.Handler) *graceful.Server {
	server := &graceful.Server{
		Timeout:          shutdownTimeout,
		NoSignalHandling: true,
		Server: &http.Server{
			Addr:           fmt.Sprintf(":%d", port),
			Handler:        handler,
			MaxHeaderBytes: 1 << 20,
		},
	}
	go listenAndServe(server)
	return server
}

func listenAndServe(server *graceful.Server) {
	if err := server.ListenAndServe(); err != nil {
		// Ignore the error from closing the listener, which is involved in the
		// graceful shutdown
		if !strings.Contains(err.Error(), "use of closed network connection") {
			log.WithField("error", err).Fatal("server error")
		}
	}
}

// JSON writes appropriate headers and JSON body to the http response
func (hr *HTTPResponse) JSON(code int, obj interface{}) {
	hr.Header().Set("Content-Type", "application/json")
	hr.WriteHeader(code)
	if obj == nil {
		return
	}
	encoder := json.NewEncoder(hr)
	if err := encoder.Encode(obj); err != nil {
		log.WithFields(log.Fields{
			"error": err,
			"func":  "json.Encoder.Encode",
		}).Error("failed to encode response")
	}
}

// JSONError prepares an HTTPError with a stack trace and writes it with
// HTTPResponse.JSON
func (hr *HTTPResponse) JSONError(code int, err error) {
	httpError := &HTTPError{
		Message: kelpie.ErrorMessage(err),
		Code:    code,
		Stack:   make([]string, 0, 4),
	}
	for i := 1; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		httpError.Stack = append(httpError.Stack, fmt.Sprintf("%s:%d (0x%x)", file, line, pc))
	}
	hr.JSON(code, httpError)
}

// JSONMsg is a convenience method to write a JSON response with just a message
// string
func (hr *HTTPResponse) JSONMsg(code int, msg string) {
	hr.JSON(code, &HTTPError{
		Message: msg,
		Code:    code,
	})
}

// Error writes err with the status it maps to. Client errors are written
// as a plain message; anything else also carries a stack and is logged.
func (hr *HTTPResponse) Error(r *http.Request, err error) {
	code := kelpie.HTTPStatus(err)
	if code < http.StatusInternalServerError {
		hr.JSONMsg(code, kelpie.ErrorMessage(err))
		return
	}
	log.WithFields(log.Fields{
		"error":  err,
		"method": r.Method,
		"path":   r.URL.Path,
		"code":   code,
	}).Error("request failed")
	hr.JSONError(code, err)
}

// GetController retrieves the kelpie.Controller for a request
func GetController(r *http.Request) *kelpie.Controller {
	if value := r.Context().Value(controllerKey); value != nil {
		return value.(*kelpie.Controller)
	}
	return nil
}

// GetComputeTimeout retrieves the default compute timeout for a request
func GetComputeTimeout(r *http.Request) time.Duration {
	if value := r.Context().Value(computeTimeoutKey); value != nil {
		return value.(time.Duration)
	}
	return 0
}
