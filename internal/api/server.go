// Package api exposes the generation engine over HTTP: a streaming
// (server-sent events) call producing one chunk per token, and a blocking
// call returning the full text with usage statistics.
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/DePasqualeOrg/mlx-vlm/internal/generate"
	"github.com/DePasqualeOrg/mlx-vlm/internal/logger"
	"github.com/DePasqualeOrg/mlx-vlm/internal/processor"
)

// Server serves one generation session. The session decodes a single
// sequence at a time, so generation calls are serialized by a mutex; the
// optional rate limiter additionally bounds admission so queued requests
// reject fast instead of piling up behind the lock.
type Server struct {
	session *generate.Session
	log     logger.Logger
	limiter *rate.Limiter

	// gen serializes access to the session and the model behind it.
	gen sync.Mutex
}

// Options tunes the server.
type Options struct {
	// RequestsPerSecond throttles generation calls; 0 disables the limit.
	RequestsPerSecond float64
	Burst             int
}

// NewServer wraps session.
func NewServer(session *generate.Session, log logger.Logger, opts Options) *Server {
	s := &Server{session: session, log: log}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return s
}

// Register mounts the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/healthz", s.handleHealth)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(c *echo.Context) error {
	if s.limiter != nil && !s.limiter.Allow() {
		return writeError(c, http.StatusTooManyRequests, "rate_limited", "too many generation requests")
	}

	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}
	if req.Prompt == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "prompt is required")
	}

	genReq, err := toGenerateRequest(req)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}

	s.gen.Lock()
	defer s.gen.Unlock()

	id := "gen-" + uuid.NewString()
	if req.Stream != nil && *req.Stream {
		return s.handleGenerateStream(c, id, genReq)
	}

	text, usage, err := s.session.Generate(c.Request().Context(), genReq)
	if err != nil {
		return s.writeGenerateError(c, err)
	}
	return c.JSON(http.StatusOK, GenerateResponse{
		ID:     id,
		Object: "generation",
		Text:   text,
		Usage:  toUsageDTO(usage),
	})
}

func (s *Server) handleGenerateStream(c *echo.Context, id string, req generate.Request) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "streaming unsupported")
	}

	var last generate.Result
	streamErr := s.session.Stream(c.Request().Context(), req, func(r generate.Result) bool {
		last = r
		token := r.Token
		chunk := StreamChunk{
			ID:               id,
			Object:           "generation.chunk",
			Text:             r.Text,
			GenerationTokens: r.GenerationTokens,
			GenerationTPS:    r.GenerationTPS,
		}
		if token >= 0 {
			chunk.Token = &token
		}
		if err := sendSSE(res, chunk); err != nil {
			return false
		}
		flusher.Flush()
		return true
	})
	if streamErr != nil {
		// Headers are already out; surface the failure in-band.
		s.log.Error("streamed generation failed", "error", streamErr)
		_ = sendSSE(res, map[string]any{"error": ErrorBody{Message: streamErr.Error(), Type: "server_error"}})
		flusher.Flush()
		return nil
	}

	usage := toUsageDTO(generate.Usage{
		InputTokens:   last.PromptTokens,
		OutputTokens:  last.GenerationTokens,
		TotalTokens:   last.PromptTokens + last.GenerationTokens,
		PromptTPS:     last.PromptTPS,
		GenerationTPS: last.GenerationTPS,
		PeakMemory:    last.PeakMemory,
	})
	done := StreamChunk{
		ID:     id,
		Object: "generation.done",
		Done:   true,
		Usage:  &usage,
	}
	if err := sendSSE(res, done); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (s *Server) writeGenerateError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, generate.ErrInvalidArgument),
		errors.Is(err, processor.ErrUnsupportedModality):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	default:
		s.log.Error("generation failed", "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func toGenerateRequest(req GenerateRequest) (generate.Request, error) {
	out := generate.Request{
		Prompt:                req.Prompt,
		MaxTokens:             req.MaxTokens,
		Temperature:           req.Temperature,
		TopP:                  req.TopP,
		RepetitionPenalty:     req.RepetitionPenalty,
		RepetitionContextSize: req.RepetitionContextSize,
		Seed:                  req.Seed,
		EOSTokens:             req.EOSTokens,
		SkipSpecialTokens:     req.SkipSpecialTokens,
	}
	if len(req.LogitBias) > 0 {
		out.LogitBias = make(map[int]float32, len(req.LogitBias))
		for key, bias := range req.LogitBias {
			id, err := strconv.Atoi(key)
			if err != nil {
				return generate.Request{}, fmt.Errorf("logit_bias key %q is not a token id", key)
			}
			out.LogitBias[id] = bias
		}
	}
	return out, nil
}

func toUsageDTO(u generate.Usage) Usage {
	return Usage{
		InputTokens:   u.InputTokens,
		OutputTokens:  u.OutputTokens,
		TotalTokens:   u.TotalTokens,
		PromptTPS:     u.PromptTPS,
		GenerationTPS: u.GenerationTPS,
		PeakMemory:    u.PeakMemory,
	}
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{"error": ErrorBody{Message: msg, Type: errType}})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var v T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("decode request: %w", err)
	}
	return v, nil
}

func sendSSE(w io.Writer, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}
