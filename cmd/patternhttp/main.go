// Command patternhttp exposes the "Query surface" of spec section 6 over
// HTTP: POST /compile accepts mini-notation or script source and returns a
// session id; GET /query re-queries that session's pattern over an arc.
// Handler/router style grounded on magda-api's internal/api (gin.Engine,
// JSON request/response structs, one handler per route).
package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	patterncycle "github.com/cbegin/patterncycle-go"
	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

const sentryFlushTimeout = 2 * time.Second

// sessionStore holds compiled patterns in-process only — spec.md's
// Non-goals exclude persistence, so a session never survives a restart.
type sessionStore struct {
	mu    sync.RWMutex
	byID  map[string]patterncycle.Pattern
}

func newSessionStore() *sessionStore {
	return &sessionStore{byID: make(map[string]patterncycle.Pattern)}
}

func (s *sessionStore) put(p patterncycle.Pattern) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.byID[id] = p
	s.mu.Unlock()
	return id
}

func (s *sessionStore) get(id string) (patterncycle.Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	return p, ok
}

type compileRequest struct {
	Pattern string `json:"pattern"`
	Script  string `json:"script"`
}

type compileResponse struct {
	SessionID string `json:"sessionId"`
}

type hapResponse struct {
	WholeBegin *float64 `json:"wholeBegin,omitempty"`
	WholeEnd   *float64 `json:"wholeEnd,omitempty"`
	PartBegin  float64  `json:"partBegin"`
	PartEnd    float64  `json:"partEnd"`
	HasOnset   bool     `json:"hasOnset"`
	Value      any      `json:"value"`
}

func setupRouter(store *sessionStore) *gin.Engine {
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/compile", func(c *gin.Context) {
		var req compileRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var pat patterncycle.Pattern
		var err error
		switch {
		case req.Script != "":
			pat, err = patterncycle.CompileScript(req.Script)
		case req.Pattern != "":
			pat, err = patterncycle.CompilePattern(req.Pattern)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "one of pattern or script is required"})
			return
		}
		if err != nil {
			sentry.CaptureException(err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, compileResponse{SessionID: store.put(pat)})
	})

	router.GET("/query", func(c *gin.Context) {
		sessionID := c.Query("session")
		pat, ok := store.get(sessionID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		begin, err := strconv.ParseFloat(c.DefaultQuery("begin", "0"), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid begin"})
			return
		}
		end, err := strconv.ParseFloat(c.DefaultQuery("end", "1"), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end"})
			return
		}
		haps := pat.Query(arc.Arc{Begin: rational.FromFloat(begin), End: rational.FromFloat(end)})
		out := make([]hapResponse, 0, len(haps))
		for _, h := range haps {
			hr := hapResponse{PartBegin: h.Part.Begin.Float64(), PartEnd: h.Part.End.Float64(), HasOnset: h.HasOnset(), Value: h.Value}
			if h.Whole != nil {
				wb, we := h.Whole.Begin.Float64(), h.Whole.End.Float64()
				hr.WholeBegin, hr.WholeEnd = &wb, &we
			}
			out = append(out, hr)
		}
		c.JSON(http.StatusOK, out)
	})

	return router
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Environment: os.Getenv("PATTERNHTTP_ENV")}); err != nil {
			log.Printf("failed to initialize sentry: %v", err)
		} else {
			defer sentry.Flush(sentryFlushTimeout)
		}
	}
	if os.Getenv("PATTERNHTTP_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	store := newSessionStore()
	router := setupRouter(store)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("starting patternhttp on port %s", port)
	if err := router.Run(":" + port); err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
}
