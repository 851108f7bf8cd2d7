// Package main implements a mock LLM server for local development and
// end-to-end tests. It serves OpenAI-compatible /v1/chat/completions
// responses from JSON fixture files, so tripsync can run with
// generation.backend=openai and generation.base_url pointing here.
//
// Usage:
//
//	mock-llm --fixtures ./cmd/mock-llm/testdata/fixtures --addr :11434
//
// Fixture files are named by generation stage (e.g. "research.json" answers
// every research prompt). The stage is read from the opening line of the last
// user message. Requests whose stage cannot be recognized fall back to a
// fixture named after the request's model, with any "mock-" prefix removed.
//
// Sequential fixtures: if numbered files exist (e.g. "draft.1.json",
// "draft.2.json"), the Nth call for that key returns the Nth fixture. Once
// they are exhausted the base "draft.json" repeats. This drives
// regeneration loops where the first draft is rejected.
package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/c360studio/tripsync/workflow"
)

const fixturesEnv = "MOCK_LLM_FIXTURES"

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// stageMarkers maps the opening phrase of each stage prompt to its stage.
var stageMarkers = []struct {
	prefix string
	stage  string
}{
	{"Propose between", workflow.GenCandidates},
	{"Research this destination", workflow.GenResearch},
	{"Rank the researched", workflow.GenRank},
	{"Draft a day-by-day", workflow.GenDraft},
	{"Polish this itinerary", workflow.GenPolish},
}

// detectStage returns the stage of the last user message, or "".
func detectStage(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		content := strings.TrimSpace(messages[i].Content)
		for _, m := range stageMarkers {
			if strings.HasPrefix(content, m.prefix) {
				return m.stage
			}
		}
		return ""
	}
	return ""
}

// --- Server ---

// capturedRequest stores an incoming request for test verification.
type capturedRequest struct {
	Key       string        `json:"key"`
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	CallIndex int           `json:"call_index"` // 1-indexed per key
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	fixtures map[string][]string // stage or model → ordered fixture contents
	logger   *slog.Logger
	calls    atomic.Int64

	mu       sync.Mutex
	keyCalls map[string]int
	requests map[string][]capturedRequest
}

func newServer(fixtures map[string][]string, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		fixtures: fixtures,
		logger:   logger,
		keyCalls: make(map[string]int),
		requests: make(map[string][]capturedRequest),
	}
}

func (s *server) routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/v1/chat/completions", s.handleChatCompletions)
	r.GET("/v1/models", s.handleModels)
	r.GET("/stats", s.handleStats)
	r.GET("/requests", s.handleRequests)
	return r
}

// resolve picks the fixture key for a request: the detected stage first,
// then the model name with and without its "mock-" prefix.
func (s *server) resolve(req chatRequest) (string, []string, bool) {
	candidates := []string{detectStage(req.Messages), req.Model, strings.TrimPrefix(req.Model, "mock-")}
	for _, key := range candidates {
		if key == "" {
			continue
		}
		if seq, ok := s.fixtures[key]; ok {
			return key, seq, true
		}
	}
	return "", nil, false
}

// next records the call and returns its 0-indexed position for key.
func (s *server) next(key string, req chatRequest) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.keyCalls[key]
	s.keyCalls[key] = idx + 1
	s.requests[key] = append(s.requests[key], capturedRequest{
		Key:       key,
		Model:     req.Model,
		Messages:  req.Messages,
		CallIndex: idx + 1,
		Timestamp: time.Now().UnixMilli(),
	})
	return idx
}

func (s *server) handleChatCompletions(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	callNum := s.calls.Add(1)
	key, seq, ok := s.resolve(req)
	if !ok {
		s.logger.Warn("No fixture for request", "call", callNum, "model", req.Model)
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no fixture for model %q", req.Model)})
		return
	}

	idx := s.next(key, req)
	content := seq[min(idx, len(seq)-1)]
	s.logger.Info("Serving fixture",
		"call", callNum,
		"key", key,
		"call_index", idx+1,
		"fixtures", len(seq),
		"bytes", len(content))

	now := time.Now()
	c.JSON(http.StatusOK, chatResponse{
		ID:      fmt.Sprintf("mock-%d", now.UnixNano()),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     len(content) / 4, // rough estimate
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(content) / 2,
		},
	})
}

func (s *server) handleModels(c *gin.Context) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	names := lo.Keys(s.fixtures)
	slices.Sort(names)
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data": lo.Map(names, func(name string, _ int) modelEntry {
			return modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"}
		}),
	})
}

// handleStats returns total calls and a per-key breakdown.
func (s *server) handleStats(c *gin.Context) {
	s.mu.Lock()
	byKey := make(map[string]int, len(s.keyCalls))
	for k, n := range s.keyCalls {
		byKey[k] = n
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"total_calls":  s.calls.Load(),
		"calls_by_key": byKey,
	})
}

// handleRequests returns captured requests, optionally filtered by
// ?key= and ?call= (1-indexed).
func (s *server) handleRequests(c *gin.Context) {
	keyFilter := c.Query("key")
	callFilter, _ := strconv.Atoi(c.Query("call"))

	s.mu.Lock()
	result := make(map[string][]capturedRequest)
	for key, reqs := range s.requests {
		if keyFilter != "" && key != keyFilter {
			continue
		}
		for _, r := range reqs {
			if callFilter > 0 && r.CallIndex != callFilter {
				continue
			}
			result[key] = append(result[key], r)
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"requests_by_key": result})
}

// numberedFileRe matches files like "draft.1.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads JSON files under dir into key → content sequences.
// Numbered files come first in numeric order, then the base file.
func loadFixtures(dir string) (map[string][]string, error) {
	base := make(map[string]string)
	numbered := make(map[string]map[int]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", path)
		}

		if m := numberedFileRe.FindStringSubmatch(d.Name()); m != nil {
			idx, _ := strconv.Atoi(m[2])
			if numbered[m[1]] == nil {
				numbered[m[1]] = make(map[int]string)
			}
			numbered[m[1]][idx] = string(data)
			return nil
		}
		base[strings.TrimSuffix(d.Name(), ".json")] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	keys := lo.Uniq(append(lo.Keys(base), lo.Keys(numbered)...))
	fixtures := make(map[string][]string, len(keys))
	for _, key := range keys {
		var seq []string
		if byIdx, ok := numbered[key]; ok {
			indices := lo.Keys(byIdx)
			slices.Sort(indices)
			for _, i := range indices {
				seq = append(seq, byIdx[i])
			}
		}
		if b, ok := base[key]; ok {
			seq = append(seq, b)
		}
		fixtures[key] = seq
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var fixtureDir, addr string

	cmd := &cobra.Command{
		Use:          "mock-llm",
		Short:        "Serve canned chat completions from fixture files",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fixtureDir == "" {
				fixtureDir = os.Getenv(fixturesEnv)
			}
			if fixtureDir == "" {
				fixtureDir = "/fixtures"
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			fixtures, err := loadFixtures(fixtureDir)
			if err != nil {
				return fmt.Errorf("load fixtures from %s: %w", fixtureDir, err)
			}
			for key, seq := range fixtures {
				logger.Info("Loaded fixture", "key", key, "count", len(seq))
			}

			gin.SetMode(gin.ReleaseMode)
			srv := &http.Server{
				Addr:              addr,
				Handler:           newServer(fixtures, logger).routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			logger.Info("Mock LLM server listening", "addr", addr)
			return srv.ListenAndServe()
		},
	}

	cmd.Flags().StringVar(&fixtureDir, "fixtures", "", "Directory containing fixture response files (or set "+fixturesEnv+")")
	cmd.Flags().StringVar(&addr, "addr", ":11434", "Listen address")
	return cmd
}
