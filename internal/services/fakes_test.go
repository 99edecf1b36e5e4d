package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"querypilot-ai/internal/models"
	"querypilot-ai/pkg/dbmanager"
	"querypilot-ai/pkg/llm"
)

type stage string

const (
	stageClassify   stage = "classify"
	stageChitchat   stage = "chitchat"
	stageGenerate   stage = "generate"
	stageCorrect    stage = "correct"
	stageAssess     stage = "assess"
	stageSynthesize stage = "synthesize"
)

// stageOf recognizes which component built prompt.
func stageOf(prompt string) stage {
	switch {
	case strings.Contains(prompt, "Classify the user's request"):
		return stageClassify
	case strings.Contains(prompt, "friendly assistant"):
		return stageChitchat
	case strings.Contains(prompt, "Suggested SQL:"):
		return stageCorrect
	case strings.Contains(prompt, "Is this data sufficient"):
		return stageAssess
	case strings.Contains(prompt, "Answer the user's question"), strings.Contains(prompt, "Write an analytical answer"):
		return stageSynthesize
	default:
		return stageGenerate
	}
}

type reply struct {
	text string
	err  error
}

// scriptedLLM answers each stage from its own queue. The last reply of a
// queue repeats once the queue is drained.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[stage][]reply
	calls   map[stage]int
	prompts map[stage][]string
	onCall  func(stage)
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		replies: map[stage][]reply{},
		calls:   map[stage]int{},
		prompts: map[stage][]string{},
	}
}

func (s *scriptedLLM) on(st stage, texts ...string) *scriptedLLM {
	for _, text := range texts {
		s.replies[st] = append(s.replies[st], reply{text: text})
	}
	return s
}

func (s *scriptedLLM) fail(st stage, err error) *scriptedLLM {
	s.replies[st] = append(s.replies[st], reply{err: err})
	return s
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string, _ llm.CompletionOptions) (string, error) {
	st := stageOf(prompt)

	s.mu.Lock()
	idx := s.calls[st]
	s.calls[st]++
	s.prompts[st] = append(s.prompts[st], prompt)
	queue := s.replies[st]
	hook := s.onCall
	s.mu.Unlock()

	if hook != nil {
		hook(st)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(queue) == 0 {
		return "", errors.New("no scripted reply for " + string(st))
	}
	if idx >= len(queue) {
		idx = len(queue) - 1
	}
	return queue[idx].text, queue[idx].err
}

func (s *scriptedLLM) count(st stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[st]
}

func (s *scriptedLLM) promptsFor(st stage) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts[st]...)
}

type execReply struct {
	result *dbmanager.ResultSet
	err    error
}

// fakeExecutor answers executions in order; the last reply repeats.
type fakeExecutor struct {
	mu      sync.Mutex
	replies []execReply
	queries []string
}

func (e *fakeExecutor) succeed(columns []string, rows ...map[string]interface{}) *fakeExecutor {
	e.replies = append(e.replies, execReply{result: &dbmanager.ResultSet{Columns: columns, Rows: rows}})
	return e
}

func (e *fakeExecutor) failWith(kind dbmanager.ErrorKind, message string) *fakeExecutor {
	e.replies = append(e.replies, execReply{err: &dbmanager.ExecutionError{
		Kind:    kind,
		Code:    dbmanager.CodeQueryExecutionFailed,
		Message: message,
	}})
	return e
}

func (e *fakeExecutor) Execute(ctx context.Context, sql string) (*dbmanager.ResultSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries = append(e.queries, sql)
	if len(e.replies) == 0 {
		return nil, errors.New("no scripted execution")
	}
	idx := len(e.queries) - 1
	if idx >= len(e.replies) {
		idx = len(e.replies) - 1
	}
	return e.replies[idx].result, e.replies[idx].err
}

func (e *fakeExecutor) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.queries...)
}

type fakeSchema struct {
	mu          sync.Mutex
	description string
	err         error
	calls       int
}

func (f *fakeSchema) GetSchema(ctx context.Context, forceRefresh bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.description, f.err
}

type memoryRecorder struct {
	mu   sync.Mutex
	logs []*models.QueryLog
}

func (r *memoryRecorder) Create(ctx context.Context, log *models.QueryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const shopSchema = "Database Schema:\n\nTables:\n- users:\n  - id (integer, PK, NOT NULL)\n  - active (boolean, NOT NULL)\n\n---"

func testConfig() OrchestratorConfig {
	cfg := DefaultOrchestratorConfig()
	cfg.CurrencyCode = "SAR"
	return cfg
}

func row(pairs ...interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[pairs[i].(string)] = pairs[i+1]
	}
	return out
}
