package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/rendis/autoflow/internal/secrets"
	"github.com/rendis/autoflow/internal/store"
	"github.com/rendis/autoflow/pkg/schema"
)

// mockStore is an in-memory store.Store covering the run, step and
// credential methods the engine touches.
type mockStore struct {
	store.Store

	mu          sync.Mutex
	runs        map[string]*store.Run
	steps       map[string]*store.RunStep
	creds       map[string]secrets.EncryptedSecret
	finishRuns  int
	credErr     error
	createErr   error
	finishCalls []string
}

func newMockStore() *mockStore {
	return &mockStore{
		runs:  make(map[string]*store.Run),
		steps: make(map[string]*store.RunStep),
		creds: make(map[string]secrets.EncryptedSecret),
	}
}

func (m *mockStore) CreateRun(_ context.Context, run *store.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q already exists", run.ID)
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockStore) FinishRun(_ context.Context, id string, status schema.RunStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishRuns++
	r, ok := m.runs[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", id)
	}
	if r.Status.IsTerminal() {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "run %q is already %s", id, r.Status)
	}
	r.Status = status
	r.Error = errMsg
	return nil
}

func (m *mockStore) CreateRunStep(_ context.Context, step *store.RunStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *step
	m.steps[step.ID] = &cp
	return nil
}

func (m *mockStore) FinishRunStep(_ context.Context, id string, u store.RunStepUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishCalls = append(m.finishCalls, id)
	st, ok := m.steps[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "run step %q not found", id)
	}
	if st.Status.IsTerminal() {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "run step %q is already %s", id, st.Status)
	}
	st.Status = u.Status
	st.Result = u.Result
	st.Error = u.Error
	st.DurationMs = u.DurationMs
	t := u.CompletedAt
	st.CompletedAt = &t
	return nil
}

func (m *mockStore) GetCredential(_ context.Context, tenantID, integration string) (secrets.EncryptedSecret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.credErr != nil {
		return "", m.credErr
	}
	s, ok := m.creds[tenantID+"/"+integration]
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeNotFound, "credential %q not found", tenantID+"/"+integration)
	}
	return s, nil
}

func (m *mockStore) run(id string) store.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.runs[id]
}

// stepsOf returns the step records of a run ordered by step number.
func (m *mockStore) stepsOf(runID string) []store.RunStep {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.RunStep
	for _, st := range m.steps {
		if st.RunID == runID {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out
}
