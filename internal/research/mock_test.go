package research

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/prospector/internal/model"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, role, prompt string) (json.RawMessage, error) {
	args := m.Called(ctx, role, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

type mockStepLog struct {
	mock.Mock
}

func (m *mockStepLog) CreateResearchRun(ctx context.Context, subject, actor string) (*model.ResearchRun, error) {
	args := m.Called(ctx, subject, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ResearchRun), args.Error(1)
}

func (m *mockStepLog) AppendStep(ctx context.Context, runID string, step model.StepName, output json.RawMessage) (*model.StepResult, error) {
	args := m.Called(ctx, runID, step, output)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StepResult), args.Error(1)
}

func (m *mockStepLog) ListSteps(ctx context.Context, runID string) ([]model.StepResult, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StepResult), args.Error(1)
}

func (m *mockStepLog) GetResearchRun(ctx context.Context, runID string) (*model.ResearchRun, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ResearchRun), args.Error(1)
}
