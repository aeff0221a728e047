package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Relay/internal/domain"
)

func TestValidate_EmptySteps(t *testing.T) {
	tests := []struct {
		name string
		req  *domain.WorkflowRequest
	}{
		{
			name: "nil request",
			req:  nil,
		},
		{
			name: "empty steps",
			req: &domain.WorkflowRequest{
				Input: "hello",
				Steps: []domain.StepDefinition{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req, 0)
			if !errors.Is(err, ErrEmptySteps) {
				t.Errorf("expected ErrEmptySteps, got %v", err)
			}
		})
	}
}

func TestValidate_EmptyStepName(t *testing.T) {
	req := &domain.WorkflowRequest{
		Steps: []domain.StepDefinition{{Name: ""}},
	}

	err := Validate(req, 0)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !errors.Is(vErr.Err, ErrEmptyStepName) {
		t.Errorf("expected ErrEmptyStepName, got %v", vErr.Err)
	}
}

func TestValidate_DuplicateStepName(t *testing.T) {
	req := &domain.WorkflowRequest{
		Steps: []domain.StepDefinition{
			{Name: "A"},
			{Name: "B"},
			{Name: "A"},
		},
	}

	err := Validate(req, 0)
	if !errors.Is(err, ErrDuplicateStepName) {
		t.Fatalf("expected ErrDuplicateStepName, got %v", err)
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) && vErr.Step != "A" {
		t.Errorf("expected step A, got %q", vErr.Step)
	}
}

func TestValidate_TooManySteps(t *testing.T) {
	req := &domain.WorkflowRequest{}
	for _, name := range []string{"a", "b", "c"} {
		req.Steps = append(req.Steps, domain.StepDefinition{Name: name})
	}

	if err := Validate(req, 2); !errors.Is(err, ErrTooManySteps) {
		t.Errorf("expected ErrTooManySteps, got %v", err)
	}
	if err := Validate(req, 3); err != nil {
		t.Errorf("expected no error at the limit, got %v", err)
	}
}

func TestValidate_InvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		req     *domain.WorkflowRequest
		wantErr error
	}{
		{
			name: "invalid role",
			req: &domain.WorkflowRequest{Steps: []domain.StepDefinition{
				{Name: "A", Role: "robot"},
			}},
			wantErr: ErrInvalidRole,
		},
		{
			name: "invalid message role",
			req: &domain.WorkflowRequest{Steps: []domain.StepDefinition{
				{Name: "A", Messages: []domain.Message{{Role: "narrator", Content: "x"}}},
			}},
			wantErr: ErrInvalidRole,
		},
		{
			name: "invalid policy",
			req: &domain.WorkflowRequest{
				FailurePolicy: "retry-forever",
				Steps:         []domain.StepDefinition{{Name: "A"}},
			},
			wantErr: ErrInvalidPolicy,
		},
		{
			name: "negative timeout",
			req: &domain.WorkflowRequest{Steps: []domain.StepDefinition{
				{Name: "A", TimeoutSec: -1},
			}},
			wantErr: ErrInvalidTimeout,
		},
		{
			name: "unknown backoff",
			req: &domain.WorkflowRequest{Steps: []domain.StepDefinition{
				{Name: "A", Retry: &domain.RetryPolicy{MaxAttempts: 2, Backoff: "random"}},
			}},
			wantErr: ErrInvalidRetry,
		},
		{
			name: "unbounded retry",
			req: &domain.WorkflowRequest{Steps: []domain.StepDefinition{
				{Name: "A", Retry: &domain.RetryPolicy{MaxAttempts: domain.MaxRetryAttempts + 1}},
			}},
			wantErr: ErrInvalidRetry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_ValidRequest(t *testing.T) {
	content := "Summarize: {{Research}}"
	req := &domain.WorkflowRequest{
		Input:         "Explain photosynthesis",
		FailurePolicy: domain.FailurePolicyContinue,
		Steps: []domain.StepDefinition{
			{Name: "Research", Role: domain.RoleUser},
			{Name: "Summary", Role: domain.RoleAssistant, Content: &content},
			// ссылки не проверяются на этапе валидации
			{Name: "Other", Content: &content, AgentID: "@acme/agent"},
			{Name: "Bounded", Retry: &domain.RetryPolicy{MaxAttempts: domain.MaxRetryAttempts}},
		},
	}

	if err := Validate(req, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
