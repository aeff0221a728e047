package repo

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shaiso/Relay/internal/domain"
)

// fakeRow — pgx.Row с заранее заданными значениями колонок.
type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, v := range r.values {
		if v == nil {
			continue
		}
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

// fakeDB записывает аргументы Exec и отдаёт row на QueryRow.
type fakeDB struct {
	execArgs []any
	tag      pgconn.CommandTag
	row      pgx.Row
}

func (db *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	db.execArgs = args
	return db.tag, nil
}

func (db *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (db *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return db.row
}

func TestRunRepo_Create(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1")}
	r := NewRunRepo(db)

	run := domain.NewRun(domain.WorkflowRequest{
		Input: "hi",
		Steps: []domain.StepDefinition{{Name: "a"}},
	})

	if err := r.Create(context.Background(), run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if db.execArgs[0] != run.ID {
		t.Errorf("expected id %s, got %v", run.ID, db.execArgs[0])
	}

	var req domain.WorkflowRequest
	if err := json.Unmarshal(db.execArgs[2].([]byte), &req); err != nil {
		t.Fatalf("request is not JSON: %v", err)
	}
	if req.Input != "hi" || len(req.Steps) != 1 {
		t.Errorf("unexpected stored request %+v", req)
	}

	// Результата ещё нет — NULL
	if db.execArgs[3].([]byte) != nil {
		t.Error("result should be NULL for a pending run")
	}
	if db.execArgs[4].(*string) != nil {
		t.Error("error should be NULL")
	}
}

func TestRunRepo_UpdateNotFound(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")}
	r := NewRunRepo(db)

	run := domain.NewRun(domain.WorkflowRequest{})
	run.MarkAborted("stopped")

	if err := r.Update(context.Background(), run); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunRepo_Claim(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		wantErr error
	}{
		{"pending run is claimed", "UPDATE 1", nil},
		{"run taken by another worker", "UPDATE 0", ErrAlreadyClaimed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{tag: pgconn.NewCommandTag(tt.tag)}
			run := domain.NewRun(domain.WorkflowRequest{})

			err := NewRunRepo(db).Claim(context.Background(), run)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			// Статус меняется в памяти до записи
			if run.Status != domain.RunStatusRunning || run.StartedAt == nil {
				t.Errorf("expected RUNNING with start time, got %s", run.Status)
			}
			if db.execArgs[1] != domain.RunStatusRunning {
				t.Errorf("expected RUNNING in query args, got %v", db.execArgs[1])
			}
		})
	}
}

func TestRunRepo_GetByID(t *testing.T) {
	id := uuid.New()
	created := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	finished := created.Add(time.Second)

	result := domain.WorkflowResult{
		RunID:       id,
		Status:      domain.RunStatusCompleted,
		FinalOutput: "done",
	}
	resultJSON, _ := json.Marshal(result)
	requestJSON, _ := json.Marshal(domain.WorkflowRequest{Input: "hi"})

	db := &fakeDB{row: &fakeRow{values: []any{
		id,
		domain.RunStatusCompleted,
		requestJSON,
		resultJSON,
		nil,
		created,
		&created,
		&finished,
	}}}
	r := NewRunRepo(db)

	run, err := r.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.ID != id || run.Status != domain.RunStatusCompleted {
		t.Errorf("unexpected run %s/%s", run.ID, run.Status)
	}
	if run.Request.Input != "hi" {
		t.Errorf("expected input hi, got %q", run.Request.Input)
	}
	if run.Result == nil || run.Result.FinalOutput != "done" {
		t.Errorf("unexpected result %+v", run.Result)
	}
	if run.Duration() != time.Second {
		t.Errorf("expected 1s duration, got %v", run.Duration())
	}
}

func TestRunRepo_GetByIDNotFound(t *testing.T) {
	r := NewRunRepo(&fakeDB{row: &fakeRow{err: pgx.ErrNoRows}})

	if _, err := r.GetByID(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNullString(t *testing.T) {
	if nullString("") != nil {
		t.Error("empty string should be NULL")
	}
	if s := nullString("x"); s == nil || *s != "x" {
		t.Error("non-empty string should be kept")
	}
}
