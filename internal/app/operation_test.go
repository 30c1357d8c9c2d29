package app

import (
	"errors"
	"testing"

	"dms-go/internal/dms"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{name: "with parameters", operation: "UploadFile", parameters: "report.pdf"},
		{name: "empty parameters", operation: "Snapshot", parameters: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, tt.parameters)

			if op.Name != tt.operation {
				t.Errorf("Name = %q, want %q", op.Name, tt.operation)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.Status != StatusSuccess {
				t.Errorf("Status = %q, want %q", op.Status, StatusSuccess)
			}
			if op.Persisted() {
				t.Error("new operation reports persisted")
			}
		})
	}
}

func TestOperation_Record(t *testing.T) {
	partial := &dms.PartialDeleteError{Failures: []dms.BlobFailure{{Key: "k"}}}
	failed := errors.New("boom")

	tests := []struct {
		name string
		errs []error
		want string
	}{
		{"no errors", []error{nil, nil}, StatusSuccess},
		{"partial delete", []error{partial}, StatusPartial},
		{"failure wins over partial", []error{partial, failed}, StatusError},
		{"partial does not downgrade failure", []error{failed, partial}, StatusError},
		{"later success keeps failure", []error{failed, nil}, StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("DeleteNode", "")
			for _, err := range tt.errs {
				if got := op.Record(err); got != err {
					t.Errorf("Record() returned %v, want %v", got, err)
				}
			}
			if op.Status != tt.want {
				t.Errorf("Status = %q, want %q", op.Status, tt.want)
			}
		})
	}
}
