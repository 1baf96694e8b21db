package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopfront/stagerunner/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
		{
			name: "error with multiple underscores",
			err:  errors.New("test__error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordError panic'd")
		}
	}()

	RecordError("test_error")
}

func TestRecordErrorDetails(t *testing.T) {
	// Test with nil error
	RecordErrorDetails("test", nil)

	// Test with actual error
	RecordErrorDetails("test", errors.New("sample error"))
}

func TestRecordStage(t *testing.T) {
	RecordStage("run1", types.StageStatic, types.StageStatusPass, time.Second)
	RecordStage("run1", types.StageUnit, types.StageStatusFail, 500*time.Millisecond)
	RecordStage("run1", types.StageE2E, types.StageStatusSkip, 0)

	// Invalid results are dropped, not recorded.
	RecordStage("run1", types.StageUnit, types.StageStatus("bogus"), time.Second)
}

func TestRecordPipeline(t *testing.T) {
	RecordPipeline("run1", "pass", 5, 5, 0, time.Minute)
	RecordPipeline("run2", "fail", 5, 1, 1, 30*time.Second)
}
