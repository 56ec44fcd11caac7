package validation

import (
	"strings"
	"testing"

	"github.com/amit-t/stream-llm/errors"
)

type sampleConfig struct {
	Name       string `mapstructure:"name" validate:"required"`
	StatusCode int    `mapstructure:"status_code" validate:"gte=100,lte=599"`
	Mode       string `mapstructure:"mode" validate:"oneof=json console"`
}

func TestValidate_Success(t *testing.T) {
	cfg := sampleConfig{Name: "stream", StatusCode: 200, Mode: "json"}
	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid struct, got %v", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := sampleConfig{StatusCode: 200, Mode: "json"}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing required field")
	}
	if !errors.IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "name") {
		t.Errorf("expected field name in message, got %q", err.Error())
	}
}

func TestValidate_OutOfRange(t *testing.T) {
	cfg := sampleConfig{Name: "stream", StatusCode: 42, Mode: "json"}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for out-of-range status code")
	}
	if !strings.Contains(err.Error(), "status_code") {
		t.Errorf("expected mapstructure key in message, got %q", err.Error())
	}
}

func TestValidate_OneOf(t *testing.T) {
	cfg := sampleConfig{Name: "stream", StatusCode: 200, Mode: "xml"}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for invalid oneof value")
	}
	if !strings.Contains(err.Error(), "must be one of") {
		t.Errorf("expected oneof message, got %q", err.Error())
	}
}

func TestValidate_ErrorDetails(t *testing.T) {
	cfg := sampleConfig{}
	err := Validate(cfg)
	appErr := errors.As(err)
	if appErr == nil {
		t.Fatal("expected AppError")
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok {
		t.Fatalf("expected []FieldError details, got %T", appErr.Details["fields"])
	}
	if len(fields) == 0 {
		t.Error("expected at least one field error")
	}
}

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"StatusCode": "status_code",
		"KeepAlive":  "keep_alive",
		"name":       "name",
	}
	for in, want := range cases {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q): expected %q, got %q", in, want, got)
		}
	}
}
