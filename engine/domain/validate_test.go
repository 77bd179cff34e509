package domain

import (
	"errors"
	"testing"
)

func TestConfigValidate_Defaults(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}
}

func TestConfigValidate_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"k zero", func(c *Config) { c.K = 0 }, "k"},
		{"chunk equals overlap", func(c *Config) { c.ChunkSize, c.Overlap = 50, 50 }, "chunk_size"},
		{"chunk below overlap", func(c *Config) { c.ChunkSize, c.Overlap = 10, 20 }, "chunk_size"},
		{"negative overlap", func(c *Config) { c.Overlap = -1 }, "overlap"},
		{"blank model", func(c *Config) { c.ModelName = " " }, "model_name"},
		{"blank embedding model", func(c *Config) { c.EmbeddingModel = "" }, "embedding_model"},
		{"blank collection", func(c *Config) { c.CollectionName = "" }, "collection_name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mut(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if ve.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, ve.Field)
			}
		})
	}
}

func TestValidateChunking(t *testing.T) {
	if err := ValidateChunking(20, 5); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
	if err := ValidateChunking(1, 0); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
	if err := ValidateChunking(5, 5); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestValidateQuestion(t *testing.T) {
	if err := ValidateQuestion("What color is the sky?"); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
	for _, q := range []string{"", "   ", "\n\t"} {
		if err := ValidateQuestion(q); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("expected ErrEmptyQuery for %q, got %v", q, err)
		}
	}
}

func TestValidationError_Message(t *testing.T) {
	err := NewValidationError("k", "0", ErrInvalidConfiguration)
	want := `validation: invalid configuration: k (value="0")`
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestIsServiceError(t *testing.T) {
	if !IsServiceError(errors.Join(errors.New("boom"), ErrRetrievalService)) {
		t.Error("expected retrieval error to be a service error")
	}
	if IsServiceError(ErrInvalidConfiguration) {
		t.Error("config error is not a service error")
	}
}

func TestDocumentIsPDF(t *testing.T) {
	cases := []struct {
		doc  Document
		want bool
	}{
		{Document{Name: "a.pdf"}, true},
		{Document{Name: "REPORT.PDF"}, true},
		{Document{Name: "blob", MediaType: "application/pdf"}, true},
		{Document{Name: "blob", MediaType: "application/pdf; charset=binary"}, true},
		{Document{Name: "notes.txt", MediaType: "text/plain"}, false},
		{Document{Name: "pdf.txt"}, false},
	}
	for _, c := range cases {
		if got := c.doc.IsPDF(); got != c.want {
			t.Errorf("IsPDF(%+v) = %v, want %v", c.doc, got, c.want)
		}
	}
}
