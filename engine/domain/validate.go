package domain

import (
	"strconv"
	"strings"
)

// ValidateChunking checks the window parameters shared by the chunker and
// the session config. The advance step size-overlap must be positive.
func ValidateChunking(size, overlap int) error {
	if overlap < 0 {
		return NewValidationError("overlap", strconv.Itoa(overlap), ErrInvalidConfiguration)
	}
	if size <= overlap {
		return NewValidationError("chunk_size", strconv.Itoa(size), ErrInvalidConfiguration)
	}
	return nil
}

// ValidateK checks the retrieval depth.
func ValidateK(k int) error {
	if k < 1 {
		return NewValidationError("k", strconv.Itoa(k), ErrInvalidConfiguration)
	}
	return nil
}

// Validate checks every field of the config.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ModelName) == "" {
		return NewValidationError("model_name", c.ModelName, ErrInvalidConfiguration)
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		return NewValidationError("embedding_model", c.EmbeddingModel, ErrInvalidConfiguration)
	}
	if strings.TrimSpace(c.CollectionName) == "" {
		return NewValidationError("collection_name", c.CollectionName, ErrInvalidConfiguration)
	}
	if err := ValidateK(c.K); err != nil {
		return err
	}
	return ValidateChunking(c.ChunkSize, c.Overlap)
}

// ValidateQuestion rejects blank questions.
func ValidateQuestion(q string) error {
	if strings.TrimSpace(q) == "" {
		return NewValidationError("question", q, ErrEmptyQuery)
	}
	return nil
}
