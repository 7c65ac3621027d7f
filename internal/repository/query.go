package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// first runs q into a fresh T. A missing row is (nil, nil).
func first[T any](q *gorm.DB) (*T, error) {
	var row T
	err := q.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// keyID parses a key id from a URL. Malformed ids cannot match any row, so
// callers treat them as not found instead of sending them to postgres.
func keyID(id string) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}
