package domain

import "github.com/google/uuid"

// NewKey выдаёт непрозрачный ключ, упорядоченный по времени создания.
func NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}
