package domain

import "errors"

var (
	// ErrNotFound возвращается, когда сущность отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate возвращается при повторной регистрации уже существующей сущности.
	ErrDuplicate = errors.New("duplicate")
	// ErrResourceExhausted возвращается, когда в посте не удалось подобрать свободный псевдоним.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrInvalidCursor возвращается для некорректной строки курсора.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrUnauthenticated возвращается, если токен отсутствует или неизвестен.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized возвращается, если у пользователя нет прав на операцию.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput возвращается для некорректных входных данных.
	ErrInvalidInput = errors.New("invalid input")
	// ErrQueueClosed возвращается при работе с закрытой очередью задач.
	ErrQueueClosed = errors.New("queue closed")
)
