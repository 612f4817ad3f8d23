package domain

import "errors"

var (
	// ErrQuizNotFound indicates the referenced quiz id does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates an update referenced a question id that
	// does not belong to the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNotQuizOwner is returned when a mutating operation is attempted by
	// anyone other than the quiz creator.
	ErrNotQuizOwner = errors.New("requester is not the quiz owner")
	// ErrAIServiceUnavailable hides upstream AI failure detail from callers.
	ErrAIServiceUnavailable = errors.New("ai service unavailable")
)
