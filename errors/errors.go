package errors

import "fmt"

var (
	ErrUnauthenticated      = fmt.Errorf("missing or invalid credential")
	ErrInvalidInput         = fmt.Errorf("missing or malformed field")
	ErrInvalidParticipant   = fmt.Errorf("invalid conversation participant")
	ErrConversationExists   = fmt.Errorf("conversation already exists for this pair")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrNotParticipant       = fmt.Errorf("not a participant of this conversation")
	ErrStoreUnavailable     = fmt.Errorf("store unavailable")
	ErrUserNotFound         = fmt.Errorf("user not found")
	ErrUserAlreadyExists    = fmt.Errorf("user already exists")
	ErrInvalidCredentials   = fmt.Errorf("invalid credentials")
	ErrInvalidPassword      = fmt.Errorf("password does not meet complexity rules")
	ErrTokenGeneration      = fmt.Errorf("token generation failed")
)
