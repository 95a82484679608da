package chatguessr

import "errors"

var ErrNotFound = errors.New("not found")

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindNotFound
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Error is a user-facing failure with a stable machine-readable code the chat
// layer can map to a message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so wrapped copies still compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

var (
	ErrInvalidLocation = &Error{Kind: KindValidation, Code: "invalidLocation", Message: "invalid coordinates"}
	ErrInvalidSeedURL  = &Error{Kind: KindValidation, Code: "invalidSeedUrl", Message: "invalid game url"}
	ErrInvalidUsername = &Error{Kind: KindValidation, Code: "invalidUsername", Message: "username is required"}
	ErrInvalidUser     = &Error{Kind: KindValidation, Code: "invalidUser", Message: "invalid user id"}

	ErrAlreadyGuessed         = &Error{Kind: KindConflict, Code: "alreadyGuessed", Message: "user already guessed"}
	ErrSubmittedPreviousGuess = &Error{Kind: KindConflict, Code: "submittedPreviousGuess", Message: "same guess as the previous one"}
	ErrGuessesClosed          = &Error{Kind: KindConflict, Code: "guessesClosed", Message: "guesses are closed"}
	ErrUserBanned             = &Error{Kind: KindConflict, Code: "userBanned", Message: "user is banned"}
	ErrGameFinished           = &Error{Kind: KindConflict, Code: "gameFinished", Message: "game is finished"}

	ErrNoActiveRound = &Error{Kind: KindNotFound, Code: "noActiveRound", Message: "no active round"}

	ErrSeedUnavailable = &Error{Kind: KindExternal, Code: "seedUnavailable", Message: "could not fetch game seed"}
)

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return 0
}
