package token

// Kind classifies why a token was rejected.
type Kind int

const (
	KindMalformed Kind = iota + 1
	KindBadSignature
	KindExpired
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindBadSignature:
		return "bad signature"
	case KindExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Error is returned by Issuer.Verify.
type Error struct {
	Kind Kind
	Err  error
}

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrMalformed    = &Error{Kind: KindMalformed}
	ErrBadSignature = &Error{Kind: KindBadSignature}
	ErrExpired      = &Error{Kind: KindExpired}
)

func (e *Error) Error() string {
	if e.Err == nil {
		return "token: " + e.Kind.String()
	}
	return "token: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}
