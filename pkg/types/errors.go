package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a SpriteError.
type ErrorKind int

const (
	CompositionError ErrorKind = iota
	PersistError
	NotFoundError
	InvalidRequestError
	BuildTimeout
	MetadataError
)

func (k ErrorKind) String() string {
	switch k {
	case CompositionError:
		return "CompositionError"
	case PersistError:
		return "PersistError"
	case NotFoundError:
		return "NotFoundError"
	case InvalidRequestError:
		return "InvalidRequestError"
	case BuildTimeout:
		return "BuildTimeout"
	case MetadataError:
		return "MetadataError"
	}
	return "Unknown"
}

// Sentinels so callers can match a kind with errors.Is.
var (
	ErrComposition    = errors.New("sprite: composition failed")
	ErrPersist        = errors.New("sprite: persist failed")
	ErrNotFound       = errors.New("sprite: item not found")
	ErrInvalidRequest = errors.New("sprite: invalid request")
	ErrBuildTimeout   = errors.New("sprite: build timed out")
	ErrMetadata       = errors.New("sprite: metadata lookup failed")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case CompositionError:
		return ErrComposition
	case PersistError:
		return ErrPersist
	case NotFoundError:
		return ErrNotFound
	case InvalidRequestError:
		return ErrInvalidRequest
	case BuildTimeout:
		return ErrBuildTimeout
	case MetadataError:
		return ErrMetadata
	}
	return nil
}

// SpriteError carries the context of a failed sprite operation.
type SpriteError struct {
	Kind        ErrorKind
	Hash        ContentHash
	ItemID      int64 // 0 when the failure is not tied to one item
	SizeVariant string
	Err         error
}

func NewSpriteError(kind ErrorKind, hash ContentHash, itemID int64, sizeVariant string, err error) *SpriteError {
	return &SpriteError{
		Kind:        kind,
		Hash:        hash,
		ItemID:      itemID,
		SizeVariant: sizeVariant,
		Err:         err,
	}
}

func (e *SpriteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Hash != "" {
		fmt.Fprintf(&b, " hash=%s", e.Hash)
	}
	if e.ItemID != 0 {
		fmt.Fprintf(&b, " item=%d", e.ItemID)
	}
	if e.SizeVariant != "" {
		fmt.Fprintf(&b, " size=%s", e.SizeVariant)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SpriteError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *SpriteError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the kind of the first SpriteError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var se *SpriteError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}
