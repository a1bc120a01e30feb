package catalog

import (
	"errors"

	"github.com/Mindburn-Labs/custody/pkg/access"
	"github.com/Mindburn-Labs/custody/pkg/anchor"
	"github.com/Mindburn-Labs/custody/pkg/contentstore"
	"github.com/Mindburn-Labs/custody/pkg/guard"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrRecordNotFound     = errors.New("record not found")
	ErrRecordCorrupted    = errors.New("record content missing from storage")
	ErrIntegrityViolation = errors.New("record integrity violation")
)

// Errors surfaced from collaborators, re-exported so callers only import catalog.
var (
	ErrAccessDenied       = access.ErrAccessDenied
	ErrNotOwner           = access.ErrNotOwner
	ErrInvalidGrant       = access.ErrInvalidGrant
	ErrGrantNotFound      = access.ErrGrantNotFound
	ErrStorageUnavailable = contentstore.ErrStorageUnavailable
	ErrContentNotFound    = contentstore.ErrContentNotFound
	ErrEncryption         = guard.ErrEncryption
	ErrDecryption         = guard.ErrDecryption
	ErrLedgerUnavailable  = anchor.ErrLedgerUnavailable
)
