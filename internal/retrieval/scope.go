package retrieval

import (
	"fmt"

	"github.com/kalambet/docchat/internal/storage"
)

// Scope describes which part of the library a retrieval pass may consult.
// The zero value is the general scope, which performs no retrieval at all.
type Scope struct {
	// Mode is one of the storage.Mode* constants.
	Mode string

	// FileIDs restricts search to these files. Nil means the whole library;
	// it is ignored when Mode is general.
	FileIDs []string
}

// GeneralScope returns a scope that skips retrieval entirely.
func GeneralScope() Scope {
	return Scope{Mode: storage.ModeGeneral}
}

// FileScope returns a scope restricted to the given files. The mode must be
// single_file or multi_file and the file count must match it.
func FileScope(mode string, fileIDs []string) (Scope, error) {
	switch mode {
	case storage.ModeSingleFile:
		if len(fileIDs) != 1 {
			return Scope{}, fmt.Errorf("single_file scope requires exactly one file, got %d", len(fileIDs))
		}
	case storage.ModeMultiFile:
		if len(fileIDs) == 0 {
			return Scope{}, fmt.Errorf("multi_file scope requires at least one file")
		}
	default:
		return Scope{}, fmt.Errorf("mode %q does not take a file scope", mode)
	}
	ids := make([]string, len(fileIDs))
	copy(ids, fileIDs)
	return Scope{Mode: mode, FileIDs: ids}, nil
}

// LibraryScope returns a scope that searches every file in the library.
func LibraryScope() Scope {
	return Scope{Mode: storage.ModeFullLibrary}
}

// ScopeForMode builds the scope for a conversation's mode and file scope,
// validating the file count against the mode.
func ScopeForMode(mode string, fileIDs []string) (Scope, error) {
	switch mode {
	case storage.ModeGeneral:
		return GeneralScope(), nil
	case storage.ModeFullLibrary:
		return LibraryScope(), nil
	case storage.ModeSingleFile, storage.ModeMultiFile:
		return FileScope(mode, fileIDs)
	default:
		return Scope{}, fmt.Errorf("unknown conversation mode %q", mode)
	}
}

// Retrieves reports whether this scope performs similarity search.
func (s Scope) Retrieves() bool {
	return s.Mode != storage.ModeGeneral && s.Mode != ""
}

// Filter returns the file filter to pass to VectorStore.Query: nil for an
// unrestricted library search, the scoped ids otherwise.
func (s Scope) Filter() []string {
	if s.Mode == storage.ModeFullLibrary {
		return nil
	}
	return s.FileIDs
}
