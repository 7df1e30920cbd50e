package lsp

import "errors"

var (
	// ErrDocumentNotOpen indicates a request referenced a document that is not tracked.
	ErrDocumentNotOpen = errors.New("document is not open")
	// ErrStaleVersion indicates a request version is older than the current snapshot.
	ErrStaleVersion = errors.New("stale document version")
	// ErrInvalidChange indicates a content change that does not fit the document.
	ErrInvalidChange = errors.New("invalid content change")
	// ErrParseCancelled indicates a reparse was superseded or its context ended.
	ErrParseCancelled = errors.New("parse cancelled")
)
