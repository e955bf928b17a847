package library

import "github.com/pkg/errors"

var (
	ErrBookNotFound        = errors.New("book not found")
	ErrAssetNotDeclared    = errors.New("book has no such asset")
	ErrAssetPresent        = errors.New("asset is already present locally")
	ErrRemoteNotConfigured = errors.New("no remote server is configured")
	ErrSyncDisabled        = errors.New("progress sync is not available")
)
