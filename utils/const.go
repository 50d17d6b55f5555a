package utils

import (
	"path/filepath"
	"strings"
)

// RemoteSeparator is the path separator used on the remote side.
const RemoteSeparator = "/"

const (
	// PermissionFileRead ... Permission to list a directory or stat a file.
	PermissionFileRead = "file.read"
	// PermissionFileReadContent ... Permission to read the contents of a file.
	PermissionFileReadContent = "file.read-content"
	// PermissionFileCreate ... Permission to create a file or directory.
	PermissionFileCreate = "file.create"
	// PermissionFileUpdate ... Permission to overwrite, rename or chmod a file.
	PermissionFileUpdate = "file.update"
	// PermissionFileDelete ... Permission to delete a file or directory.
	PermissionFileDelete = "file.delete"
	// PermissionAll grants every permission.
	PermissionAll = "*"
)

var DefaultPermissions = []string{
	PermissionFileRead,
	PermissionFileReadContent,
	PermissionFileCreate,
	PermissionFileUpdate,
	PermissionFileDelete,
}

func AbsPath(path string) string {
	if !filepath.IsAbs(path) {
		b, err := filepath.Abs(path)
		if err == nil {
			path = b
		}
	}
	return path
}

// JoinRemote joins a remote directory and a file name with exactly one separator,
// whatever separators the two parts already carry. A leading separator on the
// directory is kept so absolute paths stay absolute.
func JoinRemote(directory, name string) string {
	name = strings.TrimLeft(name, RemoteSeparator)
	if directory == "" {
		return name
	}
	trimmed := strings.TrimRight(directory, RemoteSeparator)
	if trimmed == "" {
		// directory was only separators
		return RemoteSeparator + name
	}
	if name == "" {
		return trimmed
	}
	return trimmed + RemoteSeparator + name
}
