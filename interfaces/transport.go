package interfaces

import (
	"bytes"
)

// IntegrationTransport is what the pipeline needs from any transport.
type IntegrationTransport interface {
	// CollectRawData fetches the configured payload.
	CollectRawData() (*bytes.Buffer, error)
	// SendData delivers data and reports the outcome as a value instead of an error.
	SendData(data *bytes.Buffer) (bool, string)
	// CurrentTransportMethod identifies the transport, e.g. "sftp".
	CurrentTransportMethod() string
	// SetAfterSend registers a hook run once after every successful SendData.
	SetAfterSend(fn func())
	// SetErrorAction registers a hook receiving SendData failures.
	SetErrorAction(fn func(error))
}

// FileIntegrationTransport is an IntegrationTransport backed by a remote file system.
type FileIntegrationTransport interface {
	IntegrationTransport

	PathSeparator() string
	ListFiles(directory, matchExpression string) ([]string, error)
	DeleteFile() error
	EnsureDirectory(path string) error
	FileExists(path string) (bool, error)
	RenameFile(newPath string) error
}
