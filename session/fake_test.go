package session

import (
	"bytes"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/oarkflow/sftp-transport/interfaces"
)

// fakeClient is an in-memory interfaces.Client recording how it is driven.
type fakeClient struct {
	files   map[string][]byte
	mtimes  map[string]time.Time
	dirs    map[string]bool
	order   []string // listing order, as a server would report it
	writes  []int    // sizes of the writes received by OpenWrite writers
	failOn  map[string]error
	connErr error

	connected   bool
	connects    int
	disconnects int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		files:  map[string][]byte{},
		mtimes: map[string]time.Time{},
		dirs:   map[string]bool{"/": true},
		failOn: map[string]error{},
	}
}

func (f *fakeClient) addFile(p string, content string, mtime time.Time) {
	f.files[p] = []byte(content)
	f.mtimes[p] = mtime
	f.order = append(f.order, p)
}

func (f *fakeClient) addDir(p string, mtime time.Time) {
	f.dirs[p] = true
	f.mtimes[p] = mtime
	f.order = append(f.order, p)
}

func (f *fakeClient) Connect() error {
	if f.connErr != nil {
		return f.connErr
	}
	f.connected = true
	f.connects++
	return nil
}

func (f *fakeClient) Disconnect() error {
	f.connected = false
	f.disconnects++
	return nil
}

func (f *fakeClient) IsConnected() bool {
	return f.connected
}

func (f *fakeClient) fail(op string) error {
	if !f.connected {
		return io.ErrClosedPipe
	}
	return f.failOn[op]
}

func (f *fakeClient) ReadDir(dir string) ([]interfaces.Entry, error) {
	if err := f.fail("readdir"); err != nil {
		return nil, err
	}
	if !f.dirs[dir] {
		return nil, &fs.PathError{Op: "readdir", Path: dir, Err: fs.ErrNotExist}
	}

	var entries []interfaces.Entry
	for _, p := range f.order {
		if path.Dir(p) != dir {
			continue
		}
		_, isFile := f.files[p]
		entries = append(entries, interfaces.Entry{
			Name:    path.Base(p),
			Path:    p,
			ModTime: f.mtimes[p],
			Size:    int64(len(f.files[p])),
			Regular: isFile,
		})
	}
	return entries, nil
}

type recordingWriter struct {
	f    *fakeClient
	p    string
	buf  bytes.Buffer
	fail error
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if w.fail != nil {
		return 0, w.fail
	}
	w.f.writes = append(w.f.writes, len(b))
	return w.buf.Write(b)
}

func (w *recordingWriter) Close() error {
	w.f.files[w.p] = w.buf.Bytes()
	if _, ok := w.f.mtimes[w.p]; !ok {
		w.f.order = append(w.f.order, w.p)
	}
	w.f.mtimes[w.p] = time.Now()
	return nil
}

func (f *fakeClient) OpenWrite(p string) (io.WriteCloser, error) {
	if err := f.fail("open"); err != nil {
		return nil, err
	}
	return &recordingWriter{f: f, p: p, fail: f.failOn["write"]}, nil
}

func (f *fakeClient) Download(p string, w io.Writer) error {
	if err := f.fail("download"); err != nil {
		return err
	}
	content, ok := f.files[p]
	if !ok {
		return &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	_, err := w.Write(content)
	return err
}

func (f *fakeClient) Exists(p string) (bool, error) {
	if err := f.fail("exists"); err != nil {
		return false, err
	}
	_, isFile := f.files[p]
	return isFile || f.dirs[p], nil
}

func (f *fakeClient) Mkdir(p string) error {
	if err := f.fail("mkdir"); err != nil {
		return err
	}
	if f.dirs[p] {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
	}
	f.addDir(p, time.Now())
	return nil
}

func (f *fakeClient) Rename(oldPath, newPath string) error {
	if err := f.fail("rename"); err != nil {
		return err
	}
	content, ok := f.files[oldPath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldPath, Err: fs.ErrNotExist}
	}
	f.files[newPath] = content
	f.mtimes[newPath] = f.mtimes[oldPath]
	delete(f.files, oldPath)
	for i, p := range f.order {
		if p == oldPath {
			f.order[i] = newPath
		}
	}
	return nil
}

func (f *fakeClient) Remove(p string) error {
	if err := f.fail("remove"); err != nil {
		return err
	}
	if _, ok := f.files[p]; !ok {
		return &fs.PathError{Op: "remove", Path: p, Err: fs.ErrNotExist}
	}
	delete(f.files, p)
	return nil
}

// paths returns every stored file path, sorted.
func (f *fakeClient) paths() []string {
	var out []string
	for p := range f.files {
		if strings.HasPrefix(p, "/") {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
