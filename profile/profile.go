// Package profile keeps the list of known servers on disk.
package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	// ErrDuplicateName is returned when a server name is already taken.
	ErrDuplicateName = errors.New("profile: server name already in use")

	// ErrNotFound is returned for an unknown server name.
	ErrNotFound = errors.New("profile: no such server")
)

// Server is one remembered server.
type Server struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port,omitempty"`
	User string `yaml:"user,omitempty"`
	Path string `yaml:"path,omitempty"`
}

// applyDefaults fills what a hand-written file may leave out.
func (s *Server) applyDefaults() {
	if s.Name == "" {
		s.Name = "server-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	}
	if s.Path == "" {
		s.Path = "/"
	}
}

// List is the known-server list, kept sorted by name.
type List struct {
	servers []Server
}

type file struct {
	Servers []Server `yaml:"servers"`
}

// Load reads a list. A missing file is an empty list.
func Load(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &List{}, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses YAML, fills defaults and drops entries whose name repeats
// an earlier one.
func Decode(data []byte) (*List, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server list: %w", err)
	}

	l := &List{}
	for _, s := range f.Servers {
		if s.Host == "" {
			return nil, fmt.Errorf("server %q has no host", s.Name)
		}
		if err := l.Add(s); err != nil && !errors.Is(err, ErrDuplicateName) {
			return nil, err
		}
	}
	return l, nil
}

// Save writes the list atomically.
func (l *List) Save(path string) error {
	data, err := yaml.Marshal(file{Servers: l.servers})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".servers-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Servers returns a copy of the list.
func (l *List) Servers() []Server {
	return slices.Clone(l.servers)
}

// Len returns the number of servers.
func (l *List) Len() int {
	return len(l.servers)
}

// At returns the server at index i.
func (l *List) At(i int) Server {
	return l.servers[i]
}

func (l *List) sort() {
	slices.SortStableFunc(l.servers, func(a, b Server) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// Add inserts s, filling defaults. The name must be unused.
func (l *List) Add(s Server) error {
	s.applyDefaults()
	if l.IndexOfName(s.Name) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateName, s.Name)
	}
	l.servers = append(l.servers, s)
	l.sort()
	return nil
}

// Remove deletes the server called name.
func (l *List) Remove(name string) error {
	i := l.IndexOfName(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	l.servers = slices.Delete(l.servers, i, i+1)
	return nil
}

// Rename gives a server a new, unused name.
func (l *List) Rename(from, to string) error {
	i := l.IndexOfName(from)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, from)
	}
	if from == to {
		return nil
	}
	if to == "" || l.IndexOfName(to) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateName, to)
	}
	l.servers[i].Name = to
	l.sort()
	return nil
}

// IndexOfName returns the index of the server called name, or -1.
func (l *List) IndexOfName(name string) int {
	return slices.IndexFunc(l.servers, func(s Server) bool { return s.Name == name })
}

// IndexOf returns the index of the first server with this host, user and
// path, or -1.
func (l *List) IndexOf(host, user, path string) int {
	return slices.IndexFunc(l.servers, func(s Server) bool {
		return s.Host == host && s.User == user && s.Path == path
	})
}

// Remember adds host, user and path under a generated name unless the
// same triple is already known. It reports whether the list changed.
func (l *List) Remember(host, user, path string) bool {
	if path == "" {
		path = "/"
	}
	if l.IndexOf(host, user, path) >= 0 {
		return false
	}
	for {
		err := l.Add(Server{Host: host, User: user, Path: path})
		if !errors.Is(err, ErrDuplicateName) {
			return err == nil
		}
	}
}
