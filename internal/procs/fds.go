package procs

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// pipeEnds holds the two descriptors of a pipe.
type pipeEnds struct {
	r int
	w int
}

// fdSet tracks the descriptors owned by a single launch attempt. Every
// descriptor added is closed exactly once: either explicitly via close, or by
// closeAll, unless ownership is handed out with release.
type fdSet struct {
	owned map[int]struct{}
}

func newFDSet() *fdSet {
	return &fdSet{owned: make(map[int]struct{})}
}

func (s *fdSet) add(fds ...int) {
	for _, fd := range fds {
		s.owned[fd] = struct{}{}
	}
}

// close closes fd if the set still owns it.
func (s *fdSet) close(fd int) {
	if _, ok := s.owned[fd]; !ok {
		return
	}
	delete(s.owned, fd)
	_ = unix.Close(fd)
}

// release transfers ownership of fd to the caller without closing it.
func (s *fdSet) release(fd int) {
	delete(s.owned, fd)
}

func (s *fdSet) closeAll() {
	for fd := range s.owned {
		_ = unix.Close(fd)
	}
	clear(s.owned)
}

// pipe creates a close-on-exec pipe owned by the set.
func (s *fdSet) pipe() (pipeEnds, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return pipeEnds{}, fmt.Errorf("%w: pipe: %w", ErrResourceExhausted, err)
	}
	s.add(p[0], p[1])
	return pipeEnds{r: p[0], w: p[1]}, nil
}

// openNull opens the null device read-write, owned by the set.
func (s *fdSet) openNull(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("%w: open %s: %w", ErrResourceExhausted, path, err)
	}
	s.add(fd)
	return fd, nil
}

// adopt wraps fd in an *os.File after releasing it from the set.
func (s *fdSet) adopt(fd int, name string) *os.File {
	s.release(fd)
	return os.NewFile(uintptr(fd), name)
}

// classifyStartError wraps a fork/exec failure with the matching sentinel.
func classifyStartError(argv0 string, err error) error {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOMEM) || errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE) {
		return fmt.Errorf("%w: fork %s: %w", ErrResourceExhausted, argv0, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrExecFailed, argv0, err)
}
