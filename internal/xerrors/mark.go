package xerrors

import "fmt"

// marked makes errors.Is(err, mark) true while Error() and Unwrap() still
// describe the underlying failure.
type marked struct {
	err  error
	mark error
}

func (m *marked) Error() string        { return m.err.Error() }
func (m *marked) Unwrap() error        { return m.err }
func (m *marked) Is(target error) bool { return target == m.mark }
func (m *marked) IsXerrorsWrapper()    {}

// Mark tags err with a sentinel. A nil err or nil mark returns err unchanged.
func Mark(err, mark error) error {
	if err == nil || mark == nil {
		return err
	}
	return &marked{err: err, mark: mark}
}

// Markf creates a new stacked error tagged with mark.
func Markf(mark error, format string, args ...any) error {
	return Mark(withStackSkip(fmt.Errorf(format, args...), 2), mark)
}
