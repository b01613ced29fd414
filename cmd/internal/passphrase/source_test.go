package passphrase

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSource(env map[string]string, tty bool, typed string, readErr error) (*Source, *int) {
	reads := 0
	s := NewSource("TEST_PASS", "Passphrase: ")
	s.lookup = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.isTerminal = func() bool { return tty }
	s.read = func() ([]byte, error) {
		reads++
		return []byte(typed), readErr
	}
	s.out = &bytes.Buffer{}
	return s, &reads
}

func TestEnvironmentWins(t *testing.T) {
	s, reads := newTestSource(map[string]string{"TEST_PASS": "hunter2"}, true, "typed", nil)
	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "hunter2", got)
	require.Zero(t, *reads)
}

func TestBlankEnvironmentRejected(t *testing.T) {
	s, _ := newTestSource(map[string]string{"TEST_PASS": "  "}, true, "typed", nil)
	_, err := s.Get()
	require.ErrorContains(t, err, "set but empty")
}

func TestPromptIsCached(t *testing.T) {
	s, reads := newTestSource(nil, true, "typed", nil)
	for i := 0; i < 2; i++ {
		got, err := s.Get()
		require.NoError(t, err)
		require.Equal(t, "typed", got)
	}
	require.Equal(t, 1, *reads)
}

func TestNoTerminal(t *testing.T) {
	s, _ := newTestSource(nil, false, "", nil)
	_, err := s.Get()
	require.ErrorContains(t, err, "TEST_PASS")
}

func TestPromptFailures(t *testing.T) {
	s, _ := newTestSource(nil, true, " ", nil)
	_, err := s.Get()
	require.ErrorContains(t, err, "cannot be empty")

	s, _ = newTestSource(nil, true, "", errors.New("eof"))
	_, err = s.Get()
	require.ErrorContains(t, err, "eof")
}
