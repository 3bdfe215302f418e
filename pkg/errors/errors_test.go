package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeClassifiesWrappedSentinels(t *testing.T) {
	cases := map[string]error{
		"invalid_input":       fmt.Errorf("topic id 0: %w", ErrInvalidInput),
		"rebuild_in_progress": ErrRebuildInProgress,
		"config_load":         fmt.Errorf("reading settings hash: %w", ErrConfigLoad),
		"iteration":           fmt.Errorf("walking topics:tid: %w", ErrIteration),
		"index_engine":        fmt.Errorf("opening index: %w", ErrIndexEngine),
		"internal":            errors.New("disk on fire"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Code(err))
	}
}

func TestFromCodeRestoresSentinel(t *testing.T) {
	for _, sentinel := range []error{
		ErrInvalidInput, ErrRebuildInProgress, ErrConfigLoad, ErrIteration, ErrIndexEngine,
	} {
		code := Code(sentinel)
		err := FromCode(code, "remote detail")
		assert.ErrorIs(t, err, sentinel, code)
		assert.ErrorContains(t, err, "remote detail")
	}
}

func TestFromCodeWithoutMessage(t *testing.T) {
	err := FromCode("invalid_input", "")
	assert.Equal(t, ErrInvalidInput, err, "an empty message yields the bare sentinel")
}

func TestFromCodeUnknownCode(t *testing.T) {
	err := FromCode("unknown_method", "unknown method: Nope.Nope")
	assert.EqualError(t, err, "unknown method: Nope.Nope")
	assert.NotErrorIs(t, err, ErrInvalidInput)
}

func TestRoundTripPreservesClassification(t *testing.T) {
	orig := fmt.Errorf("decoding request: bad json: %w", ErrInvalidInput)
	restored := FromCode(Code(orig), orig.Error())
	assert.ErrorIs(t, restored, ErrInvalidInput)
	assert.Equal(t, "invalid_input", Code(restored))
}
