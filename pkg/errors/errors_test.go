// pkg/errors/errors_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: None
// PURPOSE: Test error creation, wrapping, and code matching

package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    errors.ErrorCode
		message string
		wantStr string
	}{
		{
			name:    "archive_format",
			code:    errors.ErrArchiveFormat,
			message: "unsupported archive format",
			wantStr: "[ARCHIVE_FORMAT] unsupported archive format",
		},
		{
			name:    "passphrase_mismatch",
			code:    errors.ErrPassphraseMismatch,
			message: "passphrases do not match",
			wantStr: "[PASSPHRASE_MISMATCH] passphrases do not match",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errors.New(tt.code, tt.message)

			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.message, err.Message)
			assert.NotNil(t, err.Details)
			assert.Equal(t, tt.wantStr, err.Error())
		})
	}
}

func TestNewf(t *testing.T) {
	err := errors.Newf(errors.ErrRuleInvalid, "unknown rule type %q at index %d", "bogus", 2)
	assert.Equal(t, `unknown rule type "bogus" at index 2`, err.Message)
	assert.Equal(t, errors.ErrRuleInvalid, err.Code)
}

func TestWrap(t *testing.T) {
	t.Run("nil_error_stays_nil", func(t *testing.T) {
		assert.NoError(t, errors.Wrap(nil, errors.ErrIO, "ignored"))
		assert.NoError(t, errors.Wrapf(nil, errors.ErrIO, "ignored %d", 1))
	})

	t.Run("wraps_and_unwraps", func(t *testing.T) {
		base := stderrors.New("disk full")
		err := errors.Wrapf(base, errors.ErrIO, "failed to write %s", "a.txt")
		require.Error(t, err)

		assert.Equal(t, "[IO] failed to write a.txt: disk full", err.Error())
		assert.True(t, stderrors.Is(err, base))
		assert.True(t, errors.IsErrorCode(err, errors.ErrIO))
	})
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", errors.New(errors.ErrAuthentication, "tag mismatch"))

	assert.True(t, stderrors.Is(err, errors.New(errors.ErrAuthentication, "")))
	assert.False(t, stderrors.Is(err, errors.New(errors.ErrIO, "")))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, errors.ErrKeyFile, errors.GetErrorCode(errors.New(errors.ErrKeyFile, "x")))
	assert.Equal(t, errors.ErrUnknown, errors.GetErrorCode(stderrors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := errors.New(errors.ErrIO, "failed").WithDetail("path", "/tmp/x")

	details := errors.GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "/tmp/x", details["path"])
	assert.Nil(t, errors.GetErrorDetails(stderrors.New("plain")))
}
