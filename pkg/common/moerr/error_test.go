// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package moerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	err := NewInternalError(context.TODO(), "unsupported log format: %s", "xml")
	require.Equal(t, ErrInternal, err.ErrorCode())
	require.Equal(t, "internal error: unsupported log format: xml", err.Error())

	oom := NewOOMNoCtx()
	require.Equal(t, ErrOOM, oom.ErrorCode())
	require.Equal(t, "error: out of memory", oom.Error())
	require.False(t, oom.Succeeded())
}

func TestIsMoErrCode(t *testing.T) {
	require.True(t, IsMoErrCode(nil, Ok))
	require.False(t, IsMoErrCode(nil, ErrOOM))

	err := NewOOMNoCtx()
	require.True(t, IsMoErrCode(err, ErrOOM))
	require.False(t, IsMoErrCode(err, ErrInternal))

	require.False(t, IsMoErrCode(context.DeadlineExceeded, ErrInternal))
}

func TestErrorsIs(t *testing.T) {
	err := NewOOMNoCtx()
	require.True(t, errors.Is(err, NewOOMNoCtx()))
	require.False(t, errors.Is(err, NewInternalErrorNoCtx("boom")))

	wrapped := fmt.Errorf("allocate: %w", err)
	require.True(t, errors.Is(wrapped, NewOOMNoCtx()))
}

func TestMessageFormats(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{NewInvalidArgNoCtx("allocate size", -1), "invalid argument allocate size, bad value -1"},
		{NewBadConfigNoCtx("unknown allocator kind %q", "jemalloc"), `invalid configuration: unknown allocator kind "jemalloc"`},
		{NewInvalidInputNoCtx("short buffer: %d bytes", 3), "invalid input: short buffer: 3 bytes"},
		{NewInvalidStateNoCtx("vector already freed"), "invalid state vector already freed"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.err.Error())
	}
}

func TestUnknownCodePanics(t *testing.T) {
	require.Panics(t, func() {
		newError(context.TODO(), uint16(12345))
	})
}
