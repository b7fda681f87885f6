package remote

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuth(t *testing.T) {
	assert.True(t, IsAuth(&Error{Status: 401}))
	assert.True(t, IsAuth(fmt.Errorf("pull: %w", &Error{Status: 403, Message: "forbidden"})))
	assert.False(t, IsAuth(&Error{Status: 500}))
	assert.False(t, IsAuth(&Error{Status: 0, Message: "dial tcp"}))
	assert.False(t, IsAuth(errors.New("401")))
	assert.False(t, IsAuth(nil))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("pull: %w", &Error{Status: 404, Message: "gone"})))
	assert.False(t, IsNotFound(&Error{Status: 403}))
	assert.False(t, IsNotFound(errors.New("404")))
	assert.False(t, IsNotFound(nil))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "remote store error 503: backend down", (&Error{Status: 503, Message: "backend down"}).Error())
	assert.Equal(t, "remote store unreachable: timeout", (&Error{Message: "timeout"}).Error())
}
