package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Unauthenticated(t *testing.T) {
	s := &Session{}

	_, ok := s.AccountID()
	assert.False(t, ok)

	err := s.CheckAuth()
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidRequest, err.Code)
	assert.Equal(t, "Please authenticate", err.Message)
}

func TestSession_Authenticated(t *testing.T) {
	s := &Session{}
	s.Authenticate(5, time.Now().Unix()+3600)

	accountID, ok := s.AccountID()
	assert.True(t, ok)
	assert.Equal(t, int64(5), accountID)
	assert.Nil(t, s.CheckAuth())
}

func TestSession_Expired(t *testing.T) {
	s := &Session{}
	s.Authenticate(5, time.Now().Unix()-1)

	err := s.CheckAuth()
	require.NotNil(t, err)
	assert.Equal(t, "Please authenticate", err.Message)
}

func TestSession_ReauthenticateExtends(t *testing.T) {
	s := &Session{}
	s.Authenticate(5, time.Now().Unix()-1)
	require.NotNil(t, s.CheckAuth())

	s.Authenticate(5, time.Now().Unix()+3600)
	assert.Nil(t, s.CheckAuth())
}
