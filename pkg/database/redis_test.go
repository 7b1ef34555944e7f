package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NotNil(t, client)
	_ = client.Close()

	client, err = ConnectRedis(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, client)

	_, err = ConnectRedis(context.Background(), "not a url")
	assert.Error(t, err)
}
