package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeGoWithCallback_RecoversPanic(t *testing.T) {
	recovered := make(chan any, 1)
	SafeGoWithCallback("test", func() { panic("boom") }, func(r any) { recovered <- r })

	select {
	case r := <-recovered:
		assert.Equal(t, "boom", r)
	case <-time.After(time.Second):
		t.Fatal("panic callback not invoked")
	}
}

func TestSafeGoWithName_Runs(t *testing.T) {
	done := make(chan struct{})
	SafeGoWithName("test", func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestJSON(t *testing.T) {
	type payload struct {
		Actor string `json:"actor"`
		Hits  int    `json:"hits"`
	}

	data, err := Marshal(payload{Actor: "hero", Hits: 3})
	require.NoError(t, err)

	back, err := FromJSONBytes[payload](data)
	require.NoError(t, err)
	assert.Equal(t, payload{Actor: "hero", Hits: 3}, back)

	actor, err := GetString(data, "actor")
	require.NoError(t, err)
	assert.Equal(t, "hero", actor)

	pretty, err := ToJSONPretty(back)
	require.NoError(t, err)
	assert.Contains(t, pretty, "\n  \"hits\": 3")
}
