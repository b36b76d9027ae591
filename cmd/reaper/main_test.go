package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnforceInstanceID_FromArg(t *testing.T) {
	enforceEvent = ""

	id, err := enforceInstanceID([]string{"i-0123456789abcdef0"})

	require.NoError(t, err)
	assert.Equal(t, "i-0123456789abcdef0", id)
}

func TestEnforceInstanceID_MissingArg(t *testing.T) {
	enforceEvent = ""

	_, err := enforceInstanceID(nil)

	assert.Error(t, err)
}

func TestEnforceInstanceID_FromEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	payload := `{"detail-type":"EC2 Instance State-change Notification","detail":{"instance-id":"i-0abc","state":"running"}}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	enforceEvent = path
	defer func() { enforceEvent = "" }()

	id, err := enforceInstanceID(nil)

	require.NoError(t, err)
	assert.Equal(t, "i-0abc", id)
}

func TestEnforceInstanceID_EventWithoutInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"detail":{}}`), 0o600))

	enforceEvent = path
	defer func() { enforceEvent = "" }()

	_, err := enforceInstanceID(nil)

	assert.ErrorContains(t, err, "instance-id")
}

func TestEnforceInstanceID_EventFileMissing(t *testing.T) {
	enforceEvent = filepath.Join(t.TempDir(), "nope.json")
	defer func() { enforceEvent = "" }()

	_, err := enforceInstanceID(nil)

	assert.Error(t, err)
}
