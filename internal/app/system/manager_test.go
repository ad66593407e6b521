package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	startErr error
	log      *[]string
}

func (s recordingService) Name() string { return s.name }

func (s recordingService) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	*s.log = append(*s.log, "start "+s.name)
	return nil
}

func (s recordingService) Stop(context.Context) error {
	*s.log = append(*s.log, "stop "+s.name)
	return nil
}

func TestManagerStartsInOrderAndStopsInReverse(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "feed", log: &log}))
	require.NoError(t, m.Register(recordingService{name: "scheduler", log: &log}))

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, []string{"start feed", "start scheduler", "stop scheduler", "stop feed"}, log)

	assert.Error(t, m.Register(nil))
}

func TestManagerRejectsDuplicatesAndLateRegistration(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "scheduler", log: &log}))
	assert.Error(t, m.Register(recordingService{name: "scheduler", log: &log}))

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Register(recordingService{name: "other", log: &log}))
}

func TestManagerUnwindsOnStartFailure(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "cache", log: &log}))
	require.NoError(t, m.Register(recordingService{name: "scheduler", startErr: errors.New("bad cron spec"), log: &log}))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start scheduler")
	assert.Equal(t, []string{"start cache", "stop cache"}, log)
}
