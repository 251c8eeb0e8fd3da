package vectorindex

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-qa-go/internal/model"
)

// scriptedManager 按顺序返回预设的 InspectSchema 结果，createCollection 返回固定错误。
type scriptedManager struct {
	states    []SchemaState
	createErr error
	drops     int
}

func (m *scriptedManager) InspectSchema(context.Context, int) (SchemaState, error) {
	s := m.states[0]
	m.states = m.states[1:]
	return s, nil
}

func (m *scriptedManager) createCollection(context.Context, int) error { return m.createErr }

func (m *scriptedManager) dropCollection(context.Context) error {
	m.drops++
	return nil
}

func existsErr() error {
	return fmt.Errorf("%w: create collection: %w", model.ErrIndex, errCollectionExists)
}

func TestEnsureSchemaConcurrentCreateIsUnchanged(t *testing.T) {
	m := &scriptedManager{states: []SchemaState{SchemaAbsent, SchemaCompatible}, createErr: existsErr()}

	action, err := ensureSchema(context.Background(), m, "documents", 4)
	require.NoError(t, err)
	assert.Equal(t, SchemaUnchanged, action)
}

func TestEnsureSchemaConcurrentCreateWithOtherDimensionFails(t *testing.T) {
	m := &scriptedManager{states: []SchemaState{SchemaAbsent, SchemaIncompatible}, createErr: existsErr()}

	_, err := ensureSchema(context.Background(), m, "documents", 4)
	assert.ErrorIs(t, err, model.ErrIndex)
}

func TestEnsureSchemaConcurrentRecreate(t *testing.T) {
	m := &scriptedManager{states: []SchemaState{SchemaIncompatible, SchemaCompatible}, createErr: existsErr()}

	action, err := ensureSchema(context.Background(), m, "documents", 4)
	require.NoError(t, err)
	assert.Equal(t, SchemaRecreated, action)
	assert.Equal(t, 1, m.drops)
}

func TestEnsureSchemaOtherCreateErrorsPropagate(t *testing.T) {
	m := &scriptedManager{states: []SchemaState{SchemaAbsent}, createErr: fmt.Errorf("%w: disk full", model.ErrIndex)}

	_, err := ensureSchema(context.Background(), m, "documents", 4)
	assert.ErrorIs(t, err, model.ErrIndex)
	assert.NotErrorIs(t, err, errCollectionExists)
}

func TestBoltEnsureSchemaConcurrentCallers(t *testing.T) {
	idx := newTestBolt(t)
	const workers = 8

	var wg sync.WaitGroup
	actions := make([]SchemaAction, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actions[i], errs[i] = idx.EnsureSchema(context.Background(), 4)
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if actions[i] == SchemaCreated {
			created++
		} else {
			assert.Equal(t, SchemaUnchanged, actions[i])
		}
	}
	assert.Equal(t, 1, created)
}
