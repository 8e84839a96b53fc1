package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibermap/internal/domain"
)

func sampleTopology() *domain.Topology {
	id := uuid.New()
	p := uuid.New()
	return &domain.Topology{
		Liaison: domain.Liaison{
			ID:            id,
			Name:          "LS-SOUSSE-02",
			HeadEnd:       domain.Coordinate{Latitude: 35.82, Longitude: 10.63},
			TailEnd:       domain.Coordinate{Latitude: 35.84, Longitude: 10.60},
			TotalLengthKm: 4,
			Status:        domain.LiaisonStatusActive,
			CreatedAt:     time.Now(),
		},
		Points: []domain.Point{{ID: p, LiaisonID: id, Type: domain.PointTypeSplice, Name: "SP-1", DistanceFromHeadEndKm: 1.5}},
		Segments: []domain.Segment{
			{ID: uuid.New(), LiaisonID: id, ToPointID: &p, CableDistanceKm: 1.5},
			{ID: uuid.New(), LiaisonID: id, FromPointID: &p, CableDistanceKm: 2.5},
		},
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	topo := sampleTopology()
	require.NoError(t, s.CreateTopology(ctx, topo))

	topo.Points[0].Name = "mutated by caller"
	loaded, err := s.LoadTopology(ctx, topo.Liaison.ID)
	require.NoError(t, err)
	assert.Equal(t, "SP-1", loaded.Points[0].Name)

	*loaded.Segments[0].ToPointID = uuid.New()
	again, err := s.LoadTopology(ctx, topo.Liaison.ID)
	require.NoError(t, err)
	assert.Equal(t, again.Points[0].ID, *again.Segments[0].ToPointID)
}

func TestStoreCreateTopologyRejectsDuplicatesAndInvalid(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	topo := sampleTopology()
	require.NoError(t, s.CreateTopology(ctx, topo))
	assert.ErrorIs(t, s.CreateTopology(ctx, topo), domain.ErrConflict)

	broken := sampleTopology()
	broken.Points[0].Ordre = 3
	assert.ErrorIs(t, s.CreateTopology(ctx, broken), domain.ErrConflict)
	_, err := s.FindByID(ctx, broken.Liaison.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreEditTopology(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	topo := sampleTopology()
	require.NoError(t, s.CreateTopology(ctx, topo))
	id := topo.Liaison.ID

	t.Run("commits on success", func(t *testing.T) {
		edited, err := s.EditTopology(ctx, id, func(tp *domain.Topology) error {
			tp.Points[0].Description = "under the bridge"
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "under the bridge", edited.Points[0].Description)

		loaded, err := s.LoadTopology(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "under the bridge", loaded.Points[0].Description)
	})

	t.Run("callback error leaves snapshot", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := s.EditTopology(ctx, id, func(tp *domain.Topology) error {
			tp.Points = nil
			return boom
		})
		assert.ErrorIs(t, err, boom)
		loaded, err := s.LoadTopology(ctx, id)
		require.NoError(t, err)
		assert.Len(t, loaded.Points, 1)
	})

	t.Run("invalid result is rejected", func(t *testing.T) {
		_, err := s.EditTopology(ctx, id, func(tp *domain.Topology) error {
			tp.Segments = append(tp.Segments, tp.Segments[0])
			return nil
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
		loaded, err := s.LoadTopology(ctx, id)
		require.NoError(t, err)
		assert.Len(t, loaded.Segments, 2)
	})

	t.Run("status is not overwritten by edits", func(t *testing.T) {
		_, err := s.EditTopology(ctx, id, func(tp *domain.Topology) error {
			reading := &domain.Reading{ID: uuid.New(), LiaisonID: id}
			require.NoError(t, s.Faults().SaveWithReading(ctx, reading, &domain.Fault{
				ID: uuid.New(), LiaisonID: id, ReadingID: reading.ID, Status: domain.FaultStatusDetected,
			}))
			return nil
		})
		require.NoError(t, err)
		l, err := s.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.LiaisonStatusFaulted, l.Status)
	})

	t.Run("unknown liaison", func(t *testing.T) {
		_, err := s.EditTopology(ctx, uuid.New(), func(*domain.Topology) error { return nil })
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestStoreFindAllFilters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a, b := sampleTopology(), sampleTopology()
	b.Liaison.Name = "LS-SFAX-11"
	b.Liaison.Status = domain.LiaisonStatusPlanned
	require.NoError(t, s.CreateTopology(ctx, a))
	require.NoError(t, s.CreateTopology(ctx, b))

	all, err := s.FindAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	planned, err := s.FindAll(ctx, map[string]interface{}{"status": domain.LiaisonStatusPlanned})
	require.NoError(t, err)
	require.Len(t, planned, 1)
	assert.Equal(t, "LS-SFAX-11", planned[0].Name)

	named, err := s.FindAll(ctx, map[string]interface{}{"name": "LS-SOUSSE-02"})
	require.NoError(t, err)
	require.Len(t, named, 1)
	assert.Equal(t, a.Liaison.ID, named[0].ID)
}

func TestFaultViewLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	topo := sampleTopology()
	require.NoError(t, s.CreateTopology(ctx, topo))
	faults, readings := s.Faults(), s.Readings()

	reading := &domain.Reading{ID: uuid.New(), LiaisonID: topo.Liaison.ID, RawDistanceKm: 2, MeasuredAt: time.Now()}
	fault := &domain.Fault{ID: uuid.New(), LiaisonID: topo.Liaison.ID, ReadingID: reading.ID, Status: domain.FaultStatusDetected}
	require.NoError(t, faults.SaveWithReading(ctx, reading, fault))
	assert.ErrorIs(t, faults.SaveWithReading(ctx, reading, fault), domain.ErrConflict)

	orphan := &domain.Reading{ID: uuid.New(), LiaisonID: uuid.New()}
	assert.ErrorIs(t, faults.SaveWithReading(ctx, orphan, &domain.Fault{ID: uuid.New()}), domain.ErrNotFound)
	_, err := readings.FindByID(ctx, orphan.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := readings.FindByID(ctx, reading.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.RawDistanceKm)
	list, err := readings.FindByLiaisonID(ctx, topo.Liaison.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.Equal(t, domain.LiaisonStatusFaulted, liaisonStatus(t, s, topo.Liaison.ID))

	now := time.Now()
	require.NoError(t, faults.UpdateStatus(ctx, fault.ID, domain.FaultStatusDetected, domain.FaultStatusResolved, &now))
	err = faults.UpdateStatus(ctx, fault.ID, domain.FaultStatusDetected, domain.FaultStatusInProgress, nil)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorIs(t, faults.UpdateStatus(ctx, uuid.New(), domain.FaultStatusDetected, domain.FaultStatusResolved, nil), domain.ErrNotFound)

	stored, err := faults.FindByID(ctx, fault.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FaultStatusResolved, stored.Status)
	require.NotNil(t, stored.ResolvedAt)

	assert.Equal(t, domain.LiaisonStatusActive, liaisonStatus(t, s, topo.Liaison.ID))
}

func TestFaultViewFollowsLiaisonStatus(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	topo := sampleTopology()
	require.NoError(t, s.CreateTopology(ctx, topo))
	faults := s.Faults()

	save := func() uuid.UUID {
		reading := &domain.Reading{ID: uuid.New(), LiaisonID: topo.Liaison.ID}
		fault := &domain.Fault{ID: uuid.New(), LiaisonID: topo.Liaison.ID, ReadingID: reading.ID, Status: domain.FaultStatusDetected}
		require.NoError(t, faults.SaveWithReading(ctx, reading, fault))
		return fault.ID
	}
	first, second := save(), save()
	assert.Equal(t, domain.LiaisonStatusFaulted, liaisonStatus(t, s, topo.Liaison.ID))

	require.NoError(t, faults.UpdateStatus(ctx, first, domain.FaultStatusDetected, domain.FaultStatusInProgress, nil))
	assert.Equal(t, domain.LiaisonStatusUnderRepair, liaisonStatus(t, s, topo.Liaison.ID))

	now := time.Now()
	require.NoError(t, faults.UpdateStatus(ctx, first, domain.FaultStatusInProgress, domain.FaultStatusResolved, &now))
	assert.Equal(t, domain.LiaisonStatusUnderRepair, liaisonStatus(t, s, topo.Liaison.ID), "second fault still open")

	require.NoError(t, faults.UpdateStatus(ctx, second, domain.FaultStatusDetected, domain.FaultStatusResolved, &now))
	assert.Equal(t, domain.LiaisonStatusActive, liaisonStatus(t, s, topo.Liaison.ID))
}

func liaisonStatus(t *testing.T, s *Store, id uuid.UUID) domain.LiaisonStatus {
	t.Helper()
	l, err := s.FindByID(context.Background(), id)
	require.NoError(t, err)
	return l.Status
}
