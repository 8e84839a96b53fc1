package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chain(n int) *Topology {
	t := &Topology{Liaison: Liaison{ID: uuid.New()}}
	for i := 0; i < n; i++ {
		t.Points = append(t.Points, Point{ID: uuid.New(), LiaisonID: t.Liaison.ID, Ordre: i})
	}
	var prev *uuid.UUID
	for i := 0; i <= n; i++ {
		var next *uuid.UUID
		if i < n {
			id := t.Points[i].ID
			next = &id
		}
		t.Segments = append(t.Segments, Segment{ID: uuid.New(), LiaisonID: t.Liaison.ID, FromPointID: prev, ToPointID: next, CableDistanceKm: float64(i + 1)})
		prev = next
	}
	return t
}

func TestOrderedSegmentsStartsAtHeadAnchor(t *testing.T) {
	topo := chain(3)
	// reverse storage order
	for i, j := 0, len(topo.Segments)-1; i < j; i, j = i+1, j-1 {
		topo.Segments[i], topo.Segments[j] = topo.Segments[j], topo.Segments[i]
	}

	ordered := topo.OrderedSegments()
	require.Len(t, ordered, 4)
	assert.Nil(t, ordered[0].FromPointID)
	assert.Nil(t, ordered[3].ToPointID)
	for i := 1; i < len(ordered); i++ {
		assert.Equal(t, *ordered[i-1].ToPointID, *ordered[i].FromPointID)
	}
	assert.Equal(t, 10.0, topo.TotalCableKm())
	assert.True(t, topo.HeadAnchored())
	assert.True(t, topo.TailAnchored())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Topology)
		wantErr error
	}{
		{name: "valid", mutate: func(*Topology) {}},
		{name: "gap in ordre", mutate: func(t *Topology) { t.Points[1].Ordre = 5 }, wantErr: ErrConflict},
		{name: "foreign point", mutate: func(t *Topology) { t.Points[0].LiaisonID = uuid.New() }, wantErr: ErrConflict},
		{name: "duplicate segment", mutate: func(t *Topology) { t.Segments = append(t.Segments, t.Segments[1]) }, wantErr: ErrConflict},
		{name: "unknown endpoint", mutate: func(t *Topology) {
			id := uuid.New()
			t.Segments[1].ToPointID = &id
		}, wantErr: ErrConflict},
		{name: "self loop", mutate: func(t *Topology) { t.Segments[1].ToPointID = t.Segments[1].FromPointID }, wantErr: ErrValidation},
		{name: "negative cable", mutate: func(t *Topology) { t.Segments[2].CableDistanceKm = -0.1 }, wantErr: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topo := chain(2)
			tt.mutate(topo)
			err := topo.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	topo := chain(1)
	topo.Segments[0].Trace = []Coordinate{{Latitude: 1, Longitude: 2}}
	c := topo.Clone()

	*c.Segments[0].ToPointID = uuid.New()
	c.Segments[0].Trace[0].Latitude = 9
	c.Points[0].Name = "changed"

	assert.Equal(t, topo.Points[0].ID, *topo.Segments[0].ToPointID)
	assert.Equal(t, 1.0, topo.Segments[0].Trace[0].Latitude)
	assert.Empty(t, topo.Points[0].Name)
}

func TestFaultStatusTransitions(t *testing.T) {
	assert.True(t, FaultStatusDetected.CanTransitionTo(FaultStatusInProgress))
	assert.True(t, FaultStatusDetected.CanTransitionTo(FaultStatusResolved))
	assert.True(t, FaultStatusInProgress.CanTransitionTo(FaultStatusResolved))
	assert.False(t, FaultStatusInProgress.CanTransitionTo(FaultStatusDetected))
	assert.False(t, FaultStatusResolved.CanTransitionTo(FaultStatusInProgress))
	assert.False(t, FaultStatusDetected.CanTransitionTo(FaultStatusDetected))
}

func TestLiaisonStatusAfter(t *testing.T) {
	tests := []struct {
		status FaultStatus
		open   int
		want   LiaisonStatus
	}{
		{FaultStatusDetected, 1, LiaisonStatusFaulted},
		{FaultStatusInProgress, 1, LiaisonStatusUnderRepair},
		{FaultStatusResolved, 0, LiaisonStatusActive},
		{FaultStatusResolved, 2, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LiaisonStatusAfter(tt.status, tt.open), "%s with %d open", tt.status, tt.open)
	}
}
