package service

import "github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/models"

// LimitResolver is the boundary to the external time-limit configuration.
// Absence of a limit is not an error; the task simply carries none.
type LimitResolver interface {
	TimeLimit(roomGroup string, kind models.TaskKind, capacity models.CapacityCode) *int
}

// LimitKey identifies one row of the time-limit configuration table.
type LimitKey struct {
	RoomGroup string
	Kind      models.TaskKind
	Capacity  models.CapacityCode
}

// StaticLimits is a map-backed LimitResolver. Rows with an empty RoomGroup
// act as a fallback for every group.
type StaticLimits map[LimitKey]int

func (l StaticLimits) TimeLimit(roomGroup string, kind models.TaskKind, capacity models.CapacityCode) *int {
	if v, ok := l[LimitKey{RoomGroup: roomGroup, Kind: kind, Capacity: capacity}]; ok {
		return &v
	}
	if roomGroup != "" {
		if v, ok := l[LimitKey{Kind: kind, Capacity: capacity}]; ok {
			return &v
		}
	}
	return nil
}

// NoLimits resolves every lookup to no limit.
type NoLimits struct{}

func (NoLimits) TimeLimit(string, models.TaskKind, models.CapacityCode) *int { return nil }
