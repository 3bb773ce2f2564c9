package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

// Directory привязка сотрудников к точкам продаж в памяти.
type Directory struct {
	mu        sync.RWMutex
	locations map[string]domain.Location
}

// NewDirectory создаёт справочник с начальными привязками userID → точка.
func NewDirectory(seed map[string]domain.Location) *Directory {
	d := &Directory{locations: make(map[string]domain.Location, len(seed))}
	for userID, location := range seed {
		d.locations[userID] = location
	}
	return d
}

// Assign привязывает сотрудника к точке.
func (d *Directory) Assign(userID string, location domain.Location) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locations[userID] = location
}

// LocationOf возвращает точку сотрудника или ErrLocationNotAssigned.
func (d *Directory) LocationOf(_ context.Context, userID string) (domain.Location, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	location, ok := d.locations[userID]
	if !ok {
		return domain.Location{}, fmt.Errorf("user %s: %w", userID, domain.ErrLocationNotAssigned)
	}
	return location, nil
}

var _ domain.LocationDirectory = (*Directory)(nil)
