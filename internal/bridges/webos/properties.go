package webos

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
)

// Exposed property names.
const (
	PropertyOn        = "on"
	PropertyVolume    = "volume"
	PropertyMute      = "mute"
	PropertyActiveApp = "activeApp"
)

const (
	minVolume = 0
	maxVolume = 100
)

// PropertyRecord is the cached value of one property.
type PropertyRecord struct {
	Name     string
	Value    any
	ReadOnly bool

	lastNotified any
	notified     bool
}

// PropertyDescriptor describes a property in the device registration.
type PropertyDescriptor struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	ReadOnly bool     `json:"read_only"`
	Minimum  *int     `json:"minimum,omitempty"`
	Maximum  *int     `json:"maximum,omitempty"`
	Enum     []string `json:"enum,omitempty"`
}

// PropertyChange is emitted once per changed property.
type PropertyChange struct {
	Name  string
	Value any
}

// properties is the cache for one device. Only the Device mutates it.
type properties struct {
	mu      sync.Mutex
	records map[string]*PropertyRecord
}

func newProperties() *properties {
	return &properties{records: map[string]*PropertyRecord{
		PropertyOn:        {Name: PropertyOn, Value: false},
		PropertyVolume:    {Name: PropertyVolume, Value: 0},
		PropertyMute:      {Name: PropertyMute, Value: false},
		PropertyActiveApp: {Name: PropertyActiveApp, Value: "", ReadOnly: true},
	}}
}

// get returns a copy of the named record.
func (p *properties) get(name string) (PropertyRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[name]
	if !ok {
		return PropertyRecord{}, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
	}
	return *rec, nil
}

// seed sets a value without emitting a change; the value counts as notified.
func (p *properties) seed(name string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.records[name]
	rec.Value = value
	rec.lastNotified = value
	rec.notified = true
}

// update stores value and reports whether a notification is due, which is
// exactly when value differs from the last notified value.
func (p *properties) update(name string, value any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.records[name]
	rec.Value = value
	if rec.notified && rec.lastNotified == value {
		return false
	}
	rec.lastNotified = value
	rec.notified = true
	return true
}

// snapshot returns every current value.
func (p *properties) snapshot() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]any, len(p.records))
	for name, rec := range p.records {
		out[name] = rec.Value
	}
	return out
}

// normalizeValue converts a host-supplied value to the cached type.
func normalizeValue(name string, value any) (any, error) {
	switch name {
	case PropertyOn, PropertyMute:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidValue, name)
		}
		return b, nil
	case PropertyVolume:
		v, ok := toInt(value)
		if !ok || v < minVolume || v > maxVolume {
			return nil, fmt.Errorf("%w: volume must be an integer %d-%d", ErrInvalidValue, minVolume, maxVolume)
		}
		return v, nil
	case PropertyActiveApp:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidValue, name)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
	}
}

// toInt accepts JSON numbers that hold whole values.
func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

// describeProperties builds the registration descriptors.
func describeProperties(apps *AppTable) []PropertyDescriptor {
	lo, hi := minVolume, maxVolume
	return []PropertyDescriptor{
		{Name: PropertyOn, Type: "boolean"},
		{Name: PropertyVolume, Type: "integer", Minimum: &lo, Maximum: &hi},
		{Name: PropertyMute, Type: "boolean"},
		{Name: PropertyActiveApp, Type: "string", ReadOnly: true, Enum: apps.Titles()},
	}
}
