package service

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/joeblew999/geo-blink/internal/overlay"
)

// LayerService persists the overlay layer settings and applies them to the
// live layer.
type LayerService struct {
	dataDir string
	layer   *overlay.Layer
	events  *EventBus

	mu       sync.RWMutex
	settings LayerSettings
}

// NewLayerService wraps layer. Settings saved by an earlier run are applied
// on top of the layer's current state.
func NewLayerService(dataDir string, layer *overlay.Layer, events *EventBus) (*LayerService, error) {
	s := &LayerService{
		dataDir:  dataDir,
		layer:    layer,
		events:   events,
		settings: SettingsOf(layer),
	}

	saved, ok, err := s.loadFromDisk()
	if err != nil {
		return nil, err
	}
	if ok {
		saved.Name = layer.Name()
		if err := ApplySettings(layer, saved); err != nil {
			return nil, fmt.Errorf("applying %s: %w", s.configFile(), err)
		}
		s.settings = saved
	}
	return s, nil
}

// Get returns the current settings.
func (s *LayerService) Get() LayerSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies settings to the layer and saves them.
func (s *LayerService) Update(settings LayerSettings) (LayerSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.Name = s.layer.Name()
	if err := ApplySettings(s.layer, settings); err != nil {
		// a partial apply is rolled back to the last good settings
		_ = ApplySettings(s.layer, s.settings)
		return LayerSettings{}, err
	}
	s.settings = settings
	if err := s.saveToDisk(); err != nil {
		return LayerSettings{}, err
	}

	if s.events != nil {
		s.events.Publish(Event{Resource: "layer", Action: "updated", ID: settings.Name})
	}
	return settings, nil
}

// SettingsOf reads the settings of a live layer.
func SettingsOf(l *overlay.Layer) LayerSettings {
	min, max, units := l.Visibility()
	if max == math.MaxFloat64 {
		max = 0
	}
	return LayerSettings{
		Name:         l.Name(),
		Enabled:      l.Enabled(),
		QueryEnabled: l.QueryEnabled(),
		MinVisible:   min,
		MaxVisible:   max,
		Units:        units.String(),
	}
}

// ApplySettings pushes settings into l. A zero MaxVisible means unlimited.
func ApplySettings(l *overlay.Layer, settings LayerSettings) error {
	units, err := overlay.ParseVisibilityUnits(settings.Units)
	if err != nil {
		return err
	}
	max := settings.MaxVisible
	if max == 0 {
		max = math.MaxFloat64
	}
	if err := l.SetVisibility(settings.MinVisible, max); err != nil {
		return err
	}
	if err := l.SetVisibilityUnits(units); err != nil {
		return err
	}
	l.SetQueryEnabled(settings.QueryEnabled)
	return l.SetEnabled(settings.Enabled)
}

// configFile returns the path to the settings file.
func (s *LayerService) configFile() string {
	return filepath.Join(s.dataDir, "layer.json")
}

func (s *LayerService) loadFromDisk() (LayerSettings, bool, error) {
	data, err := os.ReadFile(s.configFile())
	if os.IsNotExist(err) {
		return LayerSettings{}, false, nil
	}
	if err != nil {
		return LayerSettings{}, false, err
	}

	var settings LayerSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return LayerSettings{}, false, fmt.Errorf("parsing %s: %w", s.configFile(), err)
	}
	return settings, true, nil
}

// saveToDisk persists the settings. Callers hold s.mu.
func (s *LayerService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0644)
}
