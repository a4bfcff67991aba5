package edgefilter

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Detector turns an RGBA frame into a single-channel edge map holding 255
// on edges and 0 elsewhere. Implementations must not modify rgba.
type Detector interface {
	Name() string
	EdgeMap(rgba []byte, width, height int, t Thresholds) ([]byte, error)
}

// CannyDetector is the pure Go engine.
type CannyDetector struct{}

// Name implements Detector.
func (CannyDetector) Name() string { return "go" }

// EdgeMap implements Detector.
func (CannyDetector) EdgeMap(rgba []byte, width, height int, t Thresholds) ([]byte, error) {
	return Canny(Grayscale(rgba, width, height), width, height, t), nil
}

var (
	detectorsMu sync.RWMutex
	detectors   = map[string]func() Detector{
		"go": func() Detector { return CannyDetector{} },
	}
)

// RegisterDetector makes a detector constructor available to DetectorByName.
// Engines behind build tags register themselves from init.
func RegisterDetector(name string, ctor func() Detector) {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()
	detectors[strings.ToLower(name)] = ctor
}

// DetectorByName resolves an engine name from configuration. An empty name
// selects the pure Go engine.
func DetectorByName(name string) (Detector, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "go"
	}

	detectorsMu.RLock()
	ctor, ok := detectors[name]
	detectorsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown edge engine %q (available: %s)", name, strings.Join(DetectorNames(), ", "))
	}
	return ctor(), nil
}

// DetectorNames lists the registered engines in sorted order.
func DetectorNames() []string {
	detectorsMu.RLock()
	defer detectorsMu.RUnlock()

	names := make([]string, 0, len(detectors))
	for name := range detectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
