package main

import (
	"github.com/sirupsen/logrus"

	"github.com/zsiec/edgeview/internal/config"
	"github.com/zsiec/edgeview/internal/edgefilter"
	"github.com/zsiec/edgeview/internal/logger"
)

// newFilter builds the shared filter from configuration.
func newFilter(cfg *config.FilterConfig, log *logrus.Logger) (*edgefilter.Filter, error) {
	detector, err := edgefilter.DetectorByName(cfg.Engine)
	if err != nil {
		return nil, err
	}
	layout, err := edgefilter.ParseLayout(cfg.OutputLayout)
	if err != nil {
		return nil, err
	}

	return edgefilter.New(
		edgefilter.WithDetector(detector),
		edgefilter.WithLayout(layout),
		edgefilter.WithThresholds(edgefilter.Thresholds{Low: cfg.LowThreshold, High: cfg.HighThreshold}),
		edgefilter.WithMaxPixels(cfg.MaxPixels()),
		edgefilter.WithLogger(logger.Component(log, "edgefilter")),
	), nil
}
