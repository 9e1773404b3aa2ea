package main

import (
	"fmt"
	"sync"

	"github.com/nerrad567/tabi-core/internal/device"
	"github.com/nerrad567/tabi-core/internal/infrastructure/config"
)

// devicesFromConfig converts the configured blinds into registry devices.
func devicesFromConfig(blinds []config.BlindConfig) []device.Device {
	devices := make([]device.Device, 0, len(blinds))
	for _, b := range blinds {
		devices = append(devices, device.Device{
			ID:           b.ID,
			Name:         b.Name,
			Room:         b.Room,
			BusTopic:     b.MQTTTopic,
			Kind:         b.DeviceType,
			Enabled:      b.Enabled,
			StatusTopic:  b.StatusTopic,
			BatteryTopic: b.BatteryTopic,
		})
	}
	return devices
}

// blindsFromDevices is the inverse of devicesFromConfig.
func blindsFromDevices(devices []device.Device) []config.BlindConfig {
	blinds := make([]config.BlindConfig, 0, len(devices))
	for _, d := range devices {
		blinds = append(blinds, config.BlindConfig{
			ID:           d.ID,
			Name:         d.Name,
			Room:         d.Room,
			MQTTTopic:    d.BusTopic,
			DeviceType:   d.Kind,
			Enabled:      d.Enabled,
			StatusTopic:  d.StatusTopic,
			BatteryTopic: d.BatteryTopic,
		})
	}
	return blinds
}

// configStore writes registry changes back to the blinds section of the
// configuration file.
type configStore struct {
	path string
	mu   sync.Mutex
}

// SaveDevices replaces the blinds list in the configuration file.
func (s *configStore) SaveDevices(devices []device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := config.SaveBlinds(s.path, blindsFromDevices(devices)); err != nil {
		return fmt.Errorf("saving blinds to %s: %w", s.path, err)
	}
	return nil
}
