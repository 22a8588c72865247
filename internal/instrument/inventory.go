package instrument

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Inventory is the bench description file: the resources to connect at
// startup and optional per-instrument polling overrides.
type Inventory struct {
	Instruments []InventoryEntry `yaml:"instruments"`
}

type InventoryEntry struct {
	Resource     string        `yaml:"resource"`
	Name         string        `yaml:"name"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Poll         *bool         `yaml:"poll"`
}

// LoadInventory reads and parses a bench inventory file.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory %s: %w", path, err)
	}

	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory %s: %w", path, err)
	}

	for i, entry := range inv.Instruments {
		if entry.Resource == "" {
			return nil, fmt.Errorf("inventory %s: entry %d has no resource", path, i)
		}
	}

	return &inv, nil
}

// ConnectInventory connects every instrument in the inventory and
// starts its poller. A failing entry is logged and skipped so one
// unplugged instrument does not hold up the rest of the bench.
func (m *Manager) ConnectInventory(ctx context.Context, inv *Inventory, defaultInterval time.Duration) {
	for _, entry := range inv.Instruments {
		inst, err := m.Connect(ctx, entry.Resource)
		if err != nil {
			m.logger.Warn("Inventory instrument unavailable",
				zap.String("resource", entry.Resource),
				zap.Error(err))
			continue
		}

		if entry.Poll != nil && !*entry.Poll {
			continue
		}

		interval := entry.PollInterval
		if interval <= 0 {
			interval = defaultInterval
		}
		if err := m.StartPoller(inst.ID, interval); err != nil {
			m.logger.Warn("Failed to start poller",
				zap.String("resource", entry.Resource),
				zap.Error(err))
		}
	}
}
