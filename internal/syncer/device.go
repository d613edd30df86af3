package syncer

import (
	"context"

	"github.com/dukerupert/famlingo/internal/lookup"
	"github.com/dukerupert/famlingo/internal/model"
)

// InitializeDevice resolves sync settings at startup. Settings saved on the
// backend for this device win and are copied locally. Settings that only
// exist locally are registered with the backend.
func (o *Orchestrator) InitializeDevice(ctx context.Context) (*model.SyncSettings, error) {
	deviceID, err := o.state.DeviceID()
	if err != nil {
		return nil, err
	}

	chain := lookup.NewChain(o.logger,
		lookup.Source[*model.SyncSettings]{Name: "backend", Get: func(ctx context.Context) (*model.SyncSettings, bool, error) {
			d, err := o.backend.GetDevice(ctx, deviceID)
			if err != nil || d == nil || d.GitHubToken == "" {
				return nil, false, err
			}
			return d.SyncSettings(), true, nil
		}},
		lookup.Source[*model.SyncSettings]{Name: "local", Get: func(context.Context) (*model.SyncSettings, bool, error) {
			s, err := o.state.SyncSettings()
			return s, err == nil && s != nil, err
		}},
	)

	settings, from, ok, _ := chain.Get(ctx)
	if !ok {
		o.logger.Info("no sync settings for device", "device", deviceID)
		return nil, nil
	}

	switch from {
	case "backend":
		if err := o.state.SetSyncSettings(*settings); err != nil {
			return nil, err
		}
		o.logger.Info("sync settings restored from backend", "device", deviceID)
	case "local":
		o.register(ctx, deviceID, *settings)
	}

	o.refreshEnabled()
	return o.state.SyncSettings()
}

// SaveSettings stores new sync settings locally and registers them with the
// backend. Registration failures are logged only.
func (o *Orchestrator) SaveSettings(ctx context.Context, settings model.SyncSettings) error {
	if settings.FilePath == "" {
		settings.FilePath = model.DefaultSyncFilePath
	}
	if err := o.state.SetSyncSettings(settings); err != nil {
		return err
	}
	deviceID, err := o.state.DeviceID()
	if err != nil {
		return err
	}
	o.register(ctx, deviceID, settings)
	o.refreshEnabled()
	return nil
}

// ClearSettings disables sync on this device.
func (o *Orchestrator) ClearSettings() error {
	if err := o.state.ClearSyncSettings(); err != nil {
		return err
	}
	o.refreshEnabled()
	return nil
}

func (o *Orchestrator) register(ctx context.Context, deviceID string, s model.SyncSettings) {
	familyID := ""
	if f, err := o.family.Get(); err == nil {
		familyID = f.ID
	}
	_, err := o.backend.RegisterDevice(ctx, model.DeviceSettings{
		DeviceID:       deviceID,
		GitHubToken:    s.Token,
		GitHubOwner:    s.Owner,
		GitHubRepo:     s.Repo,
		GitHubFilePath: s.Path(),
		FamilyID:       familyID,
	})
	if err != nil {
		o.logger.Warn("register device failed", "device", deviceID, "error", err)
	}
}

// refreshEnabled moves between disabled and idle after a settings change.
func (o *Orchestrator) refreshEnabled() {
	settings, err := o.state.SyncSettings()
	if err != nil {
		return
	}
	_, err = o.remotes(settings)

	o.mu.RLock()
	current := o.status.State
	o.mu.RUnlock()

	switch {
	case err != nil && current != StateDisabled:
		o.setState(StateDisabled)
	case err == nil && current == StateDisabled:
		o.setState(StateIdle)
	}
}
