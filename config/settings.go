package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// workspaceSettingsRel is the per-workspace settings file, relative to
// the workspace root.
const workspaceSettingsRel = ".codeforge/settings.yaml"

// RawCampaignSettings is one settings layer as read from disk. Pointer
// fields so an absent key is distinguishable from a zero value.
type RawCampaignSettings struct {
	Runs             *int    `yaml:"runs"`
	Jobs             *int    `yaml:"jobs"`
	MaxTotalTime     *int    `yaml:"maxTotalTime"`
	MaxInputLength   *int    `yaml:"maxInputLength"`
	MemoryLimitMB    *int    `yaml:"memoryLimit"`
	PerRunTimeout    *int    `yaml:"perRunTimeout"`
	IgnoreCrashes    *bool   `yaml:"ignoreCrashes"`
	ExitOnFirstCrash *bool   `yaml:"exitOnFirstCrash"`
	MinimizeCrashes  *bool   `yaml:"minimizeCrashes"`
	PreserveCorpus   *bool   `yaml:"preserveCorpus"`
	OutputDir        *string `yaml:"outputDirectory"`
}

// SettingsStore reads campaign settings from the global config file and
// the workspace file, workspace values winning field by field.
type SettingsStore struct {
	logger *zap.Logger

	// GlobalPath overrides the default global settings location.
	GlobalPath string
}

func NewSettingsStore(logger *zap.Logger) *SettingsStore {
	return &SettingsStore{logger: logger.Named("settings")}
}

func (s *SettingsStore) Load(workspace string) (RawCampaignSettings, error) {
	globalPath := s.GlobalPath
	if globalPath == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			globalPath = filepath.Join(dir, "fuzzforge", "settings.yaml")
		}
	}

	global, err := readSettingsFile(globalPath)
	if err != nil {
		return RawCampaignSettings{}, fmt.Errorf("global settings: %w", err)
	}

	wsPath := filepath.Join(workspace, filepath.FromSlash(workspaceSettingsRel))
	local, err := readSettingsFile(wsPath)
	if err != nil {
		return RawCampaignSettings{}, fmt.Errorf("workspace settings: %w", err)
	}

	merged := mergeSettings(global, local)
	s.logger.Debug("Loaded campaign settings",
		zap.String("global", globalPath),
		zap.String("workspace", wsPath))
	return merged, nil
}

// readSettingsFile returns the zero value for a missing file. A file
// that exists but does not parse is a real error.
func readSettingsFile(path string) (RawCampaignSettings, error) {
	var out RawCampaignSettings
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		return out, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// mergeSettings overlays local on top of global, field by field.
func mergeSettings(global, local RawCampaignSettings) RawCampaignSettings {
	out := global
	if local.Runs != nil {
		out.Runs = local.Runs
	}
	if local.Jobs != nil {
		out.Jobs = local.Jobs
	}
	if local.MaxTotalTime != nil {
		out.MaxTotalTime = local.MaxTotalTime
	}
	if local.MaxInputLength != nil {
		out.MaxInputLength = local.MaxInputLength
	}
	if local.MemoryLimitMB != nil {
		out.MemoryLimitMB = local.MemoryLimitMB
	}
	if local.PerRunTimeout != nil {
		out.PerRunTimeout = local.PerRunTimeout
	}
	if local.IgnoreCrashes != nil {
		out.IgnoreCrashes = local.IgnoreCrashes
	}
	if local.ExitOnFirstCrash != nil {
		out.ExitOnFirstCrash = local.ExitOnFirstCrash
	}
	if local.MinimizeCrashes != nil {
		out.MinimizeCrashes = local.MinimizeCrashes
	}
	if local.PreserveCorpus != nil {
		out.PreserveCorpus = local.PreserveCorpus
	}
	if local.OutputDir != nil {
		out.OutputDir = local.OutputDir
	}
	return out
}
