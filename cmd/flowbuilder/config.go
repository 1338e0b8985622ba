package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// defaultAssignmentRule matches task definitions whose name or type
// mentions "assign".
const defaultAssignmentRule = `lower(name) contains "assign" || lower(type) contains "assign"`

// Config holds all flowbuilder configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string `json:"listen_addr"`
	APIBaseURL      string `json:"api_base_url"`
	WorkflowBaseURL string `json:"workflow_base_url"`
	DBPath          string `json:"db_path"`
	LogLevel        string `json:"log_level"`
	LogFormat       string `json:"log_format"`
	ClientID        string `json:"client_id"`
	CompanyID       string `json:"company_id"`
	AssignmentRule  string `json:"assignment_rule"`
	CatalogSchedule string `json:"catalog_schedule"`
	HistoryCapacity int    `json:"history_capacity"`

	// VaultKey is read from the environment only and never written to disk.
	VaultKey string `json:"-"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:      ":4200",
		APIBaseURL:      "http://localhost:8080/api",
		WorkflowBaseURL: "http://localhost:8080/workflow-api",
		DBPath:          filepath.Join(flowbuilderDir(), "flowbuilder.db"),
		LogLevel:        "info",
		LogFormat:       "json",
		ClientID:        "client61",
		AssignmentRule:  defaultAssignmentRule,
		CatalogSchedule: "*/15 * * * *",
		HistoryCapacity: 50,
	}
}

func flowbuilderDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowbuilder"
	}
	return filepath.Join(home, ".flowbuilder")
}

func settingsPath() string {
	return filepath.Join(flowbuilderDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	strVars := map[string]*string{
		"FLOWBUILDER_LISTEN_ADDR":       &cfg.ListenAddr,
		"FLOWBUILDER_API_BASE_URL":      &cfg.APIBaseURL,
		"FLOWBUILDER_WORKFLOW_BASE_URL": &cfg.WorkflowBaseURL,
		"FLOWBUILDER_DB_PATH":           &cfg.DBPath,
		"FLOWBUILDER_LOG_LEVEL":         &cfg.LogLevel,
		"FLOWBUILDER_LOG_FORMAT":        &cfg.LogFormat,
		"FLOWBUILDER_CLIENT_ID":         &cfg.ClientID,
		"FLOWBUILDER_COMPANY_ID":        &cfg.CompanyID,
		"FLOWBUILDER_ASSIGNMENT_RULE":   &cfg.AssignmentRule,
		"FLOWBUILDER_CATALOG_SCHEDULE":  &cfg.CatalogSchedule,
		"FLOWBUILDER_VAULT_KEY":         &cfg.VaultKey,
	}
	for name, dst := range strVars {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("FLOWBUILDER_HISTORY_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HistoryCapacity = n
		}
	}

	return cfg
}

// writeSettings persists cfg to settings.json.
func writeSettings(cfg Config) (string, error) {
	if err := os.MkdirAll(flowbuilderDir(), 0o700); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	path := settingsPath()
	return path, os.WriteFile(path, data, 0o644)
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	ScheduleChanged bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel || old.LogFormat != new.LogFormat {
		d.LogLevelChanged = true
	}
	if old.CatalogSchedule != new.CatalogSchedule {
		d.ScheduleChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.APIBaseURL != new.APIBaseURL {
		d.RestartNeeded = append(d.RestartNeeded, "api_base_url")
	}
	if old.WorkflowBaseURL != new.WorkflowBaseURL {
		d.RestartNeeded = append(d.RestartNeeded, "workflow_base_url")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.ClientID != new.ClientID || old.CompanyID != new.CompanyID {
		d.RestartNeeded = append(d.RestartNeeded, "identity")
	}
	if old.AssignmentRule != new.AssignmentRule {
		d.RestartNeeded = append(d.RestartNeeded, "assignment_rule")
	}
	if old.HistoryCapacity != new.HistoryCapacity {
		d.RestartNeeded = append(d.RestartNeeded, "history_capacity")
	}
	return d
}

func pidPath() string {
	return filepath.Join(flowbuilderDir(), "flowbuilder.pid")
}
