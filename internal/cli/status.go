package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joebot/archmon/internal/config"
)

// RunStatus displays the current configuration status with styled output.
func RunStatus(cfg *config.Config) {
	cfgPath := config.ConfigPath()

	fmt.Println()
	fmt.Println(TitleStyle.Render(fmt.Sprintf("  %s archmon Status", Logo)))
	fmt.Println()

	fmt.Printf("  %-12s %s  %s\n", "Config", StatusBadge(fileExists(cfgPath)), DimStyle.Render(cfgPath))

	dbPath := cfg.DatabasePath()
	fmt.Printf("  %-12s %s  %s\n", "Database", StatusBadge(fileExists(dbPath)), DimStyle.Render(dbPath))
	fmt.Println()

	fmt.Println("  " + BoldStyle.Render("Discord"))
	fmt.Printf("    %s  Bot token\n", StatusBadge(cfg.Discord.Token != ""))
	fmt.Printf("    %s  Log channel\n", StatusBadge(cfg.Discord.LogChannelID != ""))
	fmt.Printf("    %s  Debug guild\n", StatusBadge(cfg.Discord.DebugGuildID != ""))
	fmt.Println()

	for _, path := range unknownConfigKeys(cfgPath) {
		fmt.Println("  " + ErrStyle.Render("unknown config key: "+path))
	}
}

func unknownConfigKeys(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	return config.CheckUnknownFields(raw)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
