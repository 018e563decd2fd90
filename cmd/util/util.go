package util

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GOTO-OBS/gtecs-common/lib/config"
	"github.com/GOTO-OBS/gtecs-common/lib/store"
	"github.com/GOTO-OBS/gtecs-common/lib/store/failover"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the database connection flags to a command. Every
// flag overrides the corresponding key from the config file and
// environment.
func SetupStoreFlags(cmd *cobra.Command) {
	key := "driver"
	cmd.PersistentFlags().String(key, "", WrapString("Database driver (postgres, sqlite3), overrides the configured value"))

	key = "host"
	cmd.PersistentFlags().String(key, "", WrapString("Database host, overrides the configured value"))

	key = "port"
	cmd.PersistentFlags().Int(key, 0, WrapString("Database port, overrides the configured value"))

	key = "dbname"
	cmd.PersistentFlags().String(key, "", WrapString("Database name, or the file path for sqlite3"))

	key = "user"
	cmd.PersistentFlags().String(key, "", WrapString("Database user"))

	key = "password"
	cmd.PersistentFlags().String(key, "", WrapString("Database password"))
}

// GetStoreConfig resolves the store configuration: config file, env
// files and environment first, then any connection flags set on the
// command.
func GetStoreConfig(cmd *cobra.Command) (store.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return store.Config{}, err
	}

	flags := cmd.Flags()
	if s, _ := flags.GetString("driver"); s != "" {
		cfg.Database.Driver = s
	}
	if s, _ := flags.GetString("host"); s != "" {
		cfg.Database.Host = s
	}
	if p, _ := flags.GetInt("port"); p != 0 {
		cfg.Database.Port = p
	}
	if s, _ := flags.GetString("dbname"); s != "" {
		cfg.Database.Name = s
	}
	if s, _ := flags.GetString("user"); s != "" {
		cfg.Database.User = s
	}
	if s, _ := flags.GetString("password"); s != "" {
		cfg.Database.Password = s
	}

	return cfg, nil
}

// OpenStore opens the record store for a CLI invocation.
func OpenStore(cmd *cobra.Command) (store.IRecordStore, error) {
	cfg, err := GetStoreConfig(cmd)
	if err != nil {
		return nil, err
	}
	if !cfg.Database.Enabled() {
		return nil, fmt.Errorf("no database configured (set GTECS_DATABASE_HOST or pass --host)")
	}
	return failover.New(cfg)
}

// ParsePayload decodes a JSON object argument into a payload.
func ParsePayload(arg string) (store.Payload, error) {
	var payload store.Payload
	if err := json.Unmarshal([]byte(arg), &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if err := store.ValidatePayload(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// PrintRecord writes a record to stdout as indented JSON.
func PrintRecord(rec store.Record) error {
	out, err := json.MarshalIndent(map[string]any{
		"collection": rec.Collection,
		"key":        rec.Key,
		"version":    rec.Version,
		"updated_at": rec.UpdatedAt,
		"payload":    rec.Payload,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
