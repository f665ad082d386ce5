package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/stickynotes/internal/config"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/database"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetErr(&output)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return output.String(), err
}

func TestCommandsRoundTripThroughBackupAndExport(t *testing.T) {
	workDir := t.TempDir()
	databasePath := filepath.Join(workDir, "notes.db")
	exportDir := filepath.Join(workDir, "exports")
	common := []string{"--database-path", databasePath, "--log-level", "error"}

	importFile := filepath.Join(workDir, "seed.json")
	require.NoError(t, os.WriteFile(importFile, []byte(`[{"content":"alpha"},{"content":"beta","theme":"dark"}]`), 0o600))

	output, err := executeCommand(t, append([]string{"import", importFile}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, output, "Imported 2 notes")

	output, err = executeCommand(t, append([]string{"backup-info"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, output, "No backup stored")

	output, err = executeCommand(t, append([]string{"backup"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, output, "Backed up 2 notes")

	output, err = executeCommand(t, append([]string{"backup-info"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, output, "Version:   1.0")
	assert.Contains(t, output, "Notes:     2")

	output, err = executeCommand(t, append([]string{"export", "--output-dir", exportDir}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, output, "Exported notes to")

	matches, err := filepath.Glob(filepath.Join(exportDir, "notes-backup-*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	exported, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var exportedNotes []map[string]any
	require.NoError(t, json.Unmarshal(exported, &exportedNotes))
	require.Len(t, exportedNotes, 2)
	assert.Equal(t, "alpha", exportedNotes[0]["content"])

	output, err = executeCommand(t, append([]string{"restore"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, output, "Restored 2 notes")
}

func TestImportCommandRejectsInvalidFile(t *testing.T) {
	workDir := t.TempDir()
	databasePath := filepath.Join(workDir, "notes.db")
	invalidFile := filepath.Join(workDir, "invalid.json")
	require.NoError(t, os.WriteFile(invalidFile, []byte(`{"notes":"nope"}`), 0o600))

	_, err := executeCommand(t, "import", invalidFile, "--database-path", databasePath, "--log-level", "error")
	require.Error(t, err)

	_, err = executeCommand(t, "import", filepath.Join(workDir, "missing.json"), "--database-path", databasePath)
	require.Error(t, err)
}

func TestRestoreCommandWithoutBackupFails(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "notes.db")

	_, err := executeCommand(t, "restore", "--database-path", databasePath, "--log-level", "error")
	require.Error(t, err)
}

func TestNewBackupStorageSelectsImplementation(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "notes.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	memoryStore, err := newBackupStorage(config.BackupStoreMemory, db, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, memoryStore)

	sqliteStore, err := newBackupStorage(config.BackupStoreSQLite, db, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &storage.SQLiteStore{}, sqliteStore)

	_, err = newBackupStorage("s3", db, zap.NewNop())
	require.Error(t, err)
}

func TestMemoryBackupStoreDoesNotPersistAcrossRuns(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "notes.db")
	common := []string{"--database-path", databasePath, "--log-level", "error", "--backup-store", config.BackupStoreMemory}

	output, err := executeCommand(t, append([]string{"backup"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, output, "Backed up 0 notes")

	output, err = executeCommand(t, append([]string{"backup-info"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, output, "No backup stored")
}
