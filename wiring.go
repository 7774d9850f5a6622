package main

import (
	"log/slog"

	"github.com/afittestide/asimi/fileedit"
	"github.com/afittestide/asimi/lsp"
	"github.com/afittestide/asimi/storage"
)

// slogUndoLogger satisfies fileedit.UndoLogger by recording every edit at
// debug level, grounded on the same log/slog idiom the rest of the process
// uses for structured logging.
type slogUndoLogger struct {
	logger *slog.Logger
}

func (l slogUndoLogger) LogEdit(tool string, paths []string) {
	l.logger.Debug("file edit recorded for undo", "tool", tool, "paths", paths)
}

// appWiring bundles the process-wide collaborators built once at startup and
// threaded into both the interactive (TUI) and non-interactive (--print)
// entry points.
type appWiring struct {
	db             *storage.DB
	repoInfo       RepoInfo
	promptHistory  *PromptHistory
	commandHistory *CommandHistory
	sessionStore   *SessionStore
	lspManager     *lsp.Manager
}

// buildAppWiring opens storage, constructs the history/session stores, the
// LSP client pool, and the FileEditEngine, and registers the shared tool
// collaborators (filesystem-edit_search, filesystem-undo, ace-*) via
// SetToolCollaborators. It degrades gracefully: a failed history/session
// store load logs a warning and continues with that store nil, matching the
// teacher's own "don't fail startup" posture for history loading.
func buildAppWiring(config *Config) (*appWiring, error) {
	repoInfo := GetRepoInfo()

	db, err := storage.InitDB(config.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}

	promptHistory, err := NewPromptHistoryStore(db, repoInfo)
	if err != nil {
		slog.Warn("failed to initialize prompt history store", "error", err)
		promptHistory = nil
	}

	commandHistory, err := NewCommandHistoryStore(db, repoInfo)
	if err != nil {
		slog.Warn("failed to initialize command history store", "error", err)
		commandHistory = nil
	}

	var sessionStore *SessionStore
	if config.Session.Enabled {
		maxSessions := config.Session.MaxSessions
		if maxSessions <= 0 {
			maxSessions = 50
		}
		maxAgeDays := config.Session.MaxAgeDays
		if maxAgeDays <= 0 {
			maxAgeDays = 30
		}
		sessionStore, err = NewSessionStore(db, repoInfo, maxSessions, maxAgeDays)
		if err != nil {
			slog.Warn("failed to create session store", "error", err)
			sessionStore = nil
		}
	}

	snapStore := storage.NewSnapshotStore(db)

	lspServers := make(map[string]lsp.ServerConfig, len(config.LSP.Servers))
	for _, s := range config.LSP.Servers {
		lspServers[s.Language] = lsp.ServerConfig{
			Language:      s.Language,
			Command:       s.Command,
			Args:          s.Args,
			NeedsRootFlag: s.NeedsRootFlag,
		}
	}
	lspManager := lsp.NewManager(lspServers, repoInfo.ProjectRoot, slog.Default())

	var formatter fileedit.Formatter
	if config.FileEdit.PrettierPath != "" {
		formatter = fileedit.NewPrettierFormatterAt(config.FileEdit.PrettierPath)
	} else {
		formatter = fileedit.NewPrettierFormatter()
	}

	feEngine := fileedit.New(snapStore, lspManager, formatter, slogUndoLogger{logger: slog.Default()})
	if config.FileEdit.SimilarityThreshold > 0 {
		feEngine.SimilarityThreshold = config.FileEdit.SimilarityThreshold
	}

	SetToolCollaborators(&toolCollaborators{
		fileEdit: feEngine,
		lsp:      lspManager,
		rollback: snapStore.RollbackToMessageIndex,
	})

	return &appWiring{
		db:             db,
		repoInfo:       repoInfo,
		promptHistory:  promptHistory,
		commandHistory: commandHistory,
		sessionStore:   sessionStore,
		lspManager:     lspManager,
	}, nil
}
