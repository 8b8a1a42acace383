package config

const (
	defaultLibraryRoot         = "~/library"
	defaultInboxDir            = "inbox"
	defaultReferenceDir        = "references"
	defaultQuarantineDir       = "quarantine"
	defaultProposalDir         = "proposals"
	defaultStoreFile           = "references.json"
	defaultBibliographyFile    = "references.md"
	defaultStateDir            = "~/.local/share/bibkeep"
	defaultLogDir              = "~/.local/share/bibkeep/logs"
	defaultJournalFile         = "journal.db"
	defaultBackupDir           = "backups"
	defaultBackupKeep          = 10
	defaultMaxFileSizeMB       = 50
	defaultMaxFilenameLength   = 150
	defaultSimilarityThreshold = 0.70
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

var defaultExtensions = []string{".pdf"}

// Default returns a Config populated with repository defaults. Relative
// directory names are resolved against the library root during normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryRoot:      defaultLibraryRoot,
			InboxDir:         defaultInboxDir,
			ReferenceDir:     defaultReferenceDir,
			QuarantineDir:    defaultQuarantineDir,
			ProposalDir:      defaultProposalDir,
			StorePath:        defaultStoreFile,
			BibliographyPath: defaultBibliographyFile,
			StateDir:         defaultStateDir,
			LogDir:           defaultLogDir,
		},
		Ingest: Ingest{
			Extensions:        append([]string(nil), defaultExtensions...),
			MaxFileSizeMB:     defaultMaxFileSizeMB,
			MaxFilenameLength: defaultMaxFilenameLength,
		},
		Matching: Matching{
			SimilarityThreshold: defaultSimilarityThreshold,
		},
		Review: Review{
			RequireDecision: true,
		},
		Backup: Backup{
			Enabled: true,
			Dir:     defaultBackupDir,
			Keep:    defaultBackupKeep,
		},
		Journal: Journal{
			Enabled: true,
			Path:    defaultJournalFile,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
