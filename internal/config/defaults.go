package config

const (
	defaultStateDir               = "~/.local/share/shelfarr"
	defaultLogDir                 = "~/.local/share/shelfarr/logs"
	defaultStagingDir             = "~/.local/share/shelfarr/staging"
	defaultRemoteDownloadRoot     = "/downloads"
	defaultLocalDownloadRoot      = "/downloads"
	defaultImportRoot             = "~/imports"
	defaultAudioLibraryDir        = "~/library/audiobooks"
	defaultEbookLibraryDir        = "~/library/ebooks"
	defaultAPIBind                = "127.0.0.1:7878"
	defaultIndexerBaseURL         = "https://www.myanonamouse.net"
	defaultAudioCategory          = 13
	defaultEbookCategory          = 14
	defaultResultLimit            = 50
	defaultRequestTimeout         = 30
	defaultConnectTimeout         = 10
	defaultRetryAttempts          = 3
	defaultRetryDelaySeconds      = 2
	defaultSearchCacheMinutes     = 10
	defaultSearchCacheMaxEntries  = 256
	defaultQBittorrentURL         = "http://127.0.0.1:8080"
	defaultQBittorrentCategory    = "shelfarr"
	defaultMinSeedHours           = 72
	defaultSessionTTLMinutes      = 30
	defaultFFmpegBinary           = "ffmpeg"
	defaultProcessingTimeout      = 3600
	defaultPollInterval           = 60
	defaultRecheckInterval        = 3600
	defaultSearchRetryHours       = 72
	defaultSearchBatchSize        = 5
	defaultMaxRetries             = 3
	defaultRetryBackoffSeconds    = 300
	defaultMaxConcurrentJobs      = 4
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultLogMaxSizeMB           = 50
	defaultLogMaxBackups          = 5
	maxAllowedRetries             = 20
	maxAllowedRetryBackoffSeconds = 24 * 3600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:           defaultStateDir,
			LogDir:             defaultLogDir,
			StagingDir:         defaultStagingDir,
			RemoteDownloadRoot: defaultRemoteDownloadRoot,
			LocalDownloadRoot:  defaultLocalDownloadRoot,
			ImportRoot:         defaultImportRoot,
			AudioLibraryDir:    defaultAudioLibraryDir,
			EbookLibraryDir:    defaultEbookLibraryDir,
			APIBind:            defaultAPIBind,
		},
		Indexer: Indexer{
			BaseURL:               defaultIndexerBaseURL,
			AudioCategory:         defaultAudioCategory,
			EbookCategory:         defaultEbookCategory,
			ResultLimit:           defaultResultLimit,
			RequestTimeout:        defaultRequestTimeout,
			ConnectTimeout:        defaultConnectTimeout,
			RetryAttempts:         defaultRetryAttempts,
			RetryDelaySeconds:     defaultRetryDelaySeconds,
			SearchCacheMinutes:    defaultSearchCacheMinutes,
			SearchCacheMaxEntries: defaultSearchCacheMaxEntries,
		},
		QBittorrent: QBittorrent{
			URL:               defaultQBittorrentURL,
			Category:          defaultQBittorrentCategory,
			Tags:              []string{"shelfarr"},
			MinSeedHours:      defaultMinSeedHours,
			SessionTTLMinutes: defaultSessionTTLMinutes,
			RequestTimeout:    defaultRequestTimeout,
		},
		PostProcess: PostProcess{
			FFmpegBinary:   defaultFFmpegBinary,
			TimeoutSeconds: defaultProcessingTimeout,
			MergeAudio:     true,
			EmbedCover:     true,
			WriteSidecar:   true,
		},
		Audiobookshelf: Audiobookshelf{
			RequestTimeout: defaultRequestTimeout,
		},
		Workflow: Workflow{
			PollInterval:        defaultPollInterval,
			RecheckInterval:     defaultRecheckInterval,
			SearchRetryHours:    defaultSearchRetryHours,
			SearchBatchSize:     defaultSearchBatchSize,
			MaxRetries:          defaultMaxRetries,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			MaxConcurrentJobs:   defaultMaxConcurrentJobs,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Failed:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
			MaxSizeMB:     defaultLogMaxSizeMB,
			MaxBackups:    defaultLogMaxBackups,
		},
	}
}
