package config

const (
	defaultQuarantineDir              = "~/deadwax-quarantine"
	defaultStateDir                   = "~/.local/share/deadwax"
	defaultLogDir                     = "~/.local/share/deadwax/logs"
	defaultLogRetentionDays           = 60
	defaultLogFormat                  = "console"
	defaultLogLevel                   = "info"
	defaultProbeBinary                = "ffprobe"
	defaultProbeWorkers               = 4
	defaultProbeTimeoutSeconds        = 30
	defaultProbeSampleFiles           = 3
	defaultScanWorkers                = 4
	defaultAIWorkers                  = 4
	defaultGapThreshold               = 2
	defaultMissingTrackPct            = 0.2
	defaultMaxConsecutiveEmptyArtists = 10
	defaultClassicalDurationTolerance = 10
	defaultResolveBaseURL             = "https://musicbrainz.org/ws/2"
	defaultCoverArtBaseURL            = "https://coverartarchive.org"
	defaultResolveUserAgent           = "deadwax/0.4 (library reconciler)"
	defaultRateIntervalMS             = 1050
	defaultQueueTimeoutSeconds        = 60
	defaultAIBaseURL                  = "https://openrouter.ai/api/v1/chat/completions"
	defaultAIModel                    = "google/gemini-3-flash-preview"
	defaultAITitle                    = "Deadwax Edition Selector"
	defaultAITimeoutSeconds           = 60
	defaultWebSearchTimeoutSeconds    = 15
	defaultDiscogsBaseURL             = "https://api.discogs.com"
	defaultLastFMBaseURL              = "https://ws.audioscrobbler.com/2.0/"
	defaultBandcampBaseURL            = "https://bandcamp.com"
	defaultNotifyRequestTimeout       = 10
	defaultHistoryKeepRuns            = 50
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			QuarantineDir: defaultQuarantineDir,
			StateDir:      defaultStateDir,
			LogDir:        defaultLogDir,
		},
		Probe: Probe{
			Binary:         defaultProbeBinary,
			Workers:        defaultProbeWorkers,
			TimeoutSeconds: defaultProbeTimeoutSeconds,
			SampleFiles:    defaultProbeSampleFiles,
		},
		Scan: Scan{
			Workers:                    defaultScanWorkers,
			AIWorkers:                  defaultAIWorkers,
			GapThreshold:               defaultGapThreshold,
			MissingTrackPct:            defaultMissingTrackPct,
			MaxConsecutiveEmptyArtists: defaultMaxConsecutiveEmptyArtists,
			ClassicalDurationTolerance: defaultClassicalDurationTolerance,
		},
		Resolve: Resolve{
			BaseURL:             defaultResolveBaseURL,
			CoverArtBaseURL:     defaultCoverArtBaseURL,
			UserAgent:           defaultResolveUserAgent,
			RateIntervalMS:      defaultRateIntervalMS,
			QueueTimeoutSeconds: defaultQueueTimeoutSeconds,
		},
		AI: AI{
			BaseURL:        defaultAIBaseURL,
			Model:          defaultAIModel,
			Title:          defaultAITitle,
			TimeoutSeconds: defaultAITimeoutSeconds,
		},
		WebSearch: WebSearch{
			TimeoutSeconds: defaultWebSearchTimeoutSeconds,
		},
		Providers: Providers{
			Discogs:  Discogs{BaseURL: defaultDiscogsBaseURL},
			LastFM:   LastFM{BaseURL: defaultLastFMBaseURL},
			Bandcamp: Bandcamp{BaseURL: defaultBandcampBaseURL},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			ScanComplete:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		History: History{
			KeepRuns: defaultHistoryKeepRuns,
		},
	}
}
