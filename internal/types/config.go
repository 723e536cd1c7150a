package types

// Config represents one fetch profile: a mailbox account, the filter and
// rename rules applied to its attachments and where they are written.
type Config struct {
	// Meta information for the configuration
	Meta struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Description string `yaml:"description,omitempty"`
		Enabled     bool   `yaml:"enabled"`
		Template    string `yaml:"template,omitempty"` // Name of the template to use
	} `yaml:"meta"`

	Account AccountConfig `yaml:"account"`

	// Folders to scan, in order. Empty means INBOX.
	Folders []string `yaml:"folders"`

	Filter FilterConfig `yaml:"filter"`

	Rename RenameConfig `yaml:"rename"`

	Download DownloadConfig `yaml:"download"`

	Storage StorageConfig `yaml:"storage"`

	Tracking struct {
		Enabled       bool   `yaml:"enabled"`
		StorageType   string `yaml:"storage_type"` // file, sqlite
		StoragePath   string `yaml:"storage_path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"tracking"`

	ErrorLogging struct {
		Enabled       bool   `yaml:"enabled"`
		StoragePath   string `yaml:"storage_path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"error_logging"`

	Logging struct {
		Level         string `yaml:"level"`
		Format        string `yaml:"format"` // text, json, dev
		IncludeCaller bool   `yaml:"include_caller"`
	} `yaml:"logging"`

	Monitoring struct {
		MetricsEnabled bool   `yaml:"metrics_enabled"`
		MetricsPort    int    `yaml:"metrics_port"`
		MetricsPath    string `yaml:"metrics_path"`
	} `yaml:"monitoring"`

	Scheduling struct {
		Enabled         bool   `yaml:"enabled"`
		FrequencyEvery  string `yaml:"frequency_every"` // minute, hour, day, week, month
		FrequencyAmount int    `yaml:"frequency_amount"`
		StartNow        bool   `yaml:"start_now"`
		StartAt         string `yaml:"start_at"` // UTC DateTime
		StopAt          string `yaml:"stop_at"`  // UTC DateTime
	} `yaml:"scheduling"`
}

// AccountConfig describes how to reach the mailbox.
type AccountConfig struct {
	// Provider is one of gmail, outlook, imap, pop3, gmail-api.
	Provider string `yaml:"provider"`
	Server   string `yaml:"server,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
	// PasswordKey names a keyring entry holding the password.
	PasswordKey string `yaml:"password_key,omitempty"`
	// Timeout for a single network operation, in seconds.
	Timeout  int `yaml:"timeout"`
	PageSize int `yaml:"page_size"`

	TLS struct {
		Enabled    bool `yaml:"enabled"`
		VerifyCert bool `yaml:"verify_cert"`
	} `yaml:"tls"`

	OAuth2 OAuth2Config `yaml:"oauth2"`
}

type OAuth2Config struct {
	Enabled      bool   `yaml:"enabled"`
	Provider     string `yaml:"provider"` // google, microsoft
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url,omitempty"`
	// TokenStore is file or keyring.
	TokenStore       string `yaml:"token_store"`
	TokenStoragePath string `yaml:"token_storage_path,omitempty"`
}

type FilterConfig struct {
	FileTypes  []string `yaml:"file_types,omitempty"` // pdf, images, documents, ...
	Extensions []string `yaml:"extensions,omitempty"`
	Keywords   []string `yaml:"keywords,omitempty"`
	Sender     string   `yaml:"sender,omitempty"`
	Subject    string   `yaml:"subject,omitempty"`
	Since      string   `yaml:"since,omitempty"` // YYYY-MM-DD, inclusive
	Until      string   `yaml:"until,omitempty"` // YYYY-MM-DD, inclusive day
	MinSize    int64    `yaml:"min_size,omitempty"`
	MaxSize    int64    `yaml:"max_size,omitempty"`
}

type RenameConfig struct {
	Preset           string `yaml:"preset,omitempty"`
	Template         string `yaml:"template,omitempty"`
	Directory        string `yaml:"directory,omitempty"`
	ReplaceSpaces    bool   `yaml:"replace_spaces"`
	SpaceReplacement string `yaml:"space_replacement,omitempty"`
	Lowercase        bool   `yaml:"lowercase"`
}

type DownloadConfig struct {
	Destination string `yaml:"destination"`
	Concurrency int    `yaml:"concurrency"`
	// RateLimit caps provider requests per second. 0 disables the limit.
	RateLimit float64 `yaml:"rate_limit"`
	Retry     struct {
		MaxAttempts    int `yaml:"max_attempts"`
		InitialDelayMs int `yaml:"initial_delay_ms"`
		MaxDelayMs     int `yaml:"max_delay_ms"`
	} `yaml:"retry"`
	JobTimeout    int `yaml:"job_timeout"`    // seconds per attempt
	ShutdownGrace int `yaml:"shutdown_grace"` // seconds
}

type StorageConfig struct {
	Type            string `yaml:"type"` // file, gdrive
	CredentialsFile string `yaml:"credentials_file,omitempty"`
	ParentFolderID  string `yaml:"parent_folder_id,omitempty"`
}
