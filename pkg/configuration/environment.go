package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/iota-uz/loan-sdk/pkg/logging"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c, err := Load(".env", ".env.local")
	if err != nil {
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist in the working directory. When none
// exist it retries relative to the nearest parent directory holding a go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles("", envFiles)
	if len(existing) == 0 {
		if root := moduleRoot(); root != "" {
			existing = existingFiles(root, envFiles)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(dir string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, file := range files {
		path := file
		if dir != "" && !filepath.IsAbs(file) {
			path = filepath.Join(dir, file)
		}
		if fs.FileExists(path) {
			out = append(out, path)
		}
	}
	return out
}

func moduleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := wd; ; {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"loans"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type ImportOptions struct {
	// Overrides the MISMO 2009 residential namespace URI bound to the "m" prefix.
	NamespaceURI string `env:"IMPORT_MISMO_NAMESPACE" envDefault:"http://www.mismo.org/residential/2009/schemas"`
	// Optional YAML mapping table replacing the built-in MISMO tables.
	SpecPath      string `env:"IMPORT_SPEC_PATH"`
	MaxUploadSize int64  `env:"IMPORT_MAX_UPLOAD_SIZE" envDefault:"33554432"`
	MaxFiles      int    `env:"IMPORT_MAX_FILES" envDefault:"50"`
}

func (o *ImportOptions) Validate() error {
	if strings.TrimSpace(o.NamespaceURI) == "" {
		return fmt.Errorf("IMPORT_MISMO_NAMESPACE must not be empty")
	}
	if o.MaxUploadSize <= 0 {
		return fmt.Errorf("IMPORT_MAX_UPLOAD_SIZE must be positive, got %d", o.MaxUploadSize)
	}
	if o.MaxFiles <= 0 {
		return fmt.Errorf("IMPORT_MAX_FILES must be positive, got %d", o.MaxFiles)
	}
	return nil
}

type TaskQueueOptions struct {
	Backend         string        `env:"TASKQUEUE_BACKEND" envDefault:"memory"` // memory or postgres
	Workers         int           `env:"TASKQUEUE_WORKERS" envDefault:"4"`
	Buffer          int           `env:"TASKQUEUE_BUFFER" envDefault:"256"`
	MaxRetries      int           `env:"TASKQUEUE_MAX_RETRIES" envDefault:"3"`
	BaseBackoff     time.Duration `env:"TASKQUEUE_BASE_BACKOFF" envDefault:"30s"`
	MaxBackoff      time.Duration `env:"TASKQUEUE_MAX_BACKOFF" envDefault:"10m"`
	JitterMax       time.Duration `env:"TASKQUEUE_JITTER_MAX" envDefault:"0s"`
	Table           string        `env:"TASKQUEUE_TABLE" envDefault:"public.task_queue"`
	PollInterval    time.Duration `env:"TASKQUEUE_POLL_INTERVAL" envDefault:"1s"`
	BatchSize       int           `env:"TASKQUEUE_BATCH_SIZE" envDefault:"50"`
	LockTTL         time.Duration `env:"TASKQUEUE_LOCK_TTL" envDefault:"5m"`
	SingleActive    bool          `env:"TASKQUEUE_SINGLE_ACTIVE" envDefault:"false"`
	DispatchTimeout time.Duration `env:"TASKQUEUE_DISPATCH_TIMEOUT" envDefault:"2m"`

	LastErrorMaxBytes int `env:"TASKQUEUE_LAST_ERROR_MAX_BYTES" envDefault:"2048"`

	CleanerEnabled   bool          `env:"TASKQUEUE_CLEANER_ENABLED" envDefault:"true"`
	CleanerInterval  time.Duration `env:"TASKQUEUE_CLEANER_INTERVAL" envDefault:"1m"`
	CleanerRetention time.Duration `env:"TASKQUEUE_CLEANER_RETENTION" envDefault:"168h"`

	// Zero keeps dead tasks until removed by hand.
	CleanerDeadRetention time.Duration `env:"TASKQUEUE_CLEANER_DEAD_RETENTION" envDefault:"0s"`
}

func (o *TaskQueueOptions) Validate() error {
	if o.Backend != "memory" && o.Backend != "postgres" {
		return fmt.Errorf("taskqueue Backend must be 'memory' or 'postgres', got '%s'", o.Backend)
	}
	if o.Workers <= 0 {
		return fmt.Errorf("taskqueue Workers must be positive, got %d", o.Workers)
	}
	if o.Buffer < 0 {
		return fmt.Errorf("taskqueue Buffer must be non-negative, got %d", o.Buffer)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("taskqueue MaxRetries must be non-negative, got %d", o.MaxRetries)
	}
	if o.BaseBackoff <= 0 {
		return fmt.Errorf("taskqueue BaseBackoff must be positive, got %s", o.BaseBackoff)
	}
	if o.MaxBackoff < o.BaseBackoff {
		return fmt.Errorf("taskqueue MaxBackoff (%s) must be >= BaseBackoff (%s)", o.MaxBackoff, o.BaseBackoff)
	}
	return nil
}

type AuditOptions struct {
	// When true an audit write failure aborts the mutation it describes.
	FailMutation bool `env:"AUDIT_FAIL_MUTATION" envDefault:"false"`
	// Trusted headers set by the upstream authenticating proxy.
	ActorIDHeader   string `env:"AUDIT_ACTOR_ID_HEADER" envDefault:"X-Actor-ID"`
	ActorNameHeader string `env:"AUDIT_ACTOR_NAME_HEADER" envDefault:"X-Actor-Name"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"loan-sdk"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	if r.GlobalRPS > 1000000 {
		return fmt.Errorf("rate limit GlobalRPS too high, maximum is 1,000,000, got %d", r.GlobalRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	Import        ImportOptions
	TaskQueue     TaskQueueOptions
	Audit         AuditOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	RateLimit     RateLimitOptions

	MigrateOnStart   bool   `env:"MIGRATE_ON_START" envDefault:"false"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	Domain           string `env:"DOMAIN" envDefault:"localhost"`
	Origin           string `env:"ORIGIN" envDefault:"http://localhost:3200"`
	CORSOrigins      string `env:"CORS_ORIGINS" envDefault:""`
	PageSize         int    `env:"PAGE_SIZE" envDefault:"25"`
	MaxPageSize      int    `env:"MAX_PAGE_SIZE" envDefault:"100"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	// Looked up on each request; a random uuidv4 is generated when absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	// Looked up on each request; request.RemoteAddr is used when absent.
	RealIPHeader    string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`
	UserAgentMaxLen int    `env:"USER_AGENT_MAX_LEN" envDefault:"255"`

	logFile *os.File
	logger  *logrus.Logger
}

// Load parses the environment (after loading envFiles) into a new Configuration.
func Load(envFiles ...string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func (c *Configuration) Scheme() string {
	if c.GoAppEnvironment == Production {
		return "https"
	}
	return "http"
}

// AllowedOrigins splits CORSOrigins on commas; empty means Origin only.
func (c *Configuration) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		out = []string{c.Origin}
	}
	return out
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if err := c.TaskQueue.Validate(); err != nil {
		return fmt.Errorf("task queue configuration error: %w", err)
	}
	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import configuration error: %w", err)
	}
	if c.UserAgentMaxLen <= 0 {
		return fmt.Errorf("USER_AGENT_MAX_LEN must be positive, got %d", c.UserAgentMaxLen)
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}

	if os.Getenv("ORIGIN") == "" {
		if c.GoAppEnvironment == "development" {
			c.Origin = fmt.Sprintf("%s://%s:%d", c.Scheme(), c.Domain, c.ServerPort)
		} else {
			c.Origin = fmt.Sprintf("%s://%s", c.Scheme(), c.Domain)
		}
	}

	return nil
}

// Unload closes the log file.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
