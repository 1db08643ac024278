package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// JobsConfig describes the scheduled maintenance jobs. It is hot-reloaded from jobs.yml.
type JobsConfig struct {
	Heartbeat      HeartbeatJobConfig      `mapstructure:"heartbeat"`
	LowStock       LowStockJobConfig       `mapstructure:"low_stock"`
	OrderReminders OrderRemindersJobConfig `mapstructure:"order_reminders"`
	Report         ReportJobConfig         `mapstructure:"crm_report"`
}

type HeartbeatJobConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	LogPath  string        `mapstructure:"log_path"`
}

type LowStockJobConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	IncrementBy int           `mapstructure:"increment_by"`
	LogPath     string        `mapstructure:"log_path"`
}

type OrderRemindersJobConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Lookback time.Duration `mapstructure:"lookback"`
	LogPath  string        `mapstructure:"log_path"`
}

type ReportJobConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	LogPath  string        `mapstructure:"log_path"`
	PDFDir   string        `mapstructure:"pdf_dir"`
}

func DefaultJobsConfig() JobsConfig {
	return JobsConfig{
		Heartbeat: HeartbeatJobConfig{
			Interval: 5 * time.Minute,
			Timeout:  5 * time.Second,
			LogPath:  "/tmp/crm_heartbeat_log.txt",
		},
		LowStock: LowStockJobConfig{
			Interval:    12 * time.Hour,
			Timeout:     15 * time.Second,
			IncrementBy: 10,
			LogPath:     "/tmp/low_stock_updates_log.txt",
		},
		OrderReminders: OrderRemindersJobConfig{
			Interval: 24 * time.Hour,
			Timeout:  30 * time.Second,
			Lookback: 7 * 24 * time.Hour,
			LogPath:  "/tmp/order_reminders_log.txt",
		},
		Report: ReportJobConfig{
			Interval: 7 * 24 * time.Hour,
			Timeout:  30 * time.Second,
			LogPath:  "/tmp/crm_report_log.txt",
		},
	}
}

type JobsConfigHolder struct {
	current atomic.Value // holds JobsConfig
}

// NewJobsConfigHolder reads jobs.yml from the usual locations and watches it for changes.
// A missing file is not an error; defaults are used.
func NewJobsConfigHolder(log *zap.Logger) (*JobsConfigHolder, error) {
	v := newJobsViper()
	v.SetConfigName("jobs")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/crm")
	v.AddConfigPath(".")
	return loadJobsConfig(v, log)
}

// LoadJobsConfigFile reads the given file instead of searching the default paths.
func LoadJobsConfigFile(path string, log *zap.Logger) (*JobsConfigHolder, error) {
	v := newJobsViper()
	v.SetConfigFile(path)
	return loadJobsConfig(v, log)
}

// NewStaticJobsConfigHolder returns a holder that never reloads.
func NewStaticJobsConfigHolder(cfg JobsConfig) *JobsConfigHolder {
	holder := &JobsConfigHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func newJobsViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultJobsConfig()
	v.SetDefault("jobs.heartbeat.interval", defaults.Heartbeat.Interval)
	v.SetDefault("jobs.heartbeat.timeout", defaults.Heartbeat.Timeout)
	v.SetDefault("jobs.heartbeat.log_path", defaults.Heartbeat.LogPath)
	v.SetDefault("jobs.low_stock.interval", defaults.LowStock.Interval)
	v.SetDefault("jobs.low_stock.timeout", defaults.LowStock.Timeout)
	v.SetDefault("jobs.low_stock.increment_by", defaults.LowStock.IncrementBy)
	v.SetDefault("jobs.low_stock.log_path", defaults.LowStock.LogPath)
	v.SetDefault("jobs.order_reminders.interval", defaults.OrderReminders.Interval)
	v.SetDefault("jobs.order_reminders.timeout", defaults.OrderReminders.Timeout)
	v.SetDefault("jobs.order_reminders.lookback", defaults.OrderReminders.Lookback)
	v.SetDefault("jobs.order_reminders.log_path", defaults.OrderReminders.LogPath)
	v.SetDefault("jobs.crm_report.interval", defaults.Report.Interval)
	v.SetDefault("jobs.crm_report.timeout", defaults.Report.Timeout)
	v.SetDefault("jobs.crm_report.log_path", defaults.Report.LogPath)
	v.SetDefault("jobs.crm_report.pdf_dir", defaults.Report.PDFDir)
	return v
}

func loadJobsConfig(v *viper.Viper, log *zap.Logger) (*JobsConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("jobs-config")

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeJobsConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateJobsConfig(cfg); err != nil {
		return nil, err
	}

	holder := &JobsConfigHolder{}
	holder.current.Store(cfg.withDefaults())

	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeJobsConfig(v)
		if err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateJobsConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated.withDefaults())
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// decodeJobsConfig unmarshals every setting so defaults and CRM_ env overrides
// apply to keys the file leaves out.
func decodeJobsConfig(v *viper.Viper) (JobsConfig, error) {
	var root struct {
		Jobs JobsConfig `mapstructure:"jobs"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return JobsConfig{}, err
	}
	return root.Jobs, nil
}

func (h *JobsConfigHolder) Get() JobsConfig {
	return h.current.Load().(JobsConfig)
}

func (c JobsConfig) withDefaults() JobsConfig {
	defaults := DefaultJobsConfig()
	if c.Heartbeat.Interval <= 0 {
		c.Heartbeat.Interval = defaults.Heartbeat.Interval
	}
	if c.Heartbeat.Timeout <= 0 {
		c.Heartbeat.Timeout = defaults.Heartbeat.Timeout
	}
	if c.LowStock.Interval <= 0 {
		c.LowStock.Interval = defaults.LowStock.Interval
	}
	if c.LowStock.Timeout <= 0 {
		c.LowStock.Timeout = defaults.LowStock.Timeout
	}
	if c.OrderReminders.Interval <= 0 {
		c.OrderReminders.Interval = defaults.OrderReminders.Interval
	}
	if c.OrderReminders.Timeout <= 0 {
		c.OrderReminders.Timeout = defaults.OrderReminders.Timeout
	}
	if c.OrderReminders.Lookback <= 0 {
		c.OrderReminders.Lookback = defaults.OrderReminders.Lookback
	}
	if c.Report.Interval <= 0 {
		c.Report.Interval = defaults.Report.Interval
	}
	if c.Report.Timeout <= 0 {
		c.Report.Timeout = defaults.Report.Timeout
	}
	return c
}

func validateJobsConfig(cfg JobsConfig) error {
	paths := map[string]string{
		"jobs.heartbeat.log_path":       cfg.Heartbeat.LogPath,
		"jobs.low_stock.log_path":       cfg.LowStock.LogPath,
		"jobs.order_reminders.log_path": cfg.OrderReminders.LogPath,
		"jobs.crm_report.log_path":      cfg.Report.LogPath,
	}
	for key, value := range paths {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s cannot be empty", key)
		}
	}
	if cfg.LowStock.IncrementBy < 0 {
		return errors.New("jobs.low_stock.increment_by cannot be negative")
	}
	return nil
}
