package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

const envPrefix = "POWERCUBE_"

// Config 结构体定义了应用程序的配置结构
type Config struct {
	InputPath string `json:"input_path"` // 原始数据文件(csv/xlsx)
	SheetName string `json:"sheet_name"` // xlsx 工作表，为空时取第一个
	Charset   string `json:"charset"`    // 输入文件编码
	Delimiter string `json:"delimiter"`  // csv 分隔符

	OutputDir   string `json:"output_dir"`   // 每个问题的导出目录
	CleanedPath string `json:"cleaned_path"` // 清洗后数据导出路径，为空则不导出
	ReportPath  string `json:"report_path"`  // xlsx 报表路径，为空则不导出
	Charts      bool   `json:"charts"`       // 是否输出 png 图表

	Store         string `json:"store"` // memory | duckdb
	DuckDBPath    string `json:"duckdb_path"`
	Async         bool   `json:"async"`   // 是否以异步任务执行六个问题
	Workers       int    `json:"workers"` // 异步任务并发数
	Decade        int    `json:"decade"`  // 问题6的目标年代
	ReferenceYear int    `json:"reference_year"`

	Schedule Duration `json:"schedule"` // 定时重跑间隔，0 表示不定时
	Watch    bool     `json:"watch"`    // 输入文件变化时重跑
	HTTPAddr string   `json:"http_addr"`

	LogName    string `json:"log_name"`
	LogMaxSize string `json:"log_max_size"`
	Verbose    bool   `json:"verbose"`
}

// DataConfig 数据相关配置
type DataConfig struct {
	MissingValues []string          `json:"missing_values"` // 视为缺失值的文本
	TextFill      string            `json:"text_fill"`      // 文本列缺失值填充
	KeyColumns    []string          `json:"key_columns"`    // 自然主键候选列，按优先级
	Columns       map[string]string `json:"columns"`        // 原始列名 -> 标准列名
}

// Default 默认配置
func Default() *Config {
	return &Config{
		InputPath:     "cleaned_power_plants.csv",
		Charset:       "utf-8",
		Delimiter:     ",",
		OutputDir:     "output",
		CleanedPath:   "cleaned_power_plants_clean.csv",
		Charts:        true,
		Store:         "memory",
		Workers:       6,
		Decade:        2010,
		ReferenceYear: 2025,
		LogMaxSize:    "10 * 1024 * 1024",
	}
}

// DefaultDataConfig 默认数据配置
func DefaultDataConfig() *DataConfig {
	return &DataConfig{
		MissingValues: []string{"", "NA", "N/A", "n/a", "NaN", "nan", "null", "NULL", "None", "#N/A", "<NA>", "-"},
		TextFill:      "Unknown",
		KeyColumns:    []string{"gppd_idnr", "name"},
		Columns:       map[string]string{},
	}
}

// LoadConfig 读取配置目录下的两个 json 文件，文件不存在时使用默认值
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configData, err := readFile(filepath.Join(jsonFolder, jsonFile))
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	dataConfigData, err := readFile(filepath.Join(jsonFolder, dataJsonFile))
	if err != nil {
		return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	return waitForResults(cfgChan, dcfgChan, errChan)
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	cfg := Default()
	if len(data) > 0 {
		if err := json.Unmarshal(data, cfg); err != nil {
			errChan <- fmt.Errorf("解析Config失败: %w", err)
			return
		}
	}
	resultChan <- cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	dcfg := DefaultDataConfig()
	if len(data) > 0 {
		if err := json.Unmarshal(data, dcfg); err != nil {
			errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
			return
		}
	}
	if dcfg.Columns == nil {
		dcfg.Columns = map[string]string{}
	}
	resultChan <- dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg  *Config
		dcfg *DataConfig
		errs []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, nil, combineErrors(errs)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("配置加载遇到多个错误: %w", errors.Join(errs...))
}

// envBindings POWERCUBE_* 环境变量
var envBindings = map[string]func(*Config, string) error{
	"INPUT":          func(c *Config, v string) error { c.InputPath = v; return nil },
	"SHEET":          func(c *Config, v string) error { c.SheetName = v; return nil },
	"CHARSET":        func(c *Config, v string) error { c.Charset = v; return nil },
	"DELIMITER":      func(c *Config, v string) error { c.Delimiter = v; return nil },
	"OUTPUT_DIR":     func(c *Config, v string) error { c.OutputDir = v; return nil },
	"CLEANED_PATH":   func(c *Config, v string) error { c.CleanedPath = v; return nil },
	"REPORT_PATH":    func(c *Config, v string) error { c.ReportPath = v; return nil },
	"CHARTS":         func(c *Config, v string) error { return setBool(&c.Charts, v) },
	"STORE":          func(c *Config, v string) error { c.Store = v; return nil },
	"DUCKDB_PATH":    func(c *Config, v string) error { c.DuckDBPath = v; return nil },
	"ASYNC":          func(c *Config, v string) error { return setBool(&c.Async, v) },
	"WORKERS":        func(c *Config, v string) error { return setInt(&c.Workers, v) },
	"DECADE":         func(c *Config, v string) error { return setInt(&c.Decade, v) },
	"REFERENCE_YEAR": func(c *Config, v string) error { return setInt(&c.ReferenceYear, v) },
	"SCHEDULE":       func(c *Config, v string) error { return c.Schedule.Set(v) },
	"WATCH":          func(c *Config, v string) error { return setBool(&c.Watch, v) },
	"HTTP_ADDR":      func(c *Config, v string) error { c.HTTPAddr = v; return nil },
	"LOG_NAME":       func(c *Config, v string) error { c.LogName = v; return nil },
	"LOG_MAX_SIZE":   func(c *Config, v string) error { c.LogMaxSize = v; return nil },
	"VERBOSE":        func(c *Config, v string) error { return setBool(&c.Verbose, v) },
}

// ApplyEnv 先加载 .env 文件(不覆盖已有环境变量)，再应用 POWERCUBE_* 环境变量
func (c *Config) ApplyEnv(envFiles ...string) error {
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	for key, apply := range envBindings {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok {
			continue
		}
		if err := apply(c, v); err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
		}
	}
	return nil
}

// BindFlags 注册命令行参数，值写入 target
func BindFlags(fs *flag.FlagSet, target *Config) {
	fs.StringVar(&target.InputPath, "input", target.InputPath, "raw power plant file (.csv or .xlsx)")
	fs.StringVar(&target.SheetName, "sheet", target.SheetName, "xlsx sheet name (default: first sheet)")
	fs.StringVar(&target.Charset, "charset", target.Charset, "input charset: utf-8, latin1, windows-1252, gbk")
	fs.StringVar(&target.Delimiter, "delimiter", target.Delimiter, "csv delimiter")
	fs.StringVar(&target.OutputDir, "output-dir", target.OutputDir, "directory for per-question exports")
	fs.StringVar(&target.CleanedPath, "cleaned-path", target.CleanedPath, "cleaned table export path (empty to skip)")
	fs.StringVar(&target.ReportPath, "report-path", target.ReportPath, "xlsx report path (empty to skip)")
	fs.BoolVar(&target.Charts, "charts", target.Charts, "render png charts")
	fs.StringVar(&target.Store, "store", target.Store, "aggregation store: memory or duckdb")
	fs.StringVar(&target.DuckDBPath, "duckdb-path", target.DuckDBPath, "duckdb database file (default: in-memory)")
	fs.BoolVar(&target.Async, "async", target.Async, "run the questions as background jobs")
	fs.IntVar(&target.Workers, "workers", target.Workers, "maximum concurrent jobs in async mode")
	fs.IntVar(&target.Decade, "decade", target.Decade, "decade for the top-country-in-decade question")
	fs.IntVar(&target.ReferenceYear, "reference-year", target.ReferenceYear, "year used to compute plant age")
	fs.Var(&target.Schedule, "schedule", "re-run interval, e.g. 1h (0 disables)")
	fs.BoolVar(&target.Watch, "watch", target.Watch, "re-run when the input file changes")
	fs.StringVar(&target.HTTPAddr, "http-addr", target.HTTPAddr, "address for /logs and /metrics (empty disables)")
	fs.StringVar(&target.LogName, "log-name", target.LogName, "log file path (empty: console only)")
	fs.StringVar(&target.LogMaxSize, "log-max-size", target.LogMaxSize, "rotate the log file above this size")
	fs.BoolVar(&target.Verbose, "verbose", target.Verbose, "show debug logs")
}

// ApplyFlags 只应用命令行中显式设置的参数
func (c *Config) ApplyFlags(fs *flag.FlagSet) error {
	var errs []error
	fs.Visit(func(f *flag.Flag) {
		apply, ok := envBindings[flagToEnv(f.Name)]
		if !ok {
			return
		}
		if err := apply(c, f.Value.String()); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func flagToEnv(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Validate 检查配置
func (c *Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("input path is required")
	}
	switch c.Store {
	case "memory", "duckdb":
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.ReferenceYear < 1 {
		return fmt.Errorf("reference year must be positive, got %d", c.ReferenceYear)
	}
	if c.Decade%10 != 0 {
		return fmt.Errorf("decade must be a multiple of 10, got %d", c.Decade)
	}
	if len([]rune(c.Delimiter)) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	return nil
}

// DelimiterRune 分隔符
func (c *Config) DelimiterRune() rune {
	r := []rune(c.Delimiter)
	if len(r) == 0 {
		return ','
	}
	return r[0]
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化，同时实现 pflag.Value
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.Set(s)
}

// MarshalJSON 实现json.Marshaler接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) String() string { return time.Duration(*d).String() }

func (d *Duration) Set(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d *Duration) Type() string { return "duration" }
