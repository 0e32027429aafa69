package config

import (
	"os"
	"path/filepath"
	"strconv"

	"buurtstat/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Paths    PathConfig
	CBS      CBSConfig
	Survey   SurveyConfig
	Analysis AnalysisConfig
	Server   ServerConfig
	Database DatabaseConfig
}

// PathConfig holds file system paths, resolved once at startup
type PathConfig struct {
	DataDir        string
	RawDir         string
	ProcessedDir   string
	OutputDir      string
	TablesDir      string
	SurveyFile     string
	AdminFile      string
	ProcessedFile  string
	ResultsFile    string // precomputed results JSON for the dashboard
	RegressionFile string
}

// CBSConfig holds CBS StatLine API settings
type CBSConfig struct {
	UseAPI  bool
	TableID string
	Year    string
	BaseURL string
}

// SurveyConfig holds survey-specific settings
type SurveyConfig struct {
	Year              int // for deriving age from birth year
	IncludeOccupation bool
}

// AnalysisConfig holds model specification thresholds
type AnalysisConfig struct {
	MinClusterSize   int
	VIFThreshold     float64
	ConfidenceLevel  float64
	SparseCovariateN int // minimum non-missing count for optional covariates
}

// ServerConfig holds results API settings
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds optional artifact store settings
type DatabaseConfig struct {
	URL string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Paths:    loadPathConfig(),
		CBS:      loadCBSConfig(),
		Survey:   loadSurveyConfig(),
		Analysis: loadAnalysisConfig(),
		Server:   ServerConfig{Port: getEnvOrDefault("PORT", "8080")},
		Database: DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadPathConfig() PathConfig {
	dataDir := getEnvOrDefault("DATA_DIR", "data")
	rawDir := getEnvOrDefault("RAW_DIR", filepath.Join(dataDir, "raw"))
	processedDir := getEnvOrDefault("PROCESSED_DIR", filepath.Join(dataDir, "processed"))
	outputDir := getEnvOrDefault("OUTPUT_DIR", "outputs")
	tablesDir := filepath.Join(outputDir, "tables")

	return PathConfig{
		DataDir:        dataDir,
		RawDir:         rawDir,
		ProcessedDir:   processedDir,
		OutputDir:      outputDir,
		TablesDir:      tablesDir,
		SurveyFile:     getEnvOrDefault("SURVEY_FILE", filepath.Join(rawDir, "score_survey.csv")),
		AdminFile:      getEnvOrDefault("ADMIN_FILE", filepath.Join(rawDir, "indicators_buurt_wijk_gemeente.csv")),
		ProcessedFile:  getEnvOrDefault("PROCESSED_FILE", filepath.Join(processedDir, "analysis_ready.csv")),
		ResultsFile:    getEnvOrDefault("RESULTS_FILE", filepath.Join(outputDir, "precomputed_results.json")),
		RegressionFile: getEnvOrDefault("REGRESSION_FILE", filepath.Join(tablesDir, "regression_table.html")),
	}
}

func loadCBSConfig() CBSConfig {
	return CBSConfig{
		UseAPI:  getEnvBoolOrDefault("USE_CBS_API", false),
		TableID: getEnvOrDefault("CBS_TABLE_ID", "84286NED"),
		Year:    getEnvOrDefault("CBS_YEAR", "2018"),
		BaseURL: getEnvOrDefault("CBS_BASE_URL", "https://opendata.cbs.nl/ODataApi/odata"),
	}
}

func loadSurveyConfig() SurveyConfig {
	return SurveyConfig{
		Year:              getEnvIntOrDefault("SURVEY_YEAR", 2017),
		IncludeOccupation: getEnvBoolOrDefault("INCLUDE_OCCUPATION", true),
	}
}

func loadAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		MinClusterSize:   getEnvIntOrDefault("MIN_CLUSTER_SIZE", 2),
		VIFThreshold:     getEnvFloatOrDefault("VIF_THRESHOLD", 5.0),
		ConfidenceLevel:  getEnvFloatOrDefault("CONFIDENCE_LEVEL", 0.95),
		SparseCovariateN: getEnvIntOrDefault("SPARSE_COVARIATE_N", 100),
	}
}

func validateConfig(config *Config) error {
	if config.Analysis.MinClusterSize < 1 {
		return errors.ConfigInvalid("MIN_CLUSTER_SIZE must be at least 1")
	}
	if config.Analysis.VIFThreshold <= 0 {
		return errors.ConfigInvalid("VIF_THRESHOLD must be positive")
	}
	if config.Analysis.ConfidenceLevel <= 0 || config.Analysis.ConfidenceLevel >= 1 {
		return errors.ConfigInvalid("CONFIDENCE_LEVEL must be in (0, 1)")
	}
	if config.CBS.UseAPI && config.CBS.TableID == "" {
		return errors.ConfigInvalid("CBS_TABLE_ID is required when USE_CBS_API is set")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
